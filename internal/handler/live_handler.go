package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/liveinfo/internal/middleware"
	"github.com/hitoshi/liveinfo/internal/model"
	"github.com/hitoshi/liveinfo/internal/refresh"
)

// LiveHandler は /v1/{platform} のライブ状態APIを処理する。
type LiveHandler struct {
	sources map[string]LiveSource
	logger  *slog.Logger
	now     func() time.Time
}

// NewLiveHandler はLiveHandlerを生成する。sourcesのキーはURLのプラットフォーム名。
func NewLiveHandler(sources map[string]LiveSource, logger *slog.Logger) *LiveHandler {
	return &LiveHandler{
		sources: sources,
		logger:  logger,
		now:     time.Now,
	}
}

// GetLive はプラットフォームの最新ライブ状態を返す。
// GET /v1/{platform}
func (h *LiveHandler) GetLive(w http.ResponseWriter, r *http.Request) {
	platform := chi.URLParam(r, "platform")

	src, ok := h.sources[platform]
	if !ok {
		middleware.WriteErrorResponse(w, model.NewRouteNotFoundError())
		return
	}

	res, err := src.Lookup(r.Context(), h.now())
	if err != nil {
		if errors.Is(err, refresh.ErrNotFound) {
			middleware.WriteErrorResponse(w, model.NewNotFoundError(src.DisplayName()))
			return
		}
		h.logger.Error("ライブ状態の取得に失敗しました",
			slog.String("platform", platform),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	w.Header().Set(middleware.CacheSourceHeader, string(res.Source))
	if !res.FetchedAt.IsZero() {
		w.Header().Set("Last-Modified", res.FetchedAt.UTC().Format(http.TimeFormat))
	}
	writeJSON(w, http.StatusOK, res.Value)
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
