package handler

import (
	"net/http"

	"github.com/hitoshi/liveinfo/internal/middleware"
	"github.com/hitoshi/liveinfo/internal/model"
)

const appTitle = "Live Info API Middleware"

type appInfoResponse struct {
	Title   string `json:"title"`
	Version string `json:"version"`
}

// Health はプロセスの死活を返す。
// GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// NewAppInfoHandler はアプリケーション名とバージョンを返すハンドラーを生成する。
// GET /
func NewAppInfoHandler(version string) http.HandlerFunc {
	body := appInfoResponse{Title: appTitle, Version: version}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, body)
	}
}

// NotFound は未登録ルートに {"detail":"Not Found"} を返す。
func NotFound(w http.ResponseWriter, r *http.Request) {
	middleware.WriteErrorResponse(w, model.NewRouteNotFoundError())
}

// MethodNotAllowed は許可されていないメソッドに405を返す。
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	middleware.WriteErrorResponse(w, &model.APIError{
		Status: http.StatusMethodNotAllowed,
		Detail: "Method Not Allowed",
	})
}
