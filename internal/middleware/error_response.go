package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/liveinfo/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
type ErrorResponseBody struct {
	Detail string `json:"detail"`
}

// WriteErrorResponse は {"detail": "..."} 形式でHTTPエラーレスポンスを書き込む。
// ステータスコードはapiErr.Statusを使用する。
func WriteErrorResponse(w http.ResponseWriter, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Status)
	json.NewEncoder(w).Encode(ErrorResponseBody{Detail: apiErr.Detail})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、クライアントには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, model.NewInternalError())
}
