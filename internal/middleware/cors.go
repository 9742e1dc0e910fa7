package middleware

import (
	"net/http"

	"github.com/hitoshi/liveinfo/internal/model"
)

// NewCORSMiddleware は許可オリジンのリストに対するCORSミドルウェアを返す。
// credentials送信と共存するため、ワイルドカード(*)ではなくリクエストのOriginをそのまま返す。
// メソッドとヘッダーはプリフライトで要求されたものをすべて許可する。
// 許可されていないオリジンからのプリフライトには403で応答する。
func NewCORSMiddleware(allowedOrigins []string) func(next http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Add("Vary", "Origin")
			_, ok := allowed[origin]
			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""

			if !ok {
				if preflight {
					WriteErrorResponse(w, &model.APIError{Status: http.StatusForbidden, Detail: "Disallowed CORS origin"})
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")

			// OPTIONSプリフライトリクエストには204で応答
			if preflight {
				w.Header().Set("Access-Control-Allow-Methods", r.Header.Get("Access-Control-Request-Method"))
				if h := r.Header.Get("Access-Control-Request-Headers"); h != "" {
					w.Header().Set("Access-Control-Allow-Headers", h)
				}
				w.Header().Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
