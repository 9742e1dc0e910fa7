package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/liveinfo/internal/model"
)

func TestWriteErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		apiErr     *model.APIError
		wantStatus int
		wantDetail string
	}{
		{"entity not found", model.NewNotFoundError("Nicolive User Live"), http.StatusNotFound, "Nicolive User Live not found"},
		{"route not found", model.NewRouteNotFoundError(), http.StatusNotFound, "Not Found"},
		{"too many requests", model.NewTooManyRequestsError(), http.StatusTooManyRequests, "Too Many Requests"},
		{"internal", model.NewInternalError(), http.StatusInternalServerError, "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteErrorResponse(w, tt.apiErr)

			resp := w.Result()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}

			var body map[string]interface{}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if len(body) != 1 {
				t.Errorf("expected only the detail field, got %v", body)
			}
			if body["detail"] != tt.wantDetail {
				t.Errorf("detail = %q, want %q", body["detail"], tt.wantDetail)
			}
		})
	}
}

func TestWriteInternalServerError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteInternalServerError(w)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if got := w.Body.String(); got != "{\"detail\":\"Internal Server Error\"}\n" {
		t.Errorf("body = %q", got)
	}
}
