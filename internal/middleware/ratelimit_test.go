package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func newTestRateLimiter(t *testing.T, cfg RateLimiterConfig) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(cfg, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	t.Cleanup(rl.Stop)
	return rl
}

func requestFrom(remoteAddr string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/v1/nicolive", nil)
	req.RemoteAddr = remoteAddr
	return req
}

func TestRateLimitMiddleware_AllowsRequestsWithinLimit(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{Rate: 2, Burst: 5, CleanupInterval: time.Minute})

	calls := 0
	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	// バースト内の5リクエストは全て通る
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom("192.0.2.1:1234"))
		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}
	if calls != 5 {
		t.Errorf("handler call count = %d, want 5", calls)
	}
}

func TestRateLimitMiddleware_Returns429WhenLimitExceeded(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{Rate: 0.5, Burst: 2, CleanupInterval: time.Minute})

	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), requestFrom("192.0.2.2:1234"))
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("192.0.2.2:1234"))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || retryAfter != 2 {
		t.Errorf("Retry-After = %q, want 2", w.Header().Get("Retry-After"))
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["detail"] != "Too Many Requests" {
		t.Errorf("detail = %q, want %q", body["detail"], "Too Many Requests")
	}
}

func TestRateLimitMiddleware_ClientsAreIndependent(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{Rate: 0.1, Burst: 1, CleanupInterval: time.Minute})

	handler := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// 同じIPでポートが異なっても同一クライアントとして扱う
	handler.ServeHTTP(httptest.NewRecorder(), requestFrom("192.0.2.3:1111"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("192.0.2.3:2222"))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("same client: status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("192.0.2.4:1111"))
	if w.Code != http.StatusOK {
		t.Errorf("other client: status = %d, want %d", w.Code, http.StatusOK)
	}

	if n := rl.LimiterCount(); n != 2 {
		t.Errorf("LimiterCount = %d, want 2", n)
	}
}

func TestRateLimiter_CleanupRemovesIdleEntries(t *testing.T) {
	rl := newTestRateLimiter(t, RateLimiterConfig{Rate: 1, Burst: 1, CleanupInterval: time.Minute})

	rl.limiterFor("192.0.2.5")
	rl.limiterFor("192.0.2.6")

	rl.cleanup(time.Now())
	if n := rl.LimiterCount(); n != 2 {
		t.Fatalf("LimiterCount = %d, want 2 before ttl", n)
	}

	rl.cleanup(time.Now().Add(3 * time.Minute))
	if n := rl.LimiterCount(); n != 0 {
		t.Errorf("LimiterCount = %d, want 0 after ttl", n)
	}
}

func TestNewRateLimiterConfig(t *testing.T) {
	cfg := NewRateLimiterConfig(120)
	if cfg.Rate != 2 {
		t.Errorf("Rate = %v, want 2", cfg.Rate)
	}
	if cfg.Burst != 120 {
		t.Errorf("Burst = %d, want 120", cfg.Burst)
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(NewRateLimiterConfig(60), slog.New(slog.NewJSONHandler(io.Discard, nil)))
	rl.Stop()
	rl.Stop()
}
