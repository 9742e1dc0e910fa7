package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/liveinfo/internal/metrics"
)

type statusCollector struct {
	metrics.NopCollector
	statuses []int
}

func (c *statusCollector) RecordHTTPStatus(status int) {
	c.statuses = append(c.statuses, status)
}

func TestMetricsMiddleware_RecordsStatus(t *testing.T) {
	collector := &statusCollector{}

	tests := []struct {
		name   string
		handle http.HandlerFunc
		want   int
	}{
		{"explicit 404", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) }, http.StatusNotFound},
		{"implicit 200", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok")) }, http.StatusOK},
	}

	for _, tt := range tests {
		handler := NewMetricsMiddleware(collector)(tt.handle)
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/nicolive", nil))
	}

	if len(collector.statuses) != 2 {
		t.Fatalf("expected 2 recorded statuses, got %v", collector.statuses)
	}
	for i, tt := range tests {
		if collector.statuses[i] != tt.want {
			t.Errorf("%s: recorded %d, want %d", tt.name, collector.statuses[i], tt.want)
		}
	}
}
