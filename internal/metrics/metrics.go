// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// リフレッシュキャッシュとHTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordFetchSuccess(entity string)
	RecordFetchFailure(entity string, reason string)
	RecordFetchLatency(entity string, duration time.Duration)
	RecordPersistFailure(entity string)
	RecordLookup(entity string, source string)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	fetchSuccess *prometheus.CounterVec
	fetchFail    *prometheus.CounterVec
	fetchLatency *prometheus.HistogramVec
	persistFail  *prometheus.CounterVec
	lookups      *prometheus.CounterVec
	httpStatus   *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fetchSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "liveinfo_fetch_success_total",
			Help: "上流フェッチ成功の合計数",
		}, []string{"entity"}),
		fetchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "liveinfo_fetch_fail_total",
			Help: "上流フェッチ失敗の合計数",
		}, []string{"entity", "reason"}),
		fetchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "liveinfo_fetch_latency_seconds",
			Help:    "上流フェッチのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"entity"}),
		persistFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "liveinfo_persist_fail_total",
			Help: "永続ストアへの書き込み失敗の合計数",
		}, []string{"entity"}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "liveinfo_lookup_total",
			Help: "キャッシュ参照の合計数（値の出所別）",
		}, []string{"entity", "source"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "liveinfo_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.fetchSuccess,
		c.fetchFail,
		c.fetchLatency,
		c.persistFail,
		c.lookups,
		c.httpStatus,
	)

	return c
}

// RecordFetchSuccess はフェッチ成功を記録する。
func (c *Collector) RecordFetchSuccess(entity string) {
	c.fetchSuccess.WithLabelValues(entity).Inc()
}

// RecordFetchFailure はフェッチ失敗を失敗理由のラベル付きで記録する。
func (c *Collector) RecordFetchFailure(entity string, reason string) {
	c.fetchFail.WithLabelValues(entity, reason).Inc()
}

// RecordFetchLatency はフェッチのレイテンシを記録する。
func (c *Collector) RecordFetchLatency(entity string, duration time.Duration) {
	c.fetchLatency.WithLabelValues(entity).Observe(duration.Seconds())
}

// RecordPersistFailure は永続化失敗を記録する。
func (c *Collector) RecordPersistFailure(entity string) {
	c.persistFail.WithLabelValues(entity).Inc()
}

// RecordLookup はキャッシュ参照結果（fetched/cached/stale/not_found）を記録する。
func (c *Collector) RecordLookup(entity string, source string) {
	c.lookups.WithLabelValues(entity, source).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// NopCollector は何も記録しないMetricsCollector。
type NopCollector struct{}

func (NopCollector) RecordFetchSuccess(string)                {}
func (NopCollector) RecordFetchFailure(string, string)        {}
func (NopCollector) RecordFetchLatency(string, time.Duration) {}
func (NopCollector) RecordPersistFailure(string)              {}
func (NopCollector) RecordLookup(string, string)              {}
func (NopCollector) RecordHTTPStatus(int)                     {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
