// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラー、同期エンジン、セッション同期から利用する。
type MetricsCollector interface {
	RecordWebhookEvent(eventType, outcome string)
	RecordUserSync(source, action string)
	ObserveSyncDuration(source string, duration time.Duration)
	RecordSessionSyncFailure(operation string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	webhookEvents       *prometheus.CounterVec
	userSync            *prometheus.CounterVec
	syncDuration        *prometheus.HistogramVec
	sessionSyncFailures *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_webhook_events_total",
			Help: "受信したWebhookイベントの合計数（イベント種別・処理結果別）",
		}, []string{"event_type", "outcome"}),
		userSync: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_user_sync_total",
			Help: "ユーザー同期の合計数（起点・結果別）",
		}, []string{"source", "action"}),
		syncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storefront_sync_duration_seconds",
			Help:    "ユーザー同期1件あたりの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		sessionSyncFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_session_sync_failures_total",
			Help: "セッション同期で吸収された失敗の合計数",
		}, []string{"operation"}),
	}

	reg.MustRegister(
		c.webhookEvents,
		c.userSync,
		c.syncDuration,
		c.sessionSyncFailures,
	)

	return c
}

// RecordWebhookEvent はWebhookイベントの処理結果を記録する。
// 署名検証前に失敗した場合のeventTypeは"unknown"とする。
func (c *Collector) RecordWebhookEvent(eventType, outcome string) {
	if eventType == "" {
		eventType = "unknown"
	}
	c.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// RecordUserSync はユーザー同期の結果を記録する。
func (c *Collector) RecordUserSync(source, action string) {
	c.userSync.WithLabelValues(source, action).Inc()
}

// ObserveSyncDuration は同期処理の所要時間を記録する。
func (c *Collector) ObserveSyncDuration(source string, duration time.Duration) {
	c.syncDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordSessionSyncFailure はセッション同期の失敗を記録する。
func (c *Collector) RecordSessionSyncFailure(operation string) {
	c.sessionSyncFailures.WithLabelValues(operation).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
