// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// 上流クライアント、ロードコーディネータ、ダウンロード、SSE配信から呼ばれる。
type Collector struct {
	upstreamRequests *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	breakerState     *prometheus.GaugeVec
	pageLoads        *prometheus.CounterVec
	pageLoadLatency  *prometheus.HistogramVec
	staleDiscards    *prometheus.CounterVec
	duplicateReqs    *prometheus.CounterVec
	downloads        *prometheus.CounterVec
	eventsDropped    prometheus.Counter
	storefronts      prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gamehub_upstream_requests_total",
			Help: "上流APIへのリクエスト数（エンドポイント・ステータス別）",
		}, []string{"endpoint", "status_code"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gamehub_upstream_latency_seconds",
			Help:    "上流APIのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gamehub_circuit_breaker_state",
			Help: "サーキットブレーカーの状態（0=closed, 1=half-open, 2=open）",
		}, []string{"name"}),
		pageLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gamehub_page_loads_total",
			Help: "商品ページ読み込みの結果数（絞り込み種別・結果別）",
		}, []string{"filter", "outcome"}),
		pageLoadLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gamehub_page_load_latency_seconds",
			Help:    "商品ページ読み込みのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"filter"}),
		staleDiscards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gamehub_stale_results_discarded_total",
			Help: "絞り込み切り替えにより破棄された取得結果の数",
		}, []string{"filter"}),
		duplicateReqs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gamehub_duplicate_requests_skipped_total",
			Help: "取得中のためスキップされたページ要求の数",
		}, []string{"filter"}),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gamehub_downloads_total",
			Help: "ダウンロード要求の結果数",
		}, []string{"outcome"}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gamehub_sse_events_dropped_total",
			Help: "購読者の受信が追いつかず捨てたイベントの数",
		}),
		storefronts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gamehub_active_storefronts",
			Help: "保持中のストアフロント数",
		}),
	}

	reg.MustRegister(
		c.upstreamRequests,
		c.upstreamLatency,
		c.breakerState,
		c.pageLoads,
		c.pageLoadLatency,
		c.staleDiscards,
		c.duplicateReqs,
		c.downloads,
		c.eventsDropped,
		c.storefronts,
	)

	return c
}

// RecordUpstreamRequest は上流APIへのリクエストを記録する。statusCodeが0なら通信失敗。
func (c *Collector) RecordUpstreamRequest(endpoint string, statusCode int, duration time.Duration) {
	c.upstreamRequests.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
	c.upstreamLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// SetBreakerState はサーキットブレーカーの状態を記録する。
func (c *Collector) SetBreakerState(name string, state float64) {
	c.breakerState.WithLabelValues(name).Set(state)
}

// RecordPageLoad はページ読み込みの結果を記録する。
func (c *Collector) RecordPageLoad(kind string, outcome string, duration time.Duration) {
	c.pageLoads.WithLabelValues(kind, outcome).Inc()
	c.pageLoadLatency.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordStaleDiscard は破棄した古い取得結果を記録する。
func (c *Collector) RecordStaleDiscard(kind string) {
	c.staleDiscards.WithLabelValues(kind).Inc()
}

// RecordDuplicateRequest はスキップした重複要求を記録する。
func (c *Collector) RecordDuplicateRequest(kind string) {
	c.duplicateReqs.WithLabelValues(kind).Inc()
}

// RecordDownload はダウンロード要求の結果を記録する。
func (c *Collector) RecordDownload(outcome string) {
	c.downloads.WithLabelValues(outcome).Inc()
}

// RecordEventDropped はSSEで捨てたイベントを記録する。
func (c *Collector) RecordEventDropped() {
	c.eventsDropped.Inc()
}

// SetActiveStorefronts は保持中のストアフロント数を記録する。
func (c *Collector) SetActiveStorefronts(n int) {
	c.storefronts.Set(float64(n))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
