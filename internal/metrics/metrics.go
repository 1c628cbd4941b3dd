// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Collector はメトリクス収集のインターフェース。
// ワーカーやサービス層から利用する。
type Collector interface {
	RecordPassStarted()
	RecordLockDenied()
	RecordItemFetched()
	RecordFetchError()
	RecordItemMirrored()
	RecordCursor(value int64)
	RecordPassDuration(duration time.Duration)
	RecordBackfillResolved()
	RecordBackfillFailed()
}

// PrometheusCollector はPrometheusメトリクスを収集するCollector実装。
type PrometheusCollector struct {
	passStarted      prometheus.Counter
	lockDenied       prometheus.Counter
	itemsFetched     prometheus.Counter
	fetchErrors      prometheus.Counter
	itemsMirrored    prometheus.Counter
	cursor           prometheus.Gauge
	passDuration     prometheus.Histogram
	backfillResolved prometheus.Counter
	backfillFailed   prometheus.Counter
}

// NewPrometheusCollector は新しいPrometheusCollectorを生成し、
// 指定されたレジストリにメトリクスを登録する。
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	c := &PrometheusCollector{
		passStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hnmirror_sync_pass_total",
			Help: "開始した同期パスの合計数",
		}),
		lockDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hnmirror_sync_lock_denied_total",
			Help: "ロック取得拒否によりスキップした同期パスの合計数",
		}),
		itemsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hnmirror_items_fetched_total",
			Help: "上流から取得したアイテムの合計数",
		}),
		fetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hnmirror_fetch_errors_total",
			Help: "上流アイテム取得失敗の合計数",
		}),
		itemsMirrored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hnmirror_items_mirrored_total",
			Help: "ローカルにミラーしたアイテムの合計数",
		}),
		cursor: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hnmirror_sync_cursor",
			Help: "処理済み上流IDカーソルの現在値",
		}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hnmirror_sync_pass_duration_seconds",
			Help:    "同期パスの所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		backfillResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hnmirror_backfill_resolved_total",
			Help: "バックフィルで解決したスレッドルートの合計数",
		}),
		backfillFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hnmirror_backfill_failed_total",
			Help: "バックフィルで解決に失敗したアイテムの合計数",
		}),
	}

	reg.MustRegister(
		c.passStarted,
		c.lockDenied,
		c.itemsFetched,
		c.fetchErrors,
		c.itemsMirrored,
		c.cursor,
		c.passDuration,
		c.backfillResolved,
		c.backfillFailed,
	)

	return c
}

// RecordPassStarted は同期パスの開始を記録する。
func (c *PrometheusCollector) RecordPassStarted() { c.passStarted.Inc() }

// RecordLockDenied はロック取得拒否を記録する。
func (c *PrometheusCollector) RecordLockDenied() { c.lockDenied.Inc() }

// RecordItemFetched は上流アイテムの取得を記録する。
func (c *PrometheusCollector) RecordItemFetched() { c.itemsFetched.Inc() }

// RecordFetchError は上流アイテムの取得失敗を記録する。
func (c *PrometheusCollector) RecordFetchError() { c.fetchErrors.Inc() }

// RecordItemMirrored はアイテムのミラー保存を記録する。
func (c *PrometheusCollector) RecordItemMirrored() { c.itemsMirrored.Inc() }

// RecordCursor はカーソルの現在値を記録する。
func (c *PrometheusCollector) RecordCursor(value int64) { c.cursor.Set(float64(value)) }

// RecordPassDuration は同期パスの所要時間を記録する。
func (c *PrometheusCollector) RecordPassDuration(duration time.Duration) {
	c.passDuration.Observe(duration.Seconds())
}

// RecordBackfillResolved はバックフィルでの解決成功を記録する。
func (c *PrometheusCollector) RecordBackfillResolved() { c.backfillResolved.Inc() }

// RecordBackfillFailed はバックフィルでの解決失敗を記録する。
func (c *PrometheusCollector) RecordBackfillFailed() { c.backfillFailed.Inc() }

// Nop は何も記録しないCollector実装。テストで使用する。
type Nop struct{}

func (Nop) RecordPassStarted()                    {}
func (Nop) RecordLockDenied()                     {}
func (Nop) RecordItemFetched()                    {}
func (Nop) RecordFetchError()                     {}
func (Nop) RecordItemMirrored()                   {}
func (Nop) RecordCursor(value int64)              {}
func (Nop) RecordPassDuration(d time.Duration)    {}
func (Nop) RecordBackfillResolved()               {}
func (Nop) RecordBackfillFailed()                 {}

// compile-time interface checks
var (
	_ Collector = (*PrometheusCollector)(nil)
	_ Collector = Nop{}
)
