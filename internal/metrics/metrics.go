// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 巡回結果のラベル値
const (
	OutcomeFetched     = "fetched"
	OutcomeNotModified = "not_modified"
	OutcomeFetchFailed = "fetch_failed"
	OutcomeParseFailed = "parse_failed"
	OutcomeStoreFailed = "store_failed"
	OutcomePanicked    = "panicked"
)

// Recorder は巡回処理から利用するメトリクス記録のインターフェース。
type Recorder interface {
	RecordChannel(outcome string)
	RecordHTTPStatus(statusCode int)
	RecordFetchLatency(duration time.Duration)
	RecordItems(inserted, duplicates int)
	RecordRun(duration time.Duration, channels int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	channels      *prometheus.CounterVec
	httpStatus    *prometheus.CounterVec
	fetchLatency  prometheus.Histogram
	itemsInserted prometheus.Counter
	itemsSkipped  prometheus.Counter
	runDuration   prometheus.Histogram
	lastRun       prometheus.Gauge
	lastChannels  prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		channels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rssroll_channel_results_total",
			Help: "チャンネルごとの巡回結果の合計数",
		}, []string{"outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rssroll_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rssroll_fetch_latency_seconds",
			Help:    "フィード取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		itemsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rssroll_items_inserted_total",
			Help: "新規に保存した記事の合計数",
		}),
		itemsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rssroll_items_duplicate_total",
			Help: "保存済みのため読み飛ばした記事の合計数",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rssroll_run_duration_seconds",
			Help:    "1回の巡回全体の所要時間（秒）",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rssroll_last_run_timestamp_seconds",
			Help: "最後に巡回が完了した時刻（エポック秒）",
		}),
		lastChannels: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rssroll_last_run_channels",
			Help: "最後の巡回で処理したチャンネル数",
		}),
	}

	reg.MustRegister(
		c.channels,
		c.httpStatus,
		c.fetchLatency,
		c.itemsInserted,
		c.itemsSkipped,
		c.runDuration,
		c.lastRun,
		c.lastChannels,
	)

	return c
}

// RecordChannel はチャンネル1件の巡回結果を記録する。
func (c *Collector) RecordChannel(outcome string) {
	c.channels.WithLabelValues(outcome).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordFetchLatency は取得のレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordItems は保存した記事数と読み飛ばした記事数を記録する。
func (c *Collector) RecordItems(inserted, duplicates int) {
	c.itemsInserted.Add(float64(inserted))
	c.itemsSkipped.Add(float64(duplicates))
}

// RecordRun は巡回1回分の所要時間と処理チャンネル数を記録する。
func (c *Collector) RecordRun(duration time.Duration, channels int) {
	c.runDuration.Observe(duration.Seconds())
	c.lastRun.SetToCurrentTime()
	c.lastChannels.Set(float64(channels))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないRecorder。
type Nop struct{}

func (Nop) RecordChannel(string)             {}
func (Nop) RecordHTTPStatus(int)             {}
func (Nop) RecordFetchLatency(time.Duration) {}
func (Nop) RecordItems(int, int)             {}
func (Nop) RecordRun(time.Duration, int)     {}
