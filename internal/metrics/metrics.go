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
// サービス層、ページ、ミドルウェア、ワーカーから利用する。
type MetricsCollector interface {
	RecordTaskCreated()
	RecordTaskDeleted()
	RecordCommentCreated()
	RecordCommentDeleted()
	RecordPageRedirect(route, reason string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordCleanupDeleted(kind string, count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	tasksCreated    prometheus.Counter
	tasksDeleted    prometheus.Counter
	commentsCreated prometheus.Counter
	commentsDeleted prometheus.Counter
	pageRedirects   *prometheus.CounterVec
	httpStatus      *prometheus.CounterVec
	requestLatency  prometheus.Histogram
	cleanupDeleted  *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		tasksCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskboard_tasks_created_total",
			Help: "作成されたタスクの合計数",
		}),
		tasksDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskboard_tasks_deleted_total",
			Help: "削除されたタスクの合計数",
		}),
		commentsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskboard_comments_created_total",
			Help: "投稿されたコメントの合計数",
		}),
		commentsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskboard_comments_deleted_total",
			Help: "削除されたコメントの合計数",
		}),
		pageRedirects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskboard_page_redirects_total",
			Help: "ページ表示時のリダイレクト数（ルート・理由別）",
		}, []string{"route", "reason"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskboard_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "taskboard_request_latency_seconds",
			Help:    "HTTPリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		cleanupDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskboard_cleanup_deleted_total",
			Help: "クリーンアップで削除されたレコード数（種別ごと）",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		c.tasksCreated,
		c.tasksDeleted,
		c.commentsCreated,
		c.commentsDeleted,
		c.pageRedirects,
		c.httpStatus,
		c.requestLatency,
		c.cleanupDeleted,
	)

	return c
}

// RecordTaskCreated はタスク作成を記録する。
func (c *Collector) RecordTaskCreated() {
	c.tasksCreated.Inc()
}

// RecordTaskDeleted はタスク削除を記録する。
func (c *Collector) RecordTaskDeleted() {
	c.tasksDeleted.Inc()
}

// RecordCommentCreated はコメント投稿を記録する。
func (c *Collector) RecordCommentCreated() {
	c.commentsCreated.Inc()
}

// RecordCommentDeleted はコメント削除を記録する。
func (c *Collector) RecordCommentDeleted() {
	c.commentsDeleted.Inc()
}

// RecordPageRedirect はページ表示を拒否してリダイレクトしたことを記録する。
func (c *Collector) RecordPageRedirect(route, reason string) {
	c.pageRedirects.WithLabelValues(route, reason).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストのレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordCleanupDeleted はクリーンアップでの削除件数を記録する。
func (c *Collector) RecordCleanupDeleted(kind string, count int64) {
	if count <= 0 {
		return
	}
	c.cleanupDeleted.WithLabelValues(kind).Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
// 一部のメトリクスの収集に失敗しても、集められた分は返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// NopCollector は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type NopCollector struct{}

func (NopCollector) RecordTaskCreated()                 {}
func (NopCollector) RecordTaskDeleted()                 {}
func (NopCollector) RecordCommentCreated()              {}
func (NopCollector) RecordCommentDeleted()              {}
func (NopCollector) RecordPageRedirect(string, string)  {}
func (NopCollector) RecordHTTPStatus(int)               {}
func (NopCollector) RecordRequestLatency(time.Duration) {}
func (NopCollector) RecordCleanupDeleted(string, int64) {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
