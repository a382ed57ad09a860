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
// サービス層、リアルタイム層、ワーカーから利用する。
type MetricsCollector interface {
	RecordRelationOp(op, outcome string)
	RecordMessage(delivered bool)
	SetOnlineConnections(n int)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordAIChat(outcome string)
	RecordResetTokensPurged(count int64)
}

// 関係操作の結果ラベル
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	relationOps    *prometheus.CounterVec
	messages       *prometheus.CounterVec
	online         prometheus.Gauge
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
	aiChat         *prometheus.CounterVec
	tokensPurged   prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		relationOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campusconnect_relation_ops_total",
			Help: "関係操作の実行数（操作・結果別）",
		}, []string{"op", "outcome"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campusconnect_messages_total",
			Help: "保存されたダイレクトメッセージ数（即時配信の有無別）",
		}, []string{"delivered"}),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "campusconnect_online_connections",
			Help: "プレゼンスに登録中の接続数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campusconnect_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "campusconnect_request_latency_seconds",
			Help:    "HTTPリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		aiChat: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campusconnect_ai_chat_total",
			Help: "AIチャット呼び出し数（結果別）",
		}, []string{"outcome"}),
		tokensPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "campusconnect_reset_tokens_purged_total",
			Help: "削除された期限切れパスワード再設定トークンの合計数",
		}),
	}

	reg.MustRegister(
		c.relationOps,
		c.messages,
		c.online,
		c.httpStatus,
		c.requestLatency,
		c.aiChat,
		c.tokensPurged,
	)

	return c
}

// RecordRelationOp は関係操作の結果を記録する。
func (c *Collector) RecordRelationOp(op, outcome string) {
	c.relationOps.WithLabelValues(op, outcome).Inc()
}

// RecordMessage はメッセージ保存と即時配信の有無を記録する。
func (c *Collector) RecordMessage(delivered bool) {
	c.messages.WithLabelValues(strconv.FormatBool(delivered)).Inc()
}

// SetOnlineConnections はプレゼンス登録数を設定する。
func (c *Collector) SetOnlineConnections(n int) {
	c.online.Set(float64(n))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストのレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordAIChat はAIチャット呼び出しの結果を記録する。
func (c *Collector) RecordAIChat(outcome string) {
	c.aiChat.WithLabelValues(outcome).Inc()
}

// RecordResetTokensPurged は削除した再設定トークン数を記録する。
func (c *Collector) RecordResetTokensPurged(count int64) {
	c.tokensPurged.Add(float64(count))
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type Nop struct{}

func (Nop) RecordRelationOp(string, string)    {}
func (Nop) RecordMessage(bool)                 {}
func (Nop) SetOnlineConnections(int)           {}
func (Nop) RecordHTTPStatus(int)               {}
func (Nop) RecordRequestLatency(time.Duration) {}
func (Nop) RecordAIChat(string)                {}
func (Nop) RecordResetTokensPurged(int64)      {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
// 一部のコレクタが失敗しても収集できたメトリクスは返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorHandling:     promhttp.ContinueOnError,
		EnableOpenMetrics: true,
	})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
