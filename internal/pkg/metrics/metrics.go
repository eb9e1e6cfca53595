package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics はボットと運用HTTPサーバーのメトリクスを管理する
type Metrics struct {
	// 受信したアップデート数（kind: command, callback, text, other）
	UpdatesTotal *prometheus.CounterVec

	// 状態機械のアクション処理数（action, outcome: ok, input_error, error）
	ActionsTotal *prometheus.CounterVec

	// アクション処理時間（action）
	ActionDuration *prometheus.HistogramVec

	// 予約確定の試行数（status: success, conflict, invalid_input, error）
	BookingsTotal *prometheus.CounterVec

	// キャンセル確定の試行数（status: success, partial, error）
	CancellationsTotal *prometheus.CounterVec

	// 予約・解放された座席数（operation: book, release）
	SeatsTotal *prometheus.CounterVec

	// 会話ロックの取得時間（status: success, busy, error）
	TurnLockDuration *prometheus.HistogramVec

	// メモリ上のアクティブなセッション数
	ActiveSessions prometheus.Gauge

	// HTTPリクエストの総数（method, path, status_code）
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPリクエストのレイテンシ（method, path）
	HTTPRequestDuration *prometheus.HistogramVec
}

// New は新しいMetricsインスタンスを作成し、デフォルトレジストリに登録する
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry は指定したレジストリにメトリクスを登録する
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		UpdatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bot_updates_total",
				Help: "Total number of chat updates received",
			},
			[]string{"kind"},
		),
		ActionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "booking_actions_total",
				Help: "Total number of state machine actions handled",
			},
			[]string{"action", "outcome"},
		),
		ActionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "booking_action_duration_seconds",
				Help:    "Time spent handling a state machine action",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"action"},
		),
		BookingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookings_total",
				Help: "Total number of booking commit attempts",
			},
			[]string{"status"},
		),
		CancellationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cancellations_total",
				Help: "Total number of cancellation commit attempts",
			},
			[]string{"status"},
		),
		SeatsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seats_total",
				Help: "Total number of seats booked or released",
			},
			[]string{"operation"},
		),
		TurnLockDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "turn_lock_duration_seconds",
				Help:    "Time spent acquiring the per-conversation turn lock",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"status"},
		),
		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "active_sessions",
				Help: "Current number of in-memory selection sessions",
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
	}

	reg.MustRegister(
		m.UpdatesTotal,
		m.ActionsTotal,
		m.ActionDuration,
		m.BookingsTotal,
		m.CancellationsTotal,
		m.SeatsTotal,
		m.TurnLockDuration,
		m.ActiveSessions,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)

	return m
}

// デフォルトのメトリクスインスタンス
var defaultMetrics *Metrics

// Init はデフォルトのメトリクスインスタンスを初期化する
func Init() *Metrics {
	defaultMetrics = New()
	return defaultMetrics
}

// Get はデフォルトのメトリクスインスタンスを返す（未初期化なら nil）
func Get() *Metrics {
	return defaultMetrics
}

// Set はデフォルトのメトリクスインスタンスを差し替える
func Set(m *Metrics) {
	defaultMetrics = m
}
