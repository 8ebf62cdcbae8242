// Package metrics provides Prometheus metrics for the trading client
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor Prometheus监控指标收集器
type Monitor struct {
	registry *prometheus.Registry

	// 估算指标
	estimatesTotal *prometheus.CounterVec
	estimateStatus *prometheus.CounterVec

	// 订单簿指标
	malformedBooks prometheus.Counter
	bookLevels     *prometheus.GaugeVec

	// 提交指标
	validationFailures *prometheus.CounterVec
	submissionsTotal   prometheus.Counter
	submissionRejects  prometheus.Counter
	submissionErrors   *prometheus.CounterVec
	broadcastLatency   prometheus.Histogram

	// 系统指标
	wsConnections prometheus.Counter
	wsDisconnects prometheus.Counter
}

// Config 监控配置
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "dex",
		Subsystem: "trading",
	}
}

// New 创建新的Monitor实例
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Monitor{
		registry: reg,

		estimatesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "estimates_total",
				Help:      "估算调用总数",
			},
			[]string{"side"},
		),
		estimateStatus: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "estimate_status_total",
				Help:      "估算结论分布",
			},
			[]string{"status"},
		),

		malformedBooks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "malformed_books_total",
			Help:      "被拒绝的订单簿快照总数",
		}),
		bookLevels: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "book_levels",
				Help:      "当前订单簿档位数",
			},
			[]string{"market", "side"},
		),

		validationFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "validation_failures_total",
				Help:      "校验失败总数",
			},
			[]string{"field"},
		),
		submissionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "submissions_total",
			Help:      "广播成功的订单提交总数",
		}),
		submissionRejects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "submission_rejects_total",
			Help:      "因校验失败被拦下的提交总数",
		}),
		submissionErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "submission_errors_total",
				Help:      "提交失败总数",
			},
			[]string{"stage"},
		),
		broadcastLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "broadcast_latency_seconds",
			Help:      "交易广播延迟（秒）",
			Buckets:   prometheus.DefBuckets,
		}),

		wsConnections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "ws_connections_total",
			Help:      "WebSocket连接次数",
		}),
		wsDisconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "ws_disconnects_total",
			Help:      "WebSocket断开次数",
		}),
	}

	return m
}

// 估算相关方法
func (m *Monitor) RecordEstimate(side, status string) {
	m.estimatesTotal.WithLabelValues(side).Inc()
	m.estimateStatus.WithLabelValues(status).Inc()
}

// 订单簿相关方法
func (m *Monitor) RecordMalformedBook() {
	m.malformedBooks.Inc()
}

func (m *Monitor) UpdateBookLevels(marketID string, bids, asks int) {
	m.bookLevels.WithLabelValues(marketID, "bid").Set(float64(bids))
	m.bookLevels.WithLabelValues(marketID, "ask").Set(float64(asks))
}

// 提交相关方法
func (m *Monitor) RecordValidationFailure(field string) {
	m.validationFailures.WithLabelValues(field).Inc()
}

func (m *Monitor) RecordSubmission() {
	m.submissionsTotal.Inc()
}

func (m *Monitor) RecordSubmissionReject() {
	m.submissionRejects.Inc()
}

func (m *Monitor) RecordSubmissionError(stage string) {
	m.submissionErrors.WithLabelValues(stage).Inc()
}

func (m *Monitor) RecordBroadcastLatency(seconds float64) {
	m.broadcastLatency.Observe(seconds)
}

// 系统相关方法
func (m *Monitor) RecordWSConnection() {
	m.wsConnections.Inc()
}

func (m *Monitor) RecordWSDisconnect() {
	m.wsDisconnects.Inc()
}

// Handler 返回指标的HTTP处理器
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartMetricsServer 启动Prometheus指标服务器
func (m *Monitor) StartMetricsServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	go func() {
		_ = http.ListenAndServe(addr, mux)
	}()
}
