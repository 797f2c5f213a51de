package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"codemail/backend/internal/domain"
)

const namespace = "codemail"

// Metrics 监控指标。所有 Record 方法在 nil 接收者上为空操作。
type Metrics struct {
	registry *prometheus.Registry

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 访问码指标
	CodesIssued     prometheus.Counter
	CodesRevoked    prometheus.Counter
	CodeRedemptions *prometheus.CounterVec // result: success, not_found, already_used, expired
	CodesByState    *prometheus.GaugeVec   // state: total, active, used, expired；在查询统计时刷新

	// 邮箱与邮件指标
	MailboxesCreated  prometheus.Counter
	MessageDeliveries *prometheus.CounterVec // result: accepted, not_found, expired
	MessagesRead      prometheus.Counter
	MessagesDeleted   prometheus.Counter

	// 会话指标
	AdminLogins          *prometheus.CounterVec // result: success, failure
	WebSocketConnections prometheus.Gauge

	// 错误指标
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter
}

// NewMetrics 在独立的 Registry 上创建监控指标
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		CodesIssued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_codes_issued_total",
			Help:      "Total number of access codes issued",
		}),
		CodesRevoked: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_codes_revoked_total",
			Help:      "Total number of access codes revoked",
		}),
		CodeRedemptions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "access_code_redemptions_total",
				Help:      "Access code redemption attempts by result",
			},
			[]string{"result"},
		),
		CodesByState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "access_codes",
				Help:      "Access codes by state at the last statistics query",
			},
			[]string{"state"},
		),

		MailboxesCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mailboxes_created_total",
			Help:      "Total number of mailboxes created",
		}),
		MessageDeliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "message_deliveries_total",
				Help:      "Inbound message deliveries by result",
			},
			[]string{"result"},
		),
		MessagesRead: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_read_total",
			Help:      "Total number of individual message fetches",
		}),
		MessagesDeleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_deleted_total",
			Help:      "Total number of messages deleted",
		}),

		AdminLogins: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "admin_logins_total",
				Help:      "Admin login attempts by result",
			},
			[]string{"result"},
		),
		WebSocketConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections",
			Help:      "Number of open websocket connections",
		}),

		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors",
			},
			[]string{"type", "component"},
		),
		PanicsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "panics_total",
			Help:      "Total number of recovered panics",
		}),
	}
}

// Registry 返回底层 Registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordCodeIssued 记录签发访问码
func (m *Metrics) RecordCodeIssued() {
	if m == nil {
		return
	}
	m.CodesIssued.Inc()
}

// RecordCodeRevoked 记录吊销访问码
func (m *Metrics) RecordCodeRevoked() {
	if m == nil {
		return
	}
	m.CodesRevoked.Inc()
}

// RecordRedemption 记录兑换结果
func (m *Metrics) RecordRedemption(result string) {
	if m == nil {
		return
	}
	m.CodeRedemptions.WithLabelValues(result).Inc()
}

// UpdateCodeStats 刷新访问码状态分布
func (m *Metrics) UpdateCodeStats(stats *domain.Statistics) {
	if m == nil || stats == nil {
		return
	}
	m.CodesByState.WithLabelValues("total").Set(float64(stats.TotalCodes))
	m.CodesByState.WithLabelValues("active").Set(float64(stats.ActiveCodes))
	m.CodesByState.WithLabelValues("used").Set(float64(stats.UsedCodes))
	m.CodesByState.WithLabelValues("expired").Set(float64(stats.ExpiredCodes))
}

// RecordMailboxCreated 记录邮箱创建
func (m *Metrics) RecordMailboxCreated() {
	if m == nil {
		return
	}
	m.MailboxesCreated.Inc()
}

// RecordDelivery 记录邮件投递结果
func (m *Metrics) RecordDelivery(result string) {
	if m == nil {
		return
	}
	m.MessageDeliveries.WithLabelValues(result).Inc()
}

// RecordMessageRead 记录邮件读取
func (m *Metrics) RecordMessageRead() {
	if m == nil {
		return
	}
	m.MessagesRead.Inc()
}

// RecordMessageDeleted 记录邮件删除
func (m *Metrics) RecordMessageDeleted() {
	if m == nil {
		return
	}
	m.MessagesDeleted.Inc()
}

// RecordAdminLogin 记录管理员登录结果
func (m *Metrics) RecordAdminLogin(success bool) {
	if m == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.AdminLogins.WithLabelValues(result).Inc()
}

// WebSocketConnected 记录 WebSocket 连接数变化
func (m *Metrics) WebSocketConnected(delta int) {
	if m == nil {
		return
	}
	m.WebSocketConnections.Add(float64(delta))
}

// RecordError 记录错误
func (m *Metrics) RecordError(errorType, component string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	if m == nil {
		return
	}
	m.PanicsTotal.Inc()
}

// HTTPHandler 返回 /metrics 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
