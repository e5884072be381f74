package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 发送结果标签
const (
	SendResultSent           = "sent"
	SendResultSimulated      = "simulated"
	SendResultRateLimited    = "rate_limited"
	SendResultDailyCap       = "daily_cap"
	SendResultConfigMissing  = "config_missing"
	SendResultDispatchFailed = "dispatch_failed"
)

// 校验结果标签
const (
	VerifyResultSuccess = "success"
	VerifyResultBypass  = "bypass"
	VerifyResultInvalid = "invalid"
)

// Metrics 监控指标
//
// 所有记录方法在接收者为 nil 时不做任何事，未启用监控的组件可直接传入 nil。
type Metrics struct {
	registry *prometheus.Registry

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 验证码指标
	CodesSent     *prometheus.CounterVec
	CodesVerified *prometheus.CounterVec
	CodesExpired  prometheus.Counter

	// 短信通道指标
	ProviderRequests *prometheus.CounterVec
	ProviderDuration *prometheus.HistogramVec

	// 错误与限流指标
	PanicsTotal     prometheus.Counter
	RateLimitBlocks *prometheus.CounterVec
}

// NewMetrics 创建监控指标，指标注册到独立的注册表
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
				Name: "smscode_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "smscode_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		CodesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smscode_codes_sent_total",
				Help: "Verification code send attempts by result",
			},
			[]string{"purpose", "result"},
		),

		CodesVerified: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smscode_codes_verified_total",
				Help: "Verification attempts by result",
			},
			[]string{"purpose", "result"},
		),

		CodesExpired: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "smscode_codes_expired_total",
				Help: "Total number of pending codes transitioned to expired",
			},
		),

		ProviderRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smscode_provider_requests_total",
				Help: "SMS provider requests by outcome",
			},
			[]string{"provider", "outcome"},
		),

		ProviderDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "smscode_provider_request_duration_seconds",
				Help:    "SMS provider request duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"provider"},
		),

		PanicsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "smscode_panics_total",
				Help: "Total number of recovered panics",
			},
		),

		RateLimitBlocks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smscode_rate_limit_blocks_total",
				Help: "Requests rejected by the IP rate limiter",
			},
			[]string{"scope"},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordSend 记录发送结果
func (m *Metrics) RecordSend(purpose, result string) {
	if m == nil {
		return
	}
	m.CodesSent.WithLabelValues(purpose, result).Inc()
}

// RecordVerify 记录校验结果
func (m *Metrics) RecordVerify(purpose, result string) {
	if m == nil {
		return
	}
	m.CodesVerified.WithLabelValues(purpose, result).Inc()
}

// RecordExpired 记录清理数量
func (m *Metrics) RecordExpired(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.CodesExpired.Add(float64(count))
}

// RecordProviderRequest 记录短信通道请求
func (m *Metrics) RecordProviderRequest(provider, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ProviderRequests.WithLabelValues(provider, outcome).Inc()
	m.ProviderDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	if m == nil {
		return
	}
	m.PanicsTotal.Inc()
}

// RecordRateLimitBlock 记录限流阻止
func (m *Metrics) RecordRateLimitBlock(scope string) {
	if m == nil {
		return
	}
	m.RateLimitBlocks.WithLabelValues(scope).Inc()
}

// Registry 返回指标注册表
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
