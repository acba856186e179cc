package metrics

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "safecircle"

// Metrics 指标管理器
type Metrics struct {
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer

	// HTTP请求指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 业务指标
	pushTotal       *prometheus.CounterVec
	dispatchTicks   *prometheus.CounterVec
	dispatchSubject prometheus.Gauge
	sweepResolved   prometheus.Counter
	sessionEvents   *prometheus.CounterVec
}

// NewMetrics 在指定 registry 上创建指标，测试时传入独立 registry 避免重复注册
func NewMetrics(reg *prometheus.Registry) *Metrics {
	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg != nil {
		registerer, gatherer = reg, reg
	}
	f := promauto.With(registerer)

	return &Metrics{
		registerer: registerer,
		gatherer:   gatherer,
		httpRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		pushTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_total",
			Help:      "Safety alert pushes by result",
		}, []string{"result"}),
		dispatchTicks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_ticks_total",
			Help:      "Dispatch ticks by outcome",
		}, []string{"outcome"}),
		dispatchSubject: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dispatch_pending_subjects",
			Help:      "Pending subjects seen by the last dispatch tick",
		}),
		sweepResolved: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_resolved_total",
			Help:      "SOS sessions resolved by the stale sweep",
		}),
		sessionEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sos_session_events_total",
			Help:      "SOS session lifecycle events",
		}, []string{"event"}),
	}
}

// RecordHTTPRequest 记录HTTP请求
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordPush result 为 ok 或 error
func (m *Metrics) RecordPush(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.pushTotal.WithLabelValues("ok").Inc()
		return
	}
	m.pushTotal.WithLabelValues("error").Inc()
}

func (m *Metrics) RecordDispatchTick(outcome string, pending int) {
	if m == nil {
		return
	}
	m.dispatchTicks.WithLabelValues(outcome).Inc()
	m.dispatchSubject.Set(float64(pending))
}

func (m *Metrics) RecordSweep(resolved int64) {
	if m == nil || resolved <= 0 {
		return
	}
	m.sweepResolved.Add(float64(resolved))
}

// RecordSessionEvent event 取 created/updated/resolved
func (m *Metrics) RecordSessionEvent(event string) {
	if m == nil {
		return
	}
	m.sessionEvents.WithLabelValues(event).Inc()
}

// Registerer 供其他组件（如限流观察者）注册到同一 registry
func (m *Metrics) Registerer() prometheus.Registerer {
	return m.registerer
}

// Handler 暴露 /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) GinHandler() gin.HandlerFunc {
	return gin.WrapH(m.Handler())
}
