// Package telemetry holds vortex's ambient observability stack: structured
// logging, Prometheus metrics and OpenTelemetry tracing, mirroring
// coreengine/observability/{metrics,tracing}.go and the chainable Logger
// from commbus/protocols.go.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every Prometheus collector vortex exports. Grounded on
// coreengine/observability/metrics.go's package-level promauto collectors;
// bundled into a struct here instead of package globals so tests can spin
// up an isolated registry per case.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	cacheHitsTotal  *prometheus.CounterVec
	rateLimitRejections *prometheus.CounterVec
	llmCallsTotal   *prometheus.CounterVec
	llmCallDuration *prometheus.HistogramVec
	poolQueueDepth  prometheus.Gauge
	poolRunning     prometheus.Gauge
}

// NewMetrics registers vortex's collectors against reg. Pass
// prometheus.NewRegistry() in tests to avoid clobbering the default
// registry across table-driven subtests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vortex_requests_total",
			Help: "Total gateway requests by route, backend kind and outcome.",
		}, []string{"route", "kind", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vortex_request_duration_seconds",
			Help:    "Gateway request duration by route and backend kind.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"route", "kind"}),
		cacheHitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vortex_cache_result_total",
			Help: "Disk cache lookups by result (hit, miss).",
		}, []string{"result"}),
		rateLimitRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vortex_rate_limit_rejections_total",
			Help: "Requests rejected by the rate-limit preprocessor, by limit type.",
		}, []string{"limit_type"}),
		llmCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vortex_llm_calls_total",
			Help: "LLM router calls by provider, model and status.",
		}, []string{"provider", "model", "status"}),
		llmCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vortex_llm_call_duration_seconds",
			Help:    "LLM router call duration by provider and model.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider", "model"}),
		poolQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vortex_pool_queue_depth",
			Help: "Number of Calls currently queued in the connection pool.",
		}),
		poolRunning: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vortex_pool_running",
			Help: "Number of Calls currently running in the connection pool.",
		}),
	}
}

func (m *Metrics) RecordRequest(route, kind, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(route, kind, status).Inc()
	m.requestDuration.WithLabelValues(route, kind).Observe(duration.Seconds())
}

func (m *Metrics) RecordCacheResult(result string) {
	if m == nil {
		return
	}
	m.cacheHitsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordRateLimitRejection(limitType string) {
	if m == nil {
		return
	}
	m.rateLimitRejections.WithLabelValues(limitType).Inc()
}

func (m *Metrics) RecordLLMCall(provider, model, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.llmCallsTotal.WithLabelValues(provider, model, status).Inc()
	m.llmCallDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
}

func (m *Metrics) SetPoolQueueDepth(n int) {
	if m == nil {
		return
	}
	m.poolQueueDepth.Set(float64(n))
}

func (m *Metrics) SetPoolRunning(n int) {
	if m == nil {
		return
	}
	m.poolRunning.Set(float64(n))
}
