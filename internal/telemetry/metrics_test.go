package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordRequest_IncrementsCounterAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordRequest("/api/hello", "rest", "200", 10*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.requestsTotal.WithLabelValues("/api/hello", "rest", "200")))
}

func TestRecordCacheResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordCacheResult("hit")
	m.RecordCacheResult("hit")
	m.RecordCacheResult("miss")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.cacheHitsTotal.WithLabelValues("hit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.cacheHitsTotal.WithLabelValues("miss")))
}

func TestPoolGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.SetPoolQueueDepth(3)
	m.SetPoolRunning(2)

	assert.Equal(t, float64(3), testutil.ToFloat64(m.poolQueueDepth))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.poolRunning))
}

func TestNilMetrics_NoPanic(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("r", "k", "200", time.Millisecond)
		m.RecordCacheResult("hit")
		m.RecordRateLimitRejection("minute")
		m.RecordLLMCall("openai", "gpt-4o", "ok", time.Millisecond)
		m.SetPoolQueueDepth(1)
		m.SetPoolRunning(1)
	})
}
