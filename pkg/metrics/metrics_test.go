package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.OracleAttempt("success")
	m.OracleAttempt("rate_limited")
	m.OracleAttempt("rate_limited")
	m.OracleFallback()
	m.CapabilityCall("search", "ok", 10*time.Millisecond)
	m.Task("hotel", true)
	m.Task("hotel", false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.oracleAttempts.WithLabelValues("rate_limited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.oracleFallbacks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.capabilityCalls.WithLabelValues("search", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tasks.WithLabelValues("hotel", "failed")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.OracleAttempt("success")
		m.OracleFallback()
		m.CapabilityCall("x", "ok", time.Second)
		m.NodeRun("plan")
		m.Task("w", true)
		m.Intervention("plan")
		m.FallbackSearch()
	})
}
