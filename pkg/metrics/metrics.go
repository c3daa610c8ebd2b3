package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "trip_agent"

// Metrics groups the collectors the engine updates. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	oracleAttempts    *prometheus.CounterVec
	oracleFallbacks   prometheus.Counter
	capabilityCalls   *prometheus.CounterVec
	capabilityLatency *prometheus.HistogramVec
	transitions       *prometheus.CounterVec
	tasks             *prometheus.CounterVec
	interventions     *prometheus.CounterVec
	fallbackSearches  prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		oracleAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_attempts_total",
			Help:      "Oracle invocation attempts by outcome.",
		}, []string{"outcome"}),
		oracleFallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_model_fallbacks_total",
			Help:      "Times the invocation wrapper advanced to a fallback model.",
		}),
		capabilityCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capability_calls_total",
			Help:      "Capability invocations by name and status.",
		}, []string{"capability", "status"}),
		capabilityLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "capability_call_seconds",
			Help:      "Capability invocation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"capability"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_node_runs_total",
			Help:      "Workflow node executions.",
		}, []string{"node"}),
		tasks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Dispatched tasks by worker and outcome.",
		}, []string{"worker", "outcome"}),
		interventions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interventions_total",
			Help:      "Human intervention requests by stage.",
		}, []string{"stage"}),
		fallbackSearches: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_searches_total",
			Help:      "Last-resort fallback searches issued by workers.",
		}),
	}
}

func (m *Metrics) OracleAttempt(outcome string) {
	if m == nil {
		return
	}
	m.oracleAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) OracleFallback() {
	if m == nil {
		return
	}
	m.oracleFallbacks.Inc()
}

func (m *Metrics) CapabilityCall(name, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.capabilityCalls.WithLabelValues(name, status).Inc()
	m.capabilityLatency.WithLabelValues(name).Observe(elapsed.Seconds())
}

func (m *Metrics) NodeRun(node string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(node).Inc()
}

func (m *Metrics) Task(worker string, success bool) {
	if m == nil {
		return
	}
	outcome := "failed"
	if success {
		outcome = "succeeded"
	}
	m.tasks.WithLabelValues(worker, outcome).Inc()
}

func (m *Metrics) Intervention(stage string) {
	if m == nil {
		return
	}
	m.interventions.WithLabelValues(stage).Inc()
}

func (m *Metrics) FallbackSearch() {
	if m == nil {
		return
	}
	m.fallbackSearches.Inc()
}
