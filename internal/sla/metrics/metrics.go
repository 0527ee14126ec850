package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for SLA enforcement.
type Metrics struct {
	// Escalation transitions by new level and what triggered them
	Escalations *prometheus.CounterVec

	// Sweep latency
	SweepDuration prometheus.Histogram

	// Status stream publish outcomes
	Published *prometheus.CounterVec

	// Publisher circuit breaker (0=closed, 1=half-open, 2=open)
	BreakerState prometheus.Gauge
}

// New creates a Metrics instance with all SLA metrics registered.
func New() *Metrics {
	return &Metrics{
		Escalations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "concilia_sla_escalations_total",
			Help: "Escalation level transitions by level and trigger",
		}, []string{"level", "reason"}),

		SweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "concilia_sla_sweep_duration_seconds",
			Help:    "Duration of a full escalation sweep",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}),

		Published: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "concilia_sla_stream_published_total",
			Help: "SLA status events published by outcome",
		}, []string{"outcome"}), // outcome: "ok", "error", "rejected"

		BreakerState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "concilia_sla_stream_breaker_state",
			Help: "Status stream circuit breaker state (0=closed, 1=half-open, 2=open)",
		}),
	}
}

// IncEscalation records a level transition.
func (m *Metrics) IncEscalation(level, reason string) {
	if m != nil {
		m.Escalations.WithLabelValues(level, reason).Inc()
	}
}

// ObserveSweepDuration records how long a sweep took.
func (m *Metrics) ObserveSweepDuration(d time.Duration) {
	if m != nil {
		m.SweepDuration.Observe(d.Seconds())
	}
}

// IncPublished records a publish outcome.
func (m *Metrics) IncPublished(outcome string) {
	if m != nil {
		m.Published.WithLabelValues(outcome).Inc()
	}
}

// SetBreakerState records the publisher breaker state.
func (m *Metrics) SetBreakerState(state int) {
	if m != nil {
		m.BreakerState.Set(float64(state))
	}
}
