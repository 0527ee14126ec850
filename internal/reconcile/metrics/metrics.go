package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Reconciliations   *prometheus.CounterVec
	Duration          prometheus.Histogram
	Agreement         prometheus.Histogram
	FieldConflicts    *prometheus.CounterVec
	ActionKinds       *prometheus.CounterVec
	IdentitiesFlagged prometheus.Counter
	ExportDecisions   *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		Reconciliations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "concilia_reconciliations_total",
			Help: "Reconciliation passes by outcome (valid, needs_review, error)",
		}, []string{"outcome"}),
		Duration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "concilia_reconciliation_duration_seconds",
			Help:    "Wall time of one reconciliation pass including persistence",
			Buckets: prometheus.DefBuckets,
		}),
		Agreement: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "concilia_overall_agreement",
			Help:    "Overall field agreement of reconciled records (0-100)",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
		FieldConflicts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "concilia_field_conflicts_total",
			Help: "Fields whose renditions disagreed, by field name",
		}, []string{"field"}),
		ActionKinds: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "concilia_classified_actions_total",
			Help: "Classified compliance actions by kind",
		}, []string{"kind"}),
		IdentitiesFlagged: promauto.NewCounter(prometheus.CounterOpts{
			Name: "concilia_identities_flagged_total",
			Help: "Resolved identities merged with a review flag",
		}),
		ExportDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "concilia_export_decisions_total",
			Help: "Export gate decisions by result (allowed, blocked)",
		}, []string{"result"}),
	}
}

func (m *Metrics) IncReconciliation(outcome string) {
	if m != nil {
		m.Reconciliations.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ObserveDuration(d time.Duration) {
	if m != nil {
		m.Duration.Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveAgreement(level int) {
	if m != nil {
		m.Agreement.Observe(float64(level))
	}
}

func (m *Metrics) IncFieldConflict(field string) {
	if m != nil {
		m.FieldConflicts.WithLabelValues(field).Inc()
	}
}

func (m *Metrics) IncActionKind(kind string) {
	if m != nil {
		m.ActionKinds.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) IncIdentityFlagged() {
	if m != nil {
		m.IdentitiesFlagged.Inc()
	}
}

func (m *Metrics) IncExportDecision(allowed bool) {
	if m == nil {
		return
	}
	if allowed {
		m.ExportDecisions.WithLabelValues("allowed").Inc()
		return
	}
	m.ExportDecisions.WithLabelValues("blocked").Inc()
}
