package sla

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"concilia/internal/sla/metrics"
	"concilia/pkg/platform/sentinel"
)

var tracer trace.Tracer = otel.Tracer("concilia/sla")

// DefaultSchedule runs the sweep every five minutes.
const DefaultSchedule = "@every 5m"

// SweepReport summarizes one sweep.
type SweepReport struct {
	Evaluated int
	Escalated int
	Stale     int
	Failed    int
}

// Sweeper periodically re-evaluates every open status. It tolerates
// concurrent reconciliation passes: a write that loses the last-writer-wins
// race is counted as stale and skipped.
type Sweeper struct {
	enforcer  *Enforcer
	store     Store
	publisher Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
	cron      *cron.Cron
}

type SweeperOption func(*Sweeper)

func WithSweeperLogger(logger *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

func WithSweeperMetrics(m *metrics.Metrics) SweeperOption {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

func WithClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		s.now = now
	}
}

func NewSweeper(enforcer *Enforcer, store Store, publisher Publisher, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		enforcer:  enforcer,
		store:     store,
		publisher: publisher,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep evaluates every open status once.
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	ctx, span := tracer.Start(ctx, "sla.sweep", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.ObserveSweepDuration(time.Since(start)) }()

	var report SweepReport
	statuses, err := s.store.ListOpen(ctx)
	if err != nil {
		span.RecordError(err)
		return report, err
	}

	now := s.now()
	for _, status := range statuses {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		next, escalated := s.enforcer.Advance(status, now)
		report.Evaluated++
		if next.LastEvaluatedAt.Equal(status.LastEvaluatedAt) {
			continue
		}
		if err := s.store.Save(ctx, next); err != nil {
			if errors.Is(err, sentinel.ErrStale) {
				report.Stale++
				continue
			}
			report.Failed++
			s.logger.ErrorContext(ctx, "failed to save sla status",
				"case_id", status.CaseID,
				"error", err,
			)
			continue
		}
		if !escalated {
			continue
		}
		report.Escalated++
		s.metrics.IncEscalation(next.EscalationLevel.String(), string(ReasonSweep))
		s.logger.InfoContext(ctx, "sla escalated",
			"case_id", next.CaseID,
			"from", status.EscalationLevel.String(),
			"to", next.EscalationLevel.String(),
		)
		if err := s.publisher.Publish(ctx, NewStatusEvent(status, next, ReasonSweep)); err != nil {
			s.logger.WarnContext(ctx, "failed to publish sla status",
				"case_id", next.CaseID,
				"error", err,
			)
		}
	}

	span.SetAttributes(
		attribute.Int("sla.evaluated", report.Evaluated),
		attribute.Int("sla.escalated", report.Escalated),
	)
	return report, nil
}

// Start schedules Sweep on spec (standard cron syntax or "@every 5m").
func (s *Sweeper) Start(ctx context.Context, spec string) error {
	if spec == "" {
		spec = DefaultSchedule
	}
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(spec, func() {
		report, err := s.Sweep(ctx)
		if err != nil {
			s.logger.ErrorContext(ctx, "sla sweep failed", "error", err)
			return
		}
		s.logger.InfoContext(ctx, "sla sweep finished",
			"evaluated", report.Evaluated,
			"escalated", report.Escalated,
			"stale", report.Stale,
			"failed", report.Failed,
		)
	}); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}
