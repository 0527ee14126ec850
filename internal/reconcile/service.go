package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"concilia/internal/domain"
	"concilia/internal/identity"
	"concilia/internal/reconcile/metrics"
	"concilia/internal/sla"
	"concilia/internal/validation"
	dErrors "concilia/pkg/domain-errors"
	"concilia/pkg/platform/audit"
	"concilia/pkg/platform/sentinel"
	"concilia/pkg/platform/text"
	"concilia/pkg/requestcontext"
)

var tracer = otel.Tracer("concilia/reconcile")

// Service runs reconciliation passes against stored state and owns every
// side effect of a pass: persisting the revision, saving the SLA status,
// publishing escalation changes and auditing.
type Service struct {
	orchestrator *Orchestrator
	aggregator   *validation.Aggregator
	enforcer     *sla.Enforcer
	records      RecordStore
	statuses     StatusStore
	publisher    StatusPublisher
	auditor      AuditPublisher
	logger       *slog.Logger
	metrics      *metrics.Metrics
	now          func(ctx context.Context) time.Time
	newID        func() uuid.UUID
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = p
	}
}

// WithClock fixes the time of every pass; by default the request time is used.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = func(context.Context) time.Time { return now() }
	}
}

// WithIDGenerator overrides record ID generation.
func WithIDGenerator(newID func() uuid.UUID) Option {
	return func(s *Service) {
		s.newID = newID
	}
}

// NewService wires the service. publisher may be nil when no status stream
// is configured.
func NewService(
	orchestrator *Orchestrator,
	records RecordStore,
	statuses StatusStore,
	publisher StatusPublisher,
	opts ...Option,
) (*Service, error) {
	if orchestrator == nil {
		return nil, errors.New("orchestrator is required")
	}
	if records == nil {
		return nil, errors.New("record store is required")
	}
	if statuses == nil {
		return nil, errors.New("status store is required")
	}
	s := &Service{
		orchestrator: orchestrator,
		aggregator:   orchestrator.aggregator,
		enforcer:     orchestrator.enforcer,
		records:      records,
		statuses:     statuses,
		publisher:    publisher,
		logger:       slog.Default(),
		now:          requestcontext.Now,
		newID:        uuid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Reconcile runs one pass for in.CaseID and persists the new revision. The
// pass is cancelled as a unit: when ctx is done before the revision is
// appended nothing is written.
func (s *Service) Reconcile(ctx context.Context, in CaseInput) (*domain.UnifiedMetadataRecord, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "reconcile.case")
	defer span.End()
	span.SetAttributes(attribute.String("case.id", in.CaseID))
	start := time.Now()
	defer func() { s.metrics.ObserveDuration(time.Since(start)) }()

	record, prevStatus, err := s.reconcile(ctx, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.IncReconciliation("error")
		return nil, err
	}

	s.syncStatus(ctx, prevStatus, record.SLA)
	s.observe(record)
	span.SetAttributes(
		attribute.Int("record.revision", record.Revision),
		attribute.Int("record.agreement", record.Fields.OverallAgreement),
		attribute.Bool("record.valid", record.Validation.IsValid()),
	)

	decision := "valid"
	if !record.Validation.IsValid() {
		decision = "needs_review"
	}
	s.logger.InfoContext(ctx, "case reconciled",
		"case_id", record.CaseID,
		"revision", record.Revision,
		"overall_agreement", record.Fields.OverallAgreement,
		"missing", len(record.Validation.MissingFields),
		"conflicts", len(record.Fields.ConflictingFields),
		"request_id", requestcontext.RequestID(ctx),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	if err := s.emit(ctx, audit.Event{
		CaseID:   record.CaseID,
		Action:   string(audit.EventRecordReconciled),
		Decision: decision,
		Reason:   fmt.Sprintf("revision %d", record.Revision),
	}); err != nil {
		s.logger.ErrorContext(ctx, "failed to audit reconciled record",
			"case_id", record.CaseID,
			"revision", record.Revision,
			"error", err,
		)
	}
	s.metrics.IncReconciliation(decision)
	return record, nil
}

func (s *Service) reconcile(ctx context.Context, in CaseInput) (*domain.UnifiedMetadataRecord, *domain.SLAStatus, error) {
	previous, err := s.records.Latest(ctx, in.CaseID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load previous record")
	}
	var status *domain.SLAStatus
	stored, err := s.statuses.Get(ctx, in.CaseID)
	switch {
	case err == nil:
		status = &stored
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load sla status")
	}

	record := s.orchestrator.Reconcile(Pass{
		ID:       s.newID(),
		Input:    in,
		Previous: previous,
		Status:   status,
		Now:      s.now(ctx),
	})

	if err := ctx.Err(); err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "reconciliation cancelled")
	}
	if err := s.records.Append(ctx, record); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, nil, dErrors.Wrap(err, dErrors.CodeConflict, "case was reconciled concurrently")
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to append record")
	}
	return record, status, nil
}

// syncStatus saves next and publishes the change. The record is already
// committed, so failures here are logged: the next pass or sweep recomputes
// the status from the deadline.
func (s *Service) syncStatus(ctx context.Context, prev *domain.SLAStatus, next domain.SLAStatus) {
	if next.IsZero() {
		return
	}
	if prev != nil && prev.LastEvaluatedAt.Equal(next.LastEvaluatedAt) && prev.Deadline.Equal(next.Deadline) {
		return
	}
	if err := s.statuses.Save(ctx, next); err != nil {
		if errors.Is(err, sentinel.ErrStale) {
			s.logger.InfoContext(ctx, "sla status superseded by a newer evaluation",
				"case_id", next.CaseID,
			)
			return
		}
		s.logger.ErrorContext(ctx, "failed to save sla status",
			"case_id", next.CaseID,
			"error", err,
		)
		return
	}

	reason := sla.ReasonReconcile
	var before domain.SLAStatus
	if prev == nil {
		reason = sla.ReasonIntake
	} else {
		before = *prev
		if before.EscalationLevel == next.EscalationLevel && before.Deadline.Equal(next.Deadline) {
			return
		}
	}
	s.publish(ctx, sla.NewStatusEvent(before, next, reason))
	if prev != nil && before.EscalationLevel != next.EscalationLevel {
		if err := s.emit(ctx, audit.Event{
			CaseID:   next.CaseID,
			Action:   string(audit.EventEscalationChanged),
			Decision: next.EscalationLevel.String(),
			Reason:   fmt.Sprintf("%s -> %s", before.EscalationLevel, next.EscalationLevel),
		}); err != nil {
			s.logger.ErrorContext(ctx, "failed to audit escalation change",
				"case_id", next.CaseID,
				"error", err,
			)
		}
	}
}

func (s *Service) publish(ctx context.Context, event sla.StatusEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish sla status",
			"case_id", event.CaseID,
			"reason", string(event.Reason),
			"error", err,
		)
	}
}

func (s *Service) emit(ctx context.Context, event audit.Event) error {
	if s.auditor == nil {
		return nil
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.ActorID == "" {
		event.ActorID = requestcontext.ReviewerID(ctx)
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to audit "+event.Action)
	}
	return nil
}

func (s *Service) observe(record *domain.UnifiedMetadataRecord) {
	s.metrics.ObserveAgreement(record.Fields.OverallAgreement)
	for _, name := range record.Fields.ConflictingFields {
		s.metrics.IncFieldConflict(name)
	}
	for _, action := range record.Actions {
		s.metrics.IncActionKind(string(action.Kind))
	}
	for _, id := range record.Identities {
		if len(id.Validation.Warnings) > 0 {
			s.metrics.IncIdentityFlagged()
		}
	}
}

// Latest returns the current revision of caseID.
func (s *Service) Latest(ctx context.Context, caseID string) (*domain.UnifiedMetadataRecord, error) {
	record, err := s.records.Latest(ctx, caseID)
	if err != nil {
		return nil, translate(err, "record")
	}
	return record, nil
}

// History returns every revision of caseID, oldest first.
func (s *Service) History(ctx context.Context, caseID string) ([]*domain.UnifiedMetadataRecord, error) {
	records, err := s.records.History(ctx, caseID)
	if err != nil {
		return nil, translate(err, "record")
	}
	return records, nil
}

// Export runs the export gate on the latest revision. A blocked export is
// audited; it is a decision, not an error.
func (s *Service) Export(ctx context.Context, caseID string) (validation.Decision, error) {
	record, err := s.Latest(ctx, caseID)
	if err != nil {
		return validation.Decision{}, err
	}
	decision := s.aggregator.ExportDecision(record)
	s.metrics.IncExportDecision(decision.Allowed)
	if !decision.Allowed {
		s.logger.InfoContext(ctx, "export blocked",
			"case_id", caseID,
			"revision", record.Revision,
			"reasons", len(decision.Reasons),
		)
		if err := s.emit(ctx, audit.Event{
			CaseID:   caseID,
			Action:   string(audit.EventExportBlocked),
			Decision: "blocked",
			Reason:   strings.Join(decision.Reasons, "; "),
		}); err != nil {
			return validation.Decision{}, err
		}
	}
	return decision, nil
}

// Status returns the SLA status of caseID evaluated at the current time.
// The evaluation is a view; persistence is left to sweeps and passes.
func (s *Service) Status(ctx context.Context, caseID string) (domain.SLAStatus, error) {
	status, err := s.statuses.Get(ctx, caseID)
	if err != nil {
		return domain.SLAStatus{}, translate(err, "sla status")
	}
	next, _ := s.enforcer.Advance(status, s.now(ctx))
	return next, nil
}

// ExtendDeadline applies an approved extension. The approver is the
// authenticated reviewer.
func (s *Service) ExtendDeadline(ctx context.Context, caseID string, additionalDays int, reason string) (domain.SLAStatus, error) {
	approver := requestcontext.ReviewerID(ctx)
	if approver == "" {
		return domain.SLAStatus{}, dErrors.New(dErrors.CodeUnauthorized, "extension requires an authenticated reviewer")
	}
	return s.transition(ctx, caseID, sla.ReasonExtension, func(status domain.SLAStatus, now time.Time) (domain.SLAStatus, error) {
		return s.enforcer.Extend(status, additionalDays, reason, approver, now)
	}, func(prev, next domain.SLAStatus) audit.Event {
		return audit.Event{
			CaseID:   caseID,
			Action:   string(audit.EventDeadlineExtended),
			Decision: fmt.Sprintf("+%d business days", additionalDays),
			Reason:   reason,
		}
	})
}

// CloseCase makes the SLA status terminal.
func (s *Service) CloseCase(ctx context.Context, caseID string) (domain.SLAStatus, error) {
	if requestcontext.ReviewerID(ctx) == "" {
		return domain.SLAStatus{}, dErrors.New(dErrors.CodeUnauthorized, "closing a case requires an authenticated reviewer")
	}
	return s.transition(ctx, caseID, sla.ReasonClosed, s.enforcer.Close, func(prev, next domain.SLAStatus) audit.Event {
		return audit.Event{
			CaseID:   caseID,
			Action:   string(audit.EventCaseClosed),
			Decision: "closed",
			Reason:   "final level " + prev.EscalationLevel.String(),
		}
	})
}

// transition runs a reviewer-driven status change. The audit event is
// written before the status so an unaudited change is never visible.
func (s *Service) transition(
	ctx context.Context,
	caseID string,
	reason sla.Reason,
	apply func(domain.SLAStatus, time.Time) (domain.SLAStatus, error),
	event func(prev, next domain.SLAStatus) audit.Event,
) (domain.SLAStatus, error) {
	ctx, span := tracer.Start(ctx, "reconcile.sla_"+string(reason))
	defer span.End()
	span.SetAttributes(attribute.String("case.id", caseID))

	status, err := s.statuses.Get(ctx, caseID)
	if err != nil {
		return domain.SLAStatus{}, translate(err, "sla status")
	}
	next, err := apply(status, s.now(ctx))
	if err != nil {
		return domain.SLAStatus{}, err
	}
	if err := s.emit(ctx, event(status, next)); err != nil {
		return domain.SLAStatus{}, err
	}
	if err := s.statuses.Save(ctx, next); err != nil {
		if errors.Is(err, sentinel.ErrStale) {
			return domain.SLAStatus{}, dErrors.Wrap(err, dErrors.CodeConflict, "sla status changed concurrently, retry")
		}
		return domain.SLAStatus{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save sla status")
	}
	s.logger.InfoContext(ctx, "sla status changed",
		"case_id", caseID,
		"reason", string(reason),
		"level", next.EscalationLevel.String(),
		"reviewer_id", requestcontext.ReviewerID(ctx),
	)
	s.publish(ctx, sla.NewStatusEvent(status, next, reason))
	return next, nil
}

// FindVariants searches the latest revision of every case for RFCs equal to
// rfc or OCR-confusable with it.
func (s *Service) FindVariants(ctx context.Context, rfc string) ([]domain.RfcVariant, error) {
	if text.Identifier(rfc) == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "rfc is required")
	}
	records, err := s.records.ListLatest(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list records")
	}
	var identities []domain.ResolvedIdentity
	for _, r := range records {
		identities = append(identities, r.Identities...)
	}
	return identity.FindVariants(rfc, identities), nil
}

func translate(err error, what string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeNotFound, what+" not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load "+what)
}
