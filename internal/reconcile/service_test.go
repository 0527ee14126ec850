package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"concilia/internal/domain"
	"concilia/internal/reconcile/mocks"
	"concilia/internal/sla"
	dErrors "concilia/pkg/domain-errors"
	"concilia/pkg/platform/audit"
	"concilia/pkg/platform/sentinel"
	"concilia/pkg/requestcontext"
)

// =============================================================================
// Reconcile Service Test Suite
// =============================================================================
// The service owns every side effect of a pass. Tests verify the order of
// persistence, error translation, status publication and audit emission.

type ServiceSuite struct {
	suite.Suite
	ctrl          *gomock.Controller
	mockRecords   *mocks.MockRecordStore
	mockStatuses  *mocks.MockStatusStore
	mockPublisher *mocks.MockStatusPublisher
	mockAuditor   *mocks.MockAuditPublisher
	orchestrator  *Orchestrator
	service       *Service
	now           time.Time
	recordID      uuid.UUID
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockRecords = mocks.NewMockRecordStore(s.ctrl)
	s.mockStatuses = mocks.NewMockStatusStore(s.ctrl)
	s.mockPublisher = mocks.NewMockStatusPublisher(s.ctrl)
	s.mockAuditor = mocks.NewMockAuditPublisher(s.ctrl)
	s.orchestrator = newTestOrchestrator(s.T())
	s.now = time.Date(2025, time.January, 3, 9, 0, 0, 0, time.UTC)
	s.recordID = uuid.MustParse("6f1c0d2e-9a1b-4c3d-8e5f-0a1b2c3d4e5f")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := NewService(s.orchestrator, s.mockRecords, s.mockStatuses, s.mockPublisher,
		WithLogger(logger),
		WithAuditPublisher(s.mockAuditor),
		WithClock(func() time.Time { return s.now }),
		WithIDGenerator(func() uuid.UUID { return s.recordID }),
	)
	s.Require().NoError(err)
	s.service = svc
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) reviewerCtx() context.Context {
	ctx := requestcontext.WithReviewerID(context.Background(), "reviewer-1")
	return requestcontext.WithRequestID(ctx, "req-1")
}

// captureAudit records every emitted audit action.
func (s *ServiceSuite) captureAudit(actions *[]string) {
	s.mockAuditor.EXPECT().Emit(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e audit.Event) error {
			*actions = append(*actions, e.Action)
			return nil
		}).AnyTimes()
}

func (s *ServiceSuite) openStatus(now time.Time) domain.SLAStatus {
	enforcer, err := sla.NewEnforcer(sla.DefaultConfig())
	s.Require().NoError(err)
	status, err := enforcer.Open("EXP-1", time.Date(2025, time.January, 2, 0, 0, 0, 0, time.UTC), 5, now)
	s.Require().NoError(err)
	return status
}

// =============================================================================
// Constructor Tests
// =============================================================================

func (s *ServiceSuite) TestNewService() {
	s.Run("nil orchestrator returns error", func() {
		_, err := NewService(nil, s.mockRecords, s.mockStatuses, nil)
		s.ErrorContains(err, "orchestrator is required")
	})

	s.Run("nil record store returns error", func() {
		_, err := NewService(s.orchestrator, nil, s.mockStatuses, nil)
		s.ErrorContains(err, "record store is required")
	})

	s.Run("nil status store returns error", func() {
		_, err := NewService(s.orchestrator, s.mockRecords, nil, nil)
		s.ErrorContains(err, "status store is required")
	})

	s.Run("publisher is optional", func() {
		svc, err := NewService(s.orchestrator, s.mockRecords, s.mockStatuses, nil)
		s.NoError(err)
		s.NotNil(svc)
	})
}

// =============================================================================
// Reconcile Tests
// =============================================================================

func (s *ServiceSuite) TestReconcile_FirstIntake() {
	var actions []string
	s.captureAudit(&actions)
	s.mockRecords.EXPECT().Latest(gomock.Any(), "EXP-1").Return(nil, sentinel.ErrNotFound)
	s.mockStatuses.EXPECT().Get(gomock.Any(), "EXP-1").Return(domain.SLAStatus{}, sentinel.ErrNotFound)
	s.mockRecords.EXPECT().Append(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, r *domain.UnifiedMetadataRecord) error {
			s.Equal(s.recordID, r.ID)
			s.Equal(1, r.Revision)
			return nil
		})
	s.mockStatuses.EXPECT().Save(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, st domain.SLAStatus) error {
			s.Equal(time.Date(2025, time.January, 9, 23, 59, 59, 0, time.UTC), st.Deadline)
			return nil
		})
	s.mockPublisher.EXPECT().Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e sla.StatusEvent) error {
			s.Equal(sla.ReasonIntake, e.Reason)
			s.Equal(domain.EscalationNone, e.Level)
			return nil
		})

	record, err := s.service.Reconcile(s.reviewerCtx(), completeCase())

	s.Require().NoError(err)
	s.True(record.Validation.IsValid())
	s.Equal([]string{string(audit.EventRecordReconciled)}, actions)
}

func (s *ServiceSuite) TestReconcile_InvalidInput() {
	_, err := s.service.Reconcile(context.Background(), CaseInput{CaseID: "  "})

	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestReconcile_ConcurrentPassConflicts() {
	s.mockRecords.EXPECT().Latest(gomock.Any(), "EXP-1").Return(nil, sentinel.ErrNotFound)
	s.mockStatuses.EXPECT().Get(gomock.Any(), "EXP-1").Return(domain.SLAStatus{}, sentinel.ErrNotFound)
	s.mockRecords.EXPECT().Append(gomock.Any(), gomock.Any()).Return(sentinel.ErrConflict)

	_, err := s.service.Reconcile(context.Background(), completeCase())

	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestReconcile_StoreFailure() {
	s.mockRecords.EXPECT().Latest(gomock.Any(), "EXP-1").Return(nil, errors.New("connection refused"))

	_, err := s.service.Reconcile(context.Background(), completeCase())

	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *ServiceSuite) TestReconcile_CancelledBeforeCommit() {
	ctx, cancel := context.WithCancel(context.Background())
	s.mockRecords.EXPECT().Latest(gomock.Any(), "EXP-1").Return(nil, sentinel.ErrNotFound)
	s.mockStatuses.EXPECT().Get(gomock.Any(), "EXP-1").
		DoAndReturn(func(context.Context, string) (domain.SLAStatus, error) {
			cancel()
			return domain.SLAStatus{}, sentinel.ErrNotFound
		})

	_, err := s.service.Reconcile(ctx, completeCase())

	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	s.ErrorIs(err, context.Canceled)
}

func (s *ServiceSuite) TestReconcile_EscalationChangeIsPublishedAndAudited() {
	stored := s.openStatus(s.now)
	s.now = time.Date(2025, time.January, 9, 10, 0, 0, 0, time.UTC)
	previous := s.orchestrator.Reconcile(Pass{ID: uuid.New(), Input: completeCase(), Now: stored.LastEvaluatedAt})

	var actions []string
	s.captureAudit(&actions)
	s.mockRecords.EXPECT().Latest(gomock.Any(), "EXP-1").Return(previous, nil)
	s.mockStatuses.EXPECT().Get(gomock.Any(), "EXP-1").Return(stored, nil)
	s.mockRecords.EXPECT().Append(gomock.Any(), gomock.Any()).Return(nil)
	s.mockStatuses.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil)
	s.mockPublisher.EXPECT().Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e sla.StatusEvent) error {
			s.Equal(sla.ReasonReconcile, e.Reason)
			s.Equal(domain.EscalationNone, e.PreviousLevel)
			s.Equal(domain.EscalationWarning, e.Level)
			return nil
		})

	record, err := s.service.Reconcile(context.Background(), completeCase())

	s.Require().NoError(err)
	s.Equal(2, record.Revision)
	s.Equal(previous.ID, record.SupersedesID)
	s.Equal(domain.EscalationWarning, record.SLA.EscalationLevel)
	s.Equal([]string{
		string(audit.EventEscalationChanged),
		string(audit.EventRecordReconciled),
	}, actions)
}

func (s *ServiceSuite) TestReconcile_LongerPlazoKeepsBreachedLevel() {
	s.now = time.Date(2025, time.January, 20, 9, 0, 0, 0, time.UTC)
	stored := s.openStatus(s.now)
	s.Require().Equal(domain.EscalationBreached, stored.EscalationLevel)
	s.now = s.now.Add(time.Hour)

	in := completeCase()
	for i := range in.Sources {
		in.Sources[i].Fields = withField(in.Sources[i].Fields, domain.FieldDiasPlazo, "30")
	}

	var actions []string
	s.captureAudit(&actions)
	var saved domain.SLAStatus
	s.mockRecords.EXPECT().Latest(gomock.Any(), "EXP-1").Return(nil, sentinel.ErrNotFound)
	s.mockStatuses.EXPECT().Get(gomock.Any(), "EXP-1").Return(stored, nil)
	s.mockRecords.EXPECT().Append(gomock.Any(), gomock.Any()).Return(nil)
	s.mockStatuses.EXPECT().Save(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, status domain.SLAStatus) error {
			saved = status
			return nil
		})
	s.mockPublisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	record, err := s.service.Reconcile(context.Background(), in)

	s.Require().NoError(err)
	s.Equal(30, saved.DaysPlazo)
	s.True(saved.Deadline.After(stored.Deadline))
	s.Equal(domain.EscalationBreached, saved.EscalationLevel)
	s.Equal(domain.EscalationBreached, record.SLA.EscalationLevel)
	s.NotContains(actions, string(audit.EventEscalationChanged))
}

func (s *ServiceSuite) TestReconcile_StaleStatusIsNotPublished() {
	var actions []string
	s.captureAudit(&actions)
	s.mockRecords.EXPECT().Latest(gomock.Any(), "EXP-1").Return(nil, sentinel.ErrNotFound)
	s.mockStatuses.EXPECT().Get(gomock.Any(), "EXP-1").Return(domain.SLAStatus{}, sentinel.ErrNotFound)
	s.mockRecords.EXPECT().Append(gomock.Any(), gomock.Any()).Return(nil)
	s.mockStatuses.EXPECT().Save(gomock.Any(), gomock.Any()).Return(sentinel.ErrStale)
	s.mockPublisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)

	record, err := s.service.Reconcile(context.Background(), completeCase())

	s.Require().NoError(err)
	s.NotNil(record)
}

// =============================================================================
// Read Tests
// =============================================================================

func (s *ServiceSuite) TestLatest_NotFound() {
	s.mockRecords.EXPECT().Latest(gomock.Any(), "EXP-404").Return(nil, sentinel.ErrNotFound)

	_, err := s.service.Latest(context.Background(), "EXP-404")

	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestStatus_EvaluatesAtNow() {
	stored := s.openStatus(s.now)
	s.now = time.Date(2025, time.January, 9, 22, 0, 0, 0, time.UTC)
	s.mockStatuses.EXPECT().Get(gomock.Any(), "EXP-1").Return(stored, nil)

	status, err := s.service.Status(context.Background(), "EXP-1")

	s.Require().NoError(err)
	s.Equal(domain.EscalationCritical, status.EscalationLevel)
}

func (s *ServiceSuite) TestExport() {
	s.Run("blocked export is audited", func() {
		in := completeCase()
		in.Sources[0].LegalText = "texto sin medida reconocible"
		record := s.orchestrator.Reconcile(Pass{ID: uuid.New(), Input: in, Now: s.now})
		s.mockRecords.EXPECT().Latest(gomock.Any(), "EXP-1").Return(record, nil)
		s.mockAuditor.EXPECT().Emit(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, e audit.Event) error {
				s.Equal(string(audit.EventExportBlocked), e.Action)
				s.Contains(e.Reason, "ComplianceAction[0] is unknown")
				return nil
			})

		decision, err := s.service.Export(context.Background(), "EXP-1")

		s.Require().NoError(err)
		s.False(decision.Allowed)
	})

	s.Run("valid record is exportable without audit", func() {
		record := s.orchestrator.Reconcile(Pass{ID: uuid.New(), Input: completeCase(), Now: s.now})
		s.mockRecords.EXPECT().Latest(gomock.Any(), "EXP-1").Return(record, nil)

		decision, err := s.service.Export(context.Background(), "EXP-1")

		s.Require().NoError(err)
		s.True(decision.Allowed)
		s.Empty(decision.Reasons)
	})
}

// =============================================================================
// Reviewer transitions
// =============================================================================

func (s *ServiceSuite) TestExtendDeadline() {
	s.Run("requires a reviewer", func() {
		_, err := s.service.ExtendDeadline(context.Background(), "EXP-1", 2, "bank delay")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("extends, audits then saves and publishes", func() {
		stored := s.openStatus(s.now)
		gomock.InOrder(
			s.mockStatuses.EXPECT().Get(gomock.Any(), "EXP-1").Return(stored, nil),
			s.mockAuditor.EXPECT().Emit(gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, e audit.Event) error {
					s.Equal(string(audit.EventDeadlineExtended), e.Action)
					s.Equal("reviewer-1", e.ActorID)
					s.Equal("req-1", e.RequestID)
					s.Equal("bank delay", e.Reason)
					return nil
				}),
			s.mockStatuses.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil),
			s.mockPublisher.EXPECT().Publish(gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, e sla.StatusEvent) error {
					s.Equal(sla.ReasonExtension, e.Reason)
					return nil
				}),
		)

		status, err := s.service.ExtendDeadline(s.reviewerCtx(), "EXP-1", 2, "bank delay")

		s.Require().NoError(err)
		s.Equal(time.Date(2025, time.January, 13, 23, 59, 59, 0, time.UTC), status.Deadline)
		s.Require().Len(status.Extensions, 1)
		s.Equal("reviewer-1", status.Extensions[0].ApprovedBy)
	})

	s.Run("closed case cannot be extended", func() {
		stored := s.openStatus(s.now)
		stored.Closed = true
		s.mockStatuses.EXPECT().Get(gomock.Any(), "EXP-1").Return(stored, nil)

		_, err := s.service.ExtendDeadline(s.reviewerCtx(), "EXP-1", 2, "bank delay")

		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("audit failure aborts the extension", func() {
		s.mockStatuses.EXPECT().Get(gomock.Any(), "EXP-1").Return(s.openStatus(s.now), nil)
		s.mockAuditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("audit down"))

		_, err := s.service.ExtendDeadline(s.reviewerCtx(), "EXP-1", 2, "bank delay")

		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *ServiceSuite) TestCloseCase() {
	s.Run("unknown case", func() {
		s.mockStatuses.EXPECT().Get(gomock.Any(), "EXP-404").Return(domain.SLAStatus{}, sentinel.ErrNotFound)

		_, err := s.service.CloseCase(s.reviewerCtx(), "EXP-404")

		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("lost race with a newer write", func() {
		s.mockStatuses.EXPECT().Get(gomock.Any(), "EXP-1").Return(s.openStatus(s.now), nil)
		s.mockAuditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)
		s.mockStatuses.EXPECT().Save(gomock.Any(), gomock.Any()).Return(sentinel.ErrStale)

		_, err := s.service.CloseCase(s.reviewerCtx(), "EXP-1")

		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("closes", func() {
		s.mockStatuses.EXPECT().Get(gomock.Any(), "EXP-1").Return(s.openStatus(s.now), nil)
		s.mockAuditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)
		s.mockStatuses.EXPECT().Save(gomock.Any(), gomock.Any()).Return(nil)
		s.mockPublisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

		status, err := s.service.CloseCase(s.reviewerCtx(), "EXP-1")

		s.Require().NoError(err)
		s.True(status.Closed)
		s.Equal(s.now, status.ClosedAt)
	})
}

// =============================================================================
// FindVariants
// =============================================================================

func (s *ServiceSuite) TestFindVariants() {
	s.Run("rfc is required", func() {
		_, err := s.service.FindVariants(context.Background(), " - ")
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("searches latest records including OCR confusions", func() {
		records := []*domain.UnifiedMetadataRecord{
			{CaseID: "EXP-1", Identities: []domain.ResolvedIdentity{{
				RFCVariants: []domain.RfcVariant{{Value: "PELJ850101AB1", SourceTag: "xml"}},
			}}},
			{CaseID: "EXP-2", Identities: []domain.ResolvedIdentity{{
				RFCVariants: []domain.RfcVariant{{Value: "PELJ85O1O1AB1", SourceTag: "ocr"}},
			}}},
			{CaseID: "EXP-3", Identities: []domain.ResolvedIdentity{{
				RFCVariants: []domain.RfcVariant{{Value: "GOMA900202XY9", SourceTag: "xml"}},
			}}},
		}
		s.mockRecords.EXPECT().ListLatest(gomock.Any()).Return(records, nil)

		variants, err := s.service.FindVariants(context.Background(), "pelj850101ab1")

		s.Require().NoError(err)
		s.ElementsMatch([]domain.RfcVariant{
			{Value: "PELJ850101AB1", SourceTag: "xml"},
			{Value: "PELJ85O1O1AB1", SourceTag: "ocr"},
		}, variants)
	})
}
