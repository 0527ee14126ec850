package reconcile

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"concilia/internal/domain"
	"concilia/internal/sla"
	"concilia/pkg/platform/audit"
)

// RecordStore keeps every revision of every case. Append must reject a
// revision that does not directly follow the stored latest with
// sentinel.ErrConflict; Latest and History return sentinel.ErrNotFound for
// an unknown case.
type RecordStore interface {
	Append(ctx context.Context, record *domain.UnifiedMetadataRecord) error
	Latest(ctx context.Context, caseID string) (*domain.UnifiedMetadataRecord, error)
	History(ctx context.Context, caseID string) ([]*domain.UnifiedMetadataRecord, error)
	ListLatest(ctx context.Context) ([]*domain.UnifiedMetadataRecord, error)
}

// StatusStore is the SLA status store as seen by the service.
type StatusStore interface {
	Save(ctx context.Context, status domain.SLAStatus) error
	Get(ctx context.Context, caseID string) (domain.SLAStatus, error)
	ListOpen(ctx context.Context) ([]domain.SLAStatus, error)
}

// StatusPublisher feeds the SLA status stream.
type StatusPublisher interface {
	Publish(ctx context.Context, event sla.StatusEvent) error
}

// AuditPublisher emits audit events. Emit failing fails the operation.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}
