package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with regulatory significance: what a
	// reviewer or the engine decided about a case.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers routine activity useful for debugging.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions on a case. Keep
// it transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	CaseID    string
	Action    string
	Decision  string
	Reason    string
	// RequestID is the correlation ID from the HTTP request context.
	RequestID string
	// ActorID is the reviewer who performed the action. Empty for actions
	// the engine takes on its own (sweeps, reconciliation passes).
	ActorID string
}

type AuditEvent string

const (
	EventRecordReconciled  AuditEvent = "record_reconciled"
	EventExportBlocked     AuditEvent = "export_blocked"
	EventEscalationChanged AuditEvent = "escalation_changed"
	EventDeadlineExtended  AuditEvent = "deadline_extended"
	EventCaseClosed        AuditEvent = "case_closed"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventRecordReconciled:  CategoryOperations,
	EventExportBlocked:     CategoryCompliance,
	EventEscalationChanged: CategoryCompliance,
	EventDeadlineExtended:  CategoryCompliance,
	EventCaseClosed:        CategoryCompliance,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events. Durable storage lives outside this service;
// the in-memory store backs development and tests.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByCase(ctx context.Context, caseID string) ([]Event, error)
}
