package sla

import (
	"context"
	"time"

	"concilia/internal/domain"
)

// Store persists SLA statuses. Save must apply Supersedes and return
// sentinel.ErrStale when the write loses.
type Store interface {
	Save(ctx context.Context, status domain.SLAStatus) error
	Get(ctx context.Context, caseID string) (domain.SLAStatus, error)
	ListOpen(ctx context.Context) ([]domain.SLAStatus, error)
}

// Reason says which transition produced a StatusEvent.
type Reason string

const (
	ReasonIntake    Reason = "intake"
	ReasonSweep     Reason = "sweep"
	ReasonReconcile Reason = "reconcile"
	ReasonExtension Reason = "extension"
	ReasonClosed    Reason = "closed"
)

// StatusEvent is one entry of the SLA status stream.
type StatusEvent struct {
	CaseID        string                 `json:"case_id"`
	Level         domain.EscalationLevel `json:"escalation_level"`
	PreviousLevel domain.EscalationLevel `json:"previous_level"`
	Deadline      time.Time              `json:"deadline"`
	EvaluatedAt   time.Time              `json:"evaluated_at"`
	Closed        bool                   `json:"closed"`
	Reason        Reason                 `json:"reason"`
}

// NewStatusEvent describes the move from prev to next.
func NewStatusEvent(prev, next domain.SLAStatus, reason Reason) StatusEvent {
	return StatusEvent{
		CaseID:        next.CaseID,
		Level:         next.EscalationLevel,
		PreviousLevel: prev.EscalationLevel,
		Deadline:      next.Deadline,
		EvaluatedAt:   next.LastEvaluatedAt,
		Closed:        next.Closed,
		Reason:        reason,
	}
}

// Publisher feeds dashboards and notification systems.
type Publisher interface {
	Publish(ctx context.Context, event StatusEvent) error
}
