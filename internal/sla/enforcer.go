// Package sla computes business-day deadlines and drives the escalation
// state machine None -> Warning -> Critical -> Breached. The Enforcer is pure:
// the current time is always a parameter.
package sla

import (
	"log/slog"
	"time"

	"concilia/internal/domain"
	dErrors "concilia/pkg/domain-errors"
)

// Enforcer owns deadline arithmetic and every SLAStatus transition.
type Enforcer struct {
	cfg      Config
	calendar Calendar
	logger   *slog.Logger
}

type Option func(*Enforcer)

// WithCalendar sets the holiday lookup. Without one, only weekends are
// skipped.
func WithCalendar(c Calendar) Option {
	return func(e *Enforcer) {
		if c != nil {
			e.calendar = c
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Enforcer) {
		e.logger = logger
	}
}

// NewEnforcer validates cfg and builds an Enforcer.
func NewEnforcer(cfg Config, opts ...Option) (*Enforcer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Enforcer{cfg: cfg, calendar: WeekendOnly{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// CalculateDeadline returns intake plus daysPlazo business days, at the
// configured cutoff. Zero days means the intake day itself.
func (e *Enforcer) CalculateDeadline(intake time.Time, daysPlazo int) (time.Time, error) {
	deadline, _, err := e.calculate(intake, daysPlazo)
	return deadline, err
}

// calculate also reports whether the holiday lookup failed and the result
// fell back to weekend-only arithmetic.
func (e *Enforcer) calculate(intake time.Time, daysPlazo int) (time.Time, bool, error) {
	if intake.IsZero() {
		return time.Time{}, false, dErrors.New(dErrors.CodeBadRequest, "intake date is required")
	}
	if daysPlazo < 0 {
		return time.Time{}, false, dErrors.New(dErrors.CodeBadRequest, "days plazo cannot be negative")
	}

	fallback := false
	day := time.Date(intake.Year(), intake.Month(), intake.Day(), 0, 0, 0, 0, intake.Location())
	for added := 0; added < daysPlazo; {
		day = day.AddDate(0, 0, 1)
		if isWeekend(day) {
			continue
		}
		if !fallback {
			holiday, err := e.calendar.IsHoliday(day)
			if err != nil {
				e.logger.Warn("holiday calendar unavailable, counting weekends only",
					"day", day.Format(dateLayout),
					"error", err,
				)
				fallback = true
			} else if holiday {
				continue
			}
		}
		added++
	}
	return day.Add(e.cfg.Cutoff), fallback, nil
}

// Evaluate derives the escalation level from the time left. It is a pure
// function of (deadline, now).
func (e *Enforcer) Evaluate(deadline, now time.Time) domain.EscalationLevel {
	remaining := deadline.Sub(now)
	switch {
	case remaining > e.cfg.WarningWindow:
		return domain.EscalationNone
	case remaining > e.cfg.CriticalWindow:
		return domain.EscalationWarning
	case remaining > 0:
		return domain.EscalationCritical
	default:
		return domain.EscalationBreached
	}
}

// Open creates the status of a case at intake.
func (e *Enforcer) Open(caseID string, intake time.Time, daysPlazo int, now time.Time) (domain.SLAStatus, error) {
	deadline, fallback, err := e.calculate(intake, daysPlazo)
	if err != nil {
		return domain.SLAStatus{}, err
	}
	status := domain.SLAStatus{
		CaseID:          caseID,
		IntakeDate:      intake,
		DaysPlazo:       daysPlazo,
		Deadline:        deadline,
		EscalationLevel: e.Evaluate(deadline, now),
		LastEvaluatedAt: now,
	}
	if fallback {
		status.Validation.AddNote("holiday calendar unavailable; deadline counts weekends only")
	}
	return status, nil
}

// Advance re-evaluates status at now. The level never moves to an earlier
// stage, a closed status is left alone, and an evaluation older than the
// last one is ignored.
func (e *Enforcer) Advance(status domain.SLAStatus, now time.Time) (domain.SLAStatus, bool) {
	if status.Closed || now.Before(status.LastEvaluatedAt) {
		return status, false
	}
	next := status
	next.LastEvaluatedAt = now
	if level := e.Evaluate(status.Deadline, now); level > status.EscalationLevel {
		next.EscalationLevel = level
	}
	return next, next.EscalationLevel != status.EscalationLevel
}

// Extend moves the deadline additionalDays business days past the current
// one. It is the only transition that may lower the escalation level, and it
// leaves a DeadlineExtension behind.
func (e *Enforcer) Extend(status domain.SLAStatus, additionalDays int, reason, approvedBy string, now time.Time) (domain.SLAStatus, error) {
	if status.Closed {
		return status, dErrors.New(dErrors.CodeConflict, "case is closed")
	}
	if additionalDays <= 0 {
		return status, dErrors.New(dErrors.CodeBadRequest, "additional days must be positive")
	}
	if approvedBy == "" {
		return status, dErrors.New(dErrors.CodeBadRequest, "extension requires an approver")
	}
	deadline, _, err := e.calculate(status.Deadline, additionalDays)
	if err != nil {
		return status, err
	}

	next := status
	next.Extensions = append(append([]domain.DeadlineExtension{}, status.Extensions...), domain.DeadlineExtension{
		AdditionalDays:   additionalDays,
		PreviousDeadline: status.Deadline,
		NewDeadline:      deadline,
		PreviousLevel:    status.EscalationLevel,
		Reason:           reason,
		ApprovedBy:       approvedBy,
		ApprovedAt:       now,
	})
	next.Deadline = deadline
	next.EscalationLevel = e.Evaluate(deadline, now)
	next.LastEvaluatedAt = later(now, status.LastEvaluatedAt)
	return next, nil
}

// Close makes the status terminal.
func (e *Enforcer) Close(status domain.SLAStatus, now time.Time) (domain.SLAStatus, error) {
	if status.Closed {
		return status, dErrors.New(dErrors.CodeConflict, "case is already closed")
	}
	next := status
	next.Closed = true
	next.ClosedAt = now
	next.LastEvaluatedAt = later(now, status.LastEvaluatedAt)
	return next, nil
}

// Reopen recomputes the status for a new reconciliation pass of the same
// case. A deadline moved by an approved extension is kept. The level only
// moves forward even when a new plazo pushes the deadline out; Extend is the
// only way back down.
func (e *Enforcer) Reopen(existing domain.SLAStatus, intake time.Time, daysPlazo int, now time.Time) (domain.SLAStatus, error) {
	if existing.Closed || existing.Extended() {
		next, _ := e.Advance(existing, now)
		return next, nil
	}
	fresh, err := e.Open(existing.CaseID, intake, daysPlazo, now)
	if err != nil {
		return existing, err
	}
	if existing.EscalationLevel > fresh.EscalationLevel {
		fresh.EscalationLevel = existing.EscalationLevel
	}
	return fresh, nil
}

// Supersedes reports whether incoming may overwrite current in a store.
// Writes are last-writer-wins on LastEvaluatedAt, except that a stale writer
// can never reopen a closed case or drop an approved extension.
func Supersedes(incoming, current domain.SLAStatus) bool {
	if current.Closed && !incoming.Closed {
		return false
	}
	if len(incoming.Extensions) < len(current.Extensions) {
		return false
	}
	return !incoming.LastEvaluatedAt.Before(current.LastEvaluatedAt)
}

func later(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
