package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// EscalationLevel is the SLA urgency derived from time left to deadline.
// Levels are ordered; a higher value is a later stage.
type EscalationLevel int

const (
	EscalationNone EscalationLevel = iota
	EscalationWarning
	EscalationCritical
	EscalationBreached
)

var escalationNames = map[EscalationLevel]string{
	EscalationNone:     "none",
	EscalationWarning:  "warning",
	EscalationCritical: "critical",
	EscalationBreached: "breached",
}

func (l EscalationLevel) String() string {
	if s, ok := escalationNames[l]; ok {
		return s
	}
	return fmt.Sprintf("escalation(%d)", int(l))
}

// ParseEscalationLevel is the inverse of String.
func ParseEscalationLevel(s string) (EscalationLevel, error) {
	for l, name := range escalationNames {
		if name == s {
			return l, nil
		}
	}
	return EscalationNone, fmt.Errorf("unknown escalation level %q", s)
}

func (l EscalationLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

func (l *EscalationLevel) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseEscalationLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// DeadlineExtension records an approved change of deadline. Extensions are
// the only transition allowed to lower an escalation level.
type DeadlineExtension struct {
	AdditionalDays   int             `json:"additional_days"`
	PreviousDeadline time.Time       `json:"previous_deadline"`
	NewDeadline      time.Time       `json:"new_deadline"`
	PreviousLevel    EscalationLevel `json:"previous_level"`
	Reason           string          `json:"reason"`
	ApprovedBy       string          `json:"approved_by"`
	ApprovedAt       time.Time       `json:"approved_at"`
}

// SLAStatus tracks a case against its response deadline. It is created at
// intake and changed only by the SLA enforcer; it becomes terminal once the
// case is closed.
type SLAStatus struct {
	CaseID          string              `json:"case_id"`
	IntakeDate      time.Time           `json:"intake_date"`
	DaysPlazo       int                 `json:"days_plazo"`
	Deadline        time.Time           `json:"deadline"`
	EscalationLevel EscalationLevel     `json:"escalation_level"`
	LastEvaluatedAt time.Time           `json:"last_evaluated_at"`
	Closed          bool                `json:"closed"`
	ClosedAt        time.Time           `json:"closed_at,omitzero"`
	Extensions      []DeadlineExtension `json:"extensions,omitempty"`
	Validation      ValidationState     `json:"validation"`
}

// IsZero reports whether no deadline could be computed.
func (s SLAStatus) IsZero() bool {
	return s.Deadline.IsZero()
}

// Extended reports whether an approved extension moved the deadline.
func (s SLAStatus) Extended() bool {
	return len(s.Extensions) > 0
}
