package domain

import (
	"strings"
	"time"

	"concilia/pkg/platform/text"
)

// ActionKind is the closed set of compliance actions a directive can ask
// for. ActionUnknown and ActionOther are first-class states that route the
// case to manual review; nothing is ever coerced into a guessed kind.
type ActionKind string

const (
	ActionBlock       ActionKind = "block"
	ActionUnblock     ActionKind = "unblock"
	ActionDocument    ActionKind = "document"
	ActionTransfer    ActionKind = "transfer"
	ActionInformation ActionKind = "information"
	ActionIgnore      ActionKind = "ignore"
	ActionUnknown     ActionKind = "unknown"
	ActionOther       ActionKind = "other"
)

// actionAliases maps normalized raw strings, including the regulator's
// Spanish vocabulary, onto kinds. Lookups fall through to ActionUnknown.
var actionAliases = map[string]ActionKind{
	"block":          ActionBlock,
	"bloqueo":        ActionBlock,
	"aseguramiento":  ActionBlock,
	"embargo":        ActionBlock,
	"inmovilizacion": ActionBlock,
	"unblock":        ActionUnblock,
	"desbloqueo":     ActionUnblock,
	"desembargo":     ActionUnblock,
	"levantamiento":  ActionUnblock,
	"document":       ActionDocument,
	"documentacion":  ActionDocument,
	"transfer":       ActionTransfer,
	"transferencia":  ActionTransfer,
	"information":    ActionInformation,
	"informacion":    ActionInformation,
	"hacendario":     ActionInformation,
	"judicial":       ActionInformation,
	"ignore":         ActionIgnore,
	"sin efecto":     ActionIgnore,
	"unknown":        ActionUnknown,
	"other":          ActionOther,
	"otro":           ActionOther,
}

// ParseActionKind resolves raw through the alias table. Unrecognized input
// yields ActionUnknown and ok=false.
func ParseActionKind(raw string) (kind ActionKind, ok bool) {
	key := strings.TrimSpace(text.Normalize(raw))
	if k, found := actionAliases[key]; found {
		return k, true
	}
	return ActionUnknown, false
}

// IsResolved reports whether k is a terminal, automatable kind.
func (k ActionKind) IsResolved() bool {
	return k != ActionUnknown && k != ActionOther && k != ""
}

// RequiresAccount reports whether the kind cannot be executed without an
// account number.
func (k ActionKind) RequiresAccount() bool {
	switch k {
	case ActionBlock, ActionUnblock, ActionTransfer:
		return true
	}
	return false
}

// RequiresAmount reports whether the kind cannot be executed without an
// amount.
func (k ActionKind) RequiresAmount() bool {
	return k == ActionTransfer
}

// ComplianceAction is the classified intent of one directive.
type ComplianceAction struct {
	Kind           ActionKind      `json:"action_kind"`
	Cuenta         string          `json:"cuenta,omitempty"`
	Monto          string          `json:"monto,omitempty"`
	Producto       string          `json:"producto,omitempty"`
	LegalBasis     string          `json:"legal_basis,omitempty"`
	DueDate        time.Time       `json:"due_date"`
	MatchedPhrase  string          `json:"matched_phrase,omitempty"`
	Origins        []SourceOrigin  `json:"origins"`
	RequiresReview bool            `json:"requires_review"`
	Validation     ValidationState `json:"validation"`
}
