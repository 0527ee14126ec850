// Package validation walks a reconciled record, applies the required-field
// checklist and decides whether the record may leave the system through
// automated export.
package validation

import (
	"fmt"
	"slices"
	"sort"

	"concilia/internal/domain"
)

// Config is the required-field checklist.
type Config struct {
	RequiredFields    []string `yaml:"required_fields"`
	RequirePersonaRFC bool     `yaml:"require_persona_rfc"`
}

// DefaultConfig requires the Expediente header and at least one persona with
// an RFC.
func DefaultConfig() Config {
	return Config{
		RequiredFields: []string{
			domain.FieldFundamentoLegal,
			domain.FieldMedioEnvio,
			domain.FieldSubdivision,
			domain.FieldFechaRecepcion,
			domain.FieldDiasPlazo,
			domain.FieldNumeroExpediente,
			domain.FieldNumeroOficio,
		},
		RequirePersonaRFC: true,
	}
}

// Aggregator is stateless beyond its checklist.
type Aggregator struct {
	cfg Config
}

func New(cfg Config) *Aggregator {
	return &Aggregator{cfg: cfg}
}

// RequiredFields returns the checklist, for callers that must match every
// required field even when no source mentions it.
func (a *Aggregator) RequiredFields() []string {
	return append([]string{}, a.cfg.RequiredFields...)
}

// Aggregate rolls every entity's ValidationState into the record root and
// adds what the checklist finds absent. Entries already on the root are
// kept, so aggregating twice changes nothing.
func (a *Aggregator) Aggregate(record *domain.UnifiedMetadataRecord) domain.ValidationState {
	root := copyState(record.Validation)

	for _, name := range a.cfg.RequiredFields {
		res, ok := record.Fields.Get(name)
		if !ok || res.Missing {
			root.AddMissing(name)
		}
	}

	if record.SLA.IsZero() {
		root.AddMissing(domain.MissingSLA)
	}
	root.Merge("SLA", record.SLA.Validation)

	if a.cfg.RequirePersonaRFC && !anyRFC(record.Identities) {
		root.AddMissing(domain.MissingPersonaRFC)
	}
	for i, id := range record.Identities {
		root.Merge(fmt.Sprintf("ResolvedIdentity[%d]", i), id.Validation)
	}

	if len(record.Actions) == 0 {
		root.AddMissing("ComplianceAction")
	}
	for i, action := range record.Actions {
		prefix := fmt.Sprintf("ComplianceAction[%d]", i)
		// Unknown and Other are structurally present but unresolved.
		if !action.Kind.IsResolved() {
			root.AddMissing(prefix + "." + domain.MissingMeasure)
		}
		if action.DueDate.IsZero() {
			root.AddMissing(prefix + "." + domain.MissingDueDate)
		}
		root.Merge(prefix, action.Validation)
	}
	return root
}

// ReviewItems enumerates everything a reviewer must look at, in a stable
// order: missing items, conflicts, unresolved actions, identity flags.
func (a *Aggregator) ReviewItems(record *domain.UnifiedMetadataRecord) []domain.ReviewItem {
	items := []domain.ReviewItem{}
	for _, m := range record.Validation.MissingFields {
		items = append(items, domain.ReviewItem{Kind: domain.ReviewMissing, Target: m})
	}
	for _, name := range record.Fields.ConflictingFields {
		res := record.Fields.Fields[name]
		items = append(items, domain.ReviewItem{
			Kind:   domain.ReviewConflict,
			Target: name,
			Detail: fmt.Sprintf("agreement %d%%, chosen %q from %s", res.AgreementLevel, res.ChosenValue, res.ChosenOrigin),
			Values: res.ConflictingValues(),
		})
	}
	for i, action := range record.Actions {
		if action.Kind.IsResolved() && !action.RequiresReview {
			continue
		}
		detail := fmt.Sprintf("action kind %s", action.Kind)
		if len(action.Validation.Warnings) > 0 {
			detail = action.Validation.Warnings[0]
		}
		items = append(items, domain.ReviewItem{
			Kind:   domain.ReviewUnresolved,
			Target: fmt.Sprintf("ComplianceAction[%d]", i),
			Detail: detail,
		})
	}
	for i, id := range record.Identities {
		for _, w := range id.Validation.Warnings {
			items = append(items, domain.ReviewItem{
				Kind:   domain.ReviewIdentityFlag,
				Target: fmt.Sprintf("ResolvedIdentity[%d]", i),
				Detail: w,
			})
		}
	}
	return items
}

// Decision is the verdict of the export gate.
type Decision struct {
	Allowed bool                `json:"allowed"`
	Reasons []string            `json:"reasons"`
	Items   []domain.ReviewItem `json:"review_items"`
}

// ExportDecision blocks a record that is invalid, carries an Unknown or
// Other action, or has a conflict on a checklist field.
func (a *Aggregator) ExportDecision(record *domain.UnifiedMetadataRecord) Decision {
	reasons := []string{}
	state := a.Aggregate(record)
	for _, m := range state.MissingFields {
		reasons = append(reasons, "missing "+m)
	}
	for i, action := range record.Actions {
		if !action.Kind.IsResolved() {
			reasons = append(reasons, fmt.Sprintf("ComplianceAction[%d] is %s", i, action.Kind))
		}
	}
	required := make(map[string]struct{}, len(a.cfg.RequiredFields))
	for _, name := range a.cfg.RequiredFields {
		required[name] = struct{}{}
	}
	for _, name := range record.Fields.ConflictingFields {
		if _, ok := required[name]; ok {
			reasons = append(reasons, "conflict on "+name)
		}
	}
	sort.Strings(reasons)
	reasons = slices.Compact(reasons)
	return Decision{
		Allowed: len(reasons) == 0,
		Reasons: reasons,
		Items:   a.ReviewItems(record),
	}
}

func anyRFC(ids []domain.ResolvedIdentity) bool {
	for _, id := range ids {
		if id.HasRFC() {
			return true
		}
	}
	return false
}

func copyState(v domain.ValidationState) domain.ValidationState {
	return domain.ValidationState{
		MissingFields: append([]string{}, v.MissingFields...),
		Warnings:      append([]string(nil), v.Warnings...),
		Notes:         append([]string(nil), v.Notes...),
	}
}
