package reconcile

import (
	"fmt"
	"strings"

	"concilia/internal/domain"
	dErrors "concilia/pkg/domain-errors"
)

// SourceDocument is everything one extraction adapter produced for one
// rendition. A non-empty Error means the adapter failed; the rendition then
// contributes nothing but a diagnostic note.
type SourceDocument struct {
	Origin    domain.SourceOrigin `json:"origin"`
	Fields    []domain.FieldValue `json:"fields"`
	Personas  []domain.PersonData `json:"personas"`
	LegalText string              `json:"legal_text,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// CaseInput is one case's evidence for a reconciliation pass.
type CaseInput struct {
	CaseID  string           `json:"case_id"`
	Sources []SourceDocument `json:"sources"`
	// Directives are the legal texts to classify, one action each. When
	// empty, the legal text of the most reliable rendition is used.
	Directives []string `json:"directives,omitempty"`
	// Overrides are reviewer corrections; they join matching as Manual.
	Overrides []OverrideValue `json:"overrides,omitempty"`
}

// OverrideValue is a reviewer-supplied value for one field.
type OverrideValue struct {
	FieldName string `json:"field_name"`
	Value     string `json:"value"`
}

// Validate checks the structural shape of the input. Business gaps are not
// errors; they surface in the record's ValidationState.
func (in *CaseInput) Validate() error {
	in.CaseID = strings.TrimSpace(in.CaseID)
	if in.CaseID == "" {
		return dErrors.New(dErrors.CodeValidation, "case_id is required")
	}
	for i, src := range in.Sources {
		if !src.Origin.IsDocument() {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("sources[%d].origin must be xml, docx, pdf or ocr", i))
		}
	}
	for i, o := range in.Overrides {
		if strings.TrimSpace(o.FieldName) == "" {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("overrides[%d].field_name is required", i))
		}
	}
	return nil
}

