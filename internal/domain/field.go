package domain

import (
	"sort"

	"concilia/pkg/platform/text"
)

// FieldValue is one extracted value for one logical field from one source.
// It is a value type: copies are independent and nothing mutates it after
// NewFieldValue returns.
type FieldValue struct {
	FieldName            string       `json:"field_name"`
	RawValue             string       `json:"raw_value"`
	NormalizedValue      string       `json:"normalized_value"`
	SourceOrigin         SourceOrigin `json:"source_origin"`
	ExtractionConfidence int          `json:"extraction_confidence"`
}

// NewFieldValue normalizes raw and clamps confidence into 0-100.
func NewFieldValue(fieldName, raw string, origin SourceOrigin, confidence int) FieldValue {
	return FieldValue{
		FieldName:            fieldName,
		RawValue:             raw,
		NormalizedValue:      text.Normalize(raw),
		SourceOrigin:         origin,
		ExtractionConfidence: clampPercent(confidence),
	}
}

// IsEmpty reports whether the value carries no content after normalization.
func (v FieldValue) IsEmpty() bool {
	return v.NormalizedValue == ""
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// FieldMatchResult is the reconciled view of one field across all sources.
// It is created once per pass; re-reconciliation creates a new result.
//
// Invariants:
//   - len(AllValues) equals the number of non-empty sources offered
//   - Missing is true iff AllValues is empty
//   - OriginTrace lists the origin of every retained value, deduplicated,
//     in precedence order
type FieldMatchResult struct {
	FieldName      string         `json:"field_name"`
	ChosenValue    string         `json:"chosen_value"`
	ChosenOrigin   SourceOrigin   `json:"chosen_origin,omitempty"`
	AllValues      []FieldValue   `json:"all_values"`
	AgreementLevel int            `json:"agreement_level"`
	HasConflict    bool           `json:"has_conflict"`
	Missing        bool           `json:"missing"`
	OriginTrace    []SourceOrigin `json:"origin_trace"`
}

// ConflictingValues groups the retained raw values by origin so a reviewer
// sees every disagreeing rendition.
func (r FieldMatchResult) ConflictingValues() map[SourceOrigin][]string {
	if !r.HasConflict {
		return nil
	}
	out := make(map[SourceOrigin][]string, len(r.AllValues))
	for _, v := range r.AllValues {
		out[v.SourceOrigin] = append(out[v.SourceOrigin], v.RawValue)
	}
	return out
}

// MatchedFields is the result of matching every field of a case.
type MatchedFields struct {
	Fields            map[string]FieldMatchResult `json:"fields"`
	OverallAgreement  int                         `json:"overall_agreement"`
	ConflictingFields []string                    `json:"conflicting_fields"`
	MissingFields     []string                    `json:"missing_fields"`
}

// Get returns the result for name.
func (m MatchedFields) Get(name string) (FieldMatchResult, bool) {
	r, ok := m.Fields[name]
	return r, ok
}

// Value returns the chosen raw value of name, or "" when missing.
func (m MatchedFields) Value(name string) string {
	r, ok := m.Fields[name]
	if !ok || r.Missing {
		return ""
	}
	return r.ChosenValue
}

// Trace returns the origins that produced name.
func (m MatchedFields) Trace(name string) []SourceOrigin {
	r, ok := m.Fields[name]
	if !ok {
		return nil
	}
	return r.OriginTrace
}

// Names returns the field names in sorted order.
func (m MatchedFields) Names() []string {
	names := make([]string, 0, len(m.Fields))
	for name := range m.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
