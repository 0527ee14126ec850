package domain

import "sort"

// ValidationState makes absence explicit. A field that could not be filled
// is listed by name in MissingFields; the entity is valid iff that set is
// empty. Warnings flag items for human review without making the entity
// invalid, and Notes carry diagnostics such as an unparsable date.
//
// All three lists are kept sorted and unique so two states built from the
// same facts compare equal.
type ValidationState struct {
	MissingFields []string `json:"missing_fields"`
	Warnings      []string `json:"warnings,omitempty"`
	Notes         []string `json:"notes,omitempty"`
}

// IsValid reports whether nothing is missing.
func (v ValidationState) IsValid() bool {
	return len(v.MissingFields) == 0
}

// NeedsReview reports whether anything is missing or flagged.
func (v ValidationState) NeedsReview() bool {
	return len(v.MissingFields) > 0 || len(v.Warnings) > 0
}

// AddMissing records name as missing.
func (v *ValidationState) AddMissing(name string) {
	v.MissingFields = insertSorted(v.MissingFields, name)
}

// AddWarning flags msg for review.
func (v *ValidationState) AddWarning(msg string) {
	v.Warnings = insertSorted(v.Warnings, msg)
}

// AddNote records a diagnostic.
func (v *ValidationState) AddNote(msg string) {
	v.Notes = insertSorted(v.Notes, msg)
}

// HasMissing reports whether name is recorded as missing.
func (v ValidationState) HasMissing(name string) bool {
	i := sort.SearchStrings(v.MissingFields, name)
	return i < len(v.MissingFields) && v.MissingFields[i] == name
}

// Merge folds other into v, prefixing every entry with prefix when it is
// not empty ("ComplianceAction[0]" + "Cuenta" -> "ComplianceAction[0].Cuenta").
func (v *ValidationState) Merge(prefix string, other ValidationState) {
	for _, m := range other.MissingFields {
		v.AddMissing(qualify(prefix, m))
	}
	for _, w := range other.Warnings {
		v.AddWarning(qualify(prefix, w))
	}
	for _, n := range other.Notes {
		v.AddNote(qualify(prefix, n))
	}
}

func qualify(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func insertSorted(list []string, s string) []string {
	if s == "" {
		return list
	}
	i := sort.SearchStrings(list, s)
	if i < len(list) && list[i] == s {
		return list
	}
	list = append(list, "")
	copy(list[i+1:], list[i:])
	list[i] = s
	return list
}
