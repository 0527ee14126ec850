package domain

// PersonData is one raw persona record as extracted from one rendition.
type PersonData struct {
	Name        string       `json:"name"`
	RFC         string       `json:"rfc,omitempty"`
	CURP        string       `json:"curp,omitempty"`
	Address     string       `json:"address,omitempty"`
	DateOfBirth string       `json:"date_of_birth,omitempty"`
	CaseID      string       `json:"case_id,omitempty"`
	Origin      SourceOrigin `json:"origin"`
}

// RfcVariant is one spelling of a persona's RFC and where it was seen.
// Uniqueness within an identity is by normalized Value.
type RfcVariant struct {
	Value     string `json:"value"`
	SourceTag string `json:"source_tag"`
}

// ResolvedIdentity is a deduplicated persona. Two raw records collapse into
// one identity only when their match score clears the accept threshold or
// their normalized RFCs are identical.
type ResolvedIdentity struct {
	PersonaID       string          `json:"persona_id"`
	CanonicalName   string          `json:"canonical_name"`
	NameVariants    []string        `json:"name_variants,omitempty"`
	RFCVariants     []RfcVariant    `json:"rfc_variants"`
	CURP            string          `json:"curp,omitempty"`
	RelatedCaseIDs  []string        `json:"related_case_ids"`
	MatchConfidence float64         `json:"match_confidence"`
	Origins         []SourceOrigin  `json:"origins"`
	HasConflict     bool            `json:"has_conflict"`
	Validation      ValidationState `json:"validation"`
}

// HasRFC reports whether at least one RFC variant is known.
func (r ResolvedIdentity) HasRFC() bool {
	return len(r.RFCVariants) > 0
}
