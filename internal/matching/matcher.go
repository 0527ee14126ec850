// Package matching reconciles the values each rendition reported for the same
// logical field. It is pure: no I/O, no clock, and identical input always
// yields an identical result.
package matching

import (
	"math"
	"sort"

	"concilia/internal/domain"
	"concilia/pkg/platform/text"
)

// Config controls how values are ranked and compared.
type Config struct {
	// Precedence orders origins from most to least reliable. The chosen value
	// always comes from the best-ranked origin, never from the largest group.
	Precedence domain.Precedence
	// CompactFields are compared with separators removed, so "0012-345678"
	// and "0012345678" agree. OCR letter/digit confusions are not folded.
	CompactFields []string
}

// DefaultConfig returns the precedence Manual > Xml > Docx > Pdf > Ocr > Derived
// and compact comparison for identifiers and account numbers.
func DefaultConfig() Config {
	return Config{
		Precedence:    domain.DefaultPrecedence(),
		CompactFields: []string{domain.FieldCuenta, domain.FieldNumeroExpediente, domain.FieldNumeroOficio, "RFC", "CURP"},
	}
}

// Matcher is safe for concurrent use; it holds only immutable configuration.
type Matcher struct {
	precedence domain.Precedence
	compact    map[string]struct{}
}

// New builds a Matcher. An empty precedence falls back to the default.
func New(cfg Config) *Matcher {
	if len(cfg.Precedence) == 0 {
		cfg.Precedence = domain.DefaultPrecedence()
	}
	compact := make(map[string]struct{}, len(cfg.CompactFields))
	for _, f := range cfg.CompactFields {
		compact[f] = struct{}{}
	}
	return &Matcher{precedence: cfg.Precedence, compact: compact}
}

type group struct {
	key        string
	count      int
	bestRank   int
	confidence int
}

// Match reconciles sources for fieldName. Empty values are dropped; every
// other value is retained in AllValues whether or not it agrees.
//
// Panics when fieldName is empty.
func (m *Matcher) Match(fieldName string, sources []domain.FieldValue) domain.FieldMatchResult {
	if fieldName == "" {
		panic("matching: empty field name")
	}

	values := make([]domain.FieldValue, 0, len(sources))
	for _, v := range sources {
		if v.NormalizedValue == "" {
			v.NormalizedValue = text.Normalize(v.RawValue)
		}
		if v.IsEmpty() {
			continue
		}
		if v.FieldName == "" {
			v.FieldName = fieldName
		}
		values = append(values, v)
	}

	if len(values) == 0 {
		return domain.FieldMatchResult{
			FieldName:   fieldName,
			AllValues:   []domain.FieldValue{},
			Missing:     true,
			OriginTrace: []domain.SourceOrigin{},
		}
	}

	m.sortValues(values)

	groups := make([]*group, 0, len(values))
	byKey := make(map[string]*group, len(values))
	for _, v := range values {
		key := m.key(fieldName, v)
		g, ok := byKey[key]
		if !ok {
			g = &group{key: key, bestRank: m.precedence.Rank(v.SourceOrigin)}
			byKey[key] = g
			groups = append(groups, g)
		}
		g.count++
		g.confidence += v.ExtractionConfidence
	}

	plurality := groups[0]
	for _, g := range groups[1:] {
		if g.count > plurality.count ||
			(g.count == plurality.count && g.bestRank == plurality.bestRank && g.confidence > plurality.confidence) {
			plurality = g
		}
	}

	chosen := values[0]
	return domain.FieldMatchResult{
		FieldName:      fieldName,
		ChosenValue:    chosen.RawValue,
		ChosenOrigin:   chosen.SourceOrigin,
		AllValues:      values,
		AgreementLevel: percent(plurality.count, len(values)),
		HasConflict:    len(groups) > 1,
		OriginTrace:    uniqueOrigins(values),
	}
}

// MatchAll groups values by field name and matches each group. Every name in
// required gets a result, missing or not.
func (m *Matcher) MatchAll(values []domain.FieldValue, required []string) domain.MatchedFields {
	byField := make(map[string][]domain.FieldValue)
	for _, name := range required {
		byField[name] = nil
	}
	for _, v := range values {
		if v.FieldName == "" {
			panic("matching: field value without field name")
		}
		byField[v.FieldName] = append(byField[v.FieldName], v)
	}

	out := domain.MatchedFields{
		Fields:            make(map[string]domain.FieldMatchResult, len(byField)),
		ConflictingFields: []string{},
		MissingFields:     []string{},
	}
	total, present := 0, 0
	for name, vs := range byField {
		res := m.Match(name, vs)
		out.Fields[name] = res
		switch {
		case res.Missing:
			out.MissingFields = append(out.MissingFields, name)
			continue
		case res.HasConflict:
			out.ConflictingFields = append(out.ConflictingFields, name)
		}
		total += res.AgreementLevel
		present++
	}
	sort.Strings(out.ConflictingFields)
	sort.Strings(out.MissingFields)
	if present > 0 {
		out.OverallAgreement = int(math.Round(float64(total) / float64(present)))
	}
	return out
}

func (m *Matcher) key(fieldName string, v domain.FieldValue) string {
	if _, ok := m.compact[fieldName]; ok {
		return text.Compact(v.RawValue)
	}
	return v.NormalizedValue
}

// sortValues orders by precedence, then confidence, then value, so the
// output does not depend on input order.
func (m *Matcher) sortValues(values []domain.FieldValue) {
	sort.SliceStable(values, func(i, j int) bool {
		a, b := values[i], values[j]
		if ra, rb := m.precedence.Rank(a.SourceOrigin), m.precedence.Rank(b.SourceOrigin); ra != rb {
			return ra < rb
		}
		if a.SourceOrigin != b.SourceOrigin {
			return a.SourceOrigin < b.SourceOrigin
		}
		if a.ExtractionConfidence != b.ExtractionConfidence {
			return a.ExtractionConfidence > b.ExtractionConfidence
		}
		if a.RawValue != b.RawValue {
			return a.RawValue < b.RawValue
		}
		return a.FieldName < b.FieldName
	})
}

func uniqueOrigins(values []domain.FieldValue) []domain.SourceOrigin {
	seen := make(map[domain.SourceOrigin]struct{}, len(values))
	out := make([]domain.SourceOrigin, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v.SourceOrigin]; ok {
			continue
		}
		seen[v.SourceOrigin] = struct{}{}
		out = append(out, v.SourceOrigin)
	}
	return out
}

func percent(part, whole int) int {
	if whole == 0 {
		return 0
	}
	return int(math.Round(float64(part) * 100 / float64(whole)))
}
