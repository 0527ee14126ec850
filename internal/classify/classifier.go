// Package classify maps legal directive text onto the compliance action
// taxonomy with a deterministic phrase table. Text no rule recognizes is
// Unknown; the classifier never guesses.
package classify

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"concilia/internal/domain"
	"concilia/pkg/platform/text"
)

var (
	cuentaPattern = regexp.MustCompile(`(?i)cuenta(?:\s+(?:n[uú]mero|no\.?|num\.?|clabe))?\s*:?\s*([0-9][0-9\- ]{5,}[0-9])`)
	montoPattern  = regexp.MustCompile(`\$\s?([0-9]+(?:,[0-9]{3})*(?:\.[0-9]{2})?)`)
	basisPattern  = regexp.MustCompile(`(?i)(art[ií]culos?\s+[0-9][^.;\n]*)`)
)

type phrase struct {
	kind     domain.ActionKind
	text     string
	words    int
	priority int
}

// Classifier is immutable after New and safe for concurrent use.
type Classifier struct {
	phrases []phrase
}

// New compiles cfg into a Classifier.
func New(cfg Config) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var phrases []phrase
	for _, r := range cfg.Rules {
		for _, p := range r.Phrases {
			norm := wordText(p)
			if norm == "" {
				continue
			}
			phrases = append(phrases, phrase{
				kind:     r.Kind,
				text:     norm,
				words:    len(strings.Fields(norm)),
				priority: r.Priority,
			})
		}
	}
	// Longest phrase first, then priority, so the first hit is the winner.
	sort.SliceStable(phrases, func(i, j int) bool {
		a, b := phrases[i], phrases[j]
		if a.words != b.words {
			return a.words > b.words
		}
		if len(a.text) != len(b.text) {
			return len(a.text) > len(b.text)
		}
		if a.priority != b.priority {
			return a.priority > b.priority
		}
		return a.text < b.text
	})
	return &Classifier{phrases: phrases}, nil
}

// Match returns the kind of the best phrase found in legalText.
func (c *Classifier) Match(legalText string) (domain.ActionKind, string, bool) {
	hits := c.hits(legalText)
	if len(hits) == 0 {
		return domain.ActionUnknown, "", false
	}
	return hits[0].kind, hits[0].text, true
}

// hits returns every phrase found in legalText, best first. A matched span
// is consumed so a shorter phrase inside it does not match again.
func (c *Classifier) hits(legalText string) []phrase {
	haystack := " " + wordText(legalText) + " "
	if strings.TrimSpace(haystack) == "" {
		return nil
	}
	var out []phrase
	for _, p := range c.phrases {
		needle := " " + p.text + " "
		if !strings.Contains(haystack, needle) {
			continue
		}
		out = append(out, p)
		for strings.Contains(haystack, needle) {
			haystack = strings.Replace(haystack, needle, " | ", 1)
		}
	}
	return out
}

// distinctKinds lists the resolved kinds among hits, best first.
func distinctKinds(hits []phrase) []string {
	seen := map[domain.ActionKind]struct{}{}
	var kinds []string
	for _, h := range hits {
		if _, ok := seen[h.kind]; ok || !h.kind.IsResolved() {
			continue
		}
		seen[h.kind] = struct{}{}
		kinds = append(kinds, string(h.kind))
	}
	return kinds
}

// Classify infers the action of one directive. Structured fields win over
// text; text only fills what the fields leave empty. Whatever the action
// needs but cannot find is listed in its ValidationState.
func (c *Classifier) Classify(legalText string, fields domain.MatchedFields) domain.ComplianceAction {
	action := domain.ComplianceAction{Origins: []domain.SourceOrigin{}}
	origins := newOriginSet()

	textKind, textPhrase, textOK := c.Match(legalText)
	fieldKind, fieldOK := c.kindFromField(fields.Value(domain.FieldMedida))

	switch {
	case fieldOK:
		action.Kind = fieldKind
		action.MatchedPhrase = fields.Value(domain.FieldMedida)
		origins.add(fields.Trace(domain.FieldMedida)...)
		if textOK && textKind != fieldKind && textKind.IsResolved() {
			action.Validation.AddWarning(fmt.Sprintf("Medida says %s but the text reads as %s", fieldKind, textKind))
		}
	case textOK:
		action.Kind = textKind
		action.MatchedPhrase = textPhrase
		origins.add(domain.OriginDerived)
		if kinds := distinctKinds(c.hits(legalText)); len(kinds) > 1 {
			action.Validation.AddWarning("directive matches several measures: " + strings.Join(kinds, ", "))
		}
	default:
		action.Kind = domain.ActionUnknown
	}

	action.Cuenta = fieldOrPattern(fields, domain.FieldCuenta, legalText, cuentaPattern, origins)
	action.Cuenta = strings.Join(strings.Fields(action.Cuenta), "")
	action.Monto = fieldOrPattern(fields, domain.FieldMonto, legalText, montoPattern, origins)
	action.Producto = fieldOrPattern(fields, domain.FieldProducto, "", nil, origins)
	action.LegalBasis = fieldOrPattern(fields, domain.FieldFundamentoLegal, legalText, basisPattern, origins)
	action.LegalBasis = strings.TrimSpace(action.LegalBasis)

	if !action.Kind.IsResolved() {
		action.RequiresReview = true
		action.Validation.AddMissing(domain.MissingMeasure)
	}
	if action.Kind.RequiresAccount() && action.Cuenta == "" {
		action.Validation.AddMissing(domain.MissingCuenta)
	}
	if action.Kind.RequiresAmount() && action.Monto == "" {
		action.Validation.AddMissing(domain.MissingMonto)
	}
	if len(action.Validation.Warnings) > 0 {
		action.RequiresReview = true
	}

	action.Origins = origins.list()
	return action
}

// kindFromField resolves the Medida field through the alias table first and
// the phrase table second.
func (c *Classifier) kindFromField(medida string) (domain.ActionKind, bool) {
	if strings.TrimSpace(medida) == "" {
		return domain.ActionUnknown, false
	}
	if k, ok := domain.ParseActionKind(medida); ok {
		return k, true
	}
	k, _, ok := c.Match(medida)
	return k, ok
}

func fieldOrPattern(fields domain.MatchedFields, name, legalText string, re *regexp.Regexp, origins *originSet) string {
	if v := fields.Value(name); v != "" {
		origins.add(fields.Trace(name)...)
		return v
	}
	if re == nil || legalText == "" {
		return ""
	}
	m := re.FindStringSubmatch(legalText)
	if len(m) < 2 {
		return ""
	}
	origins.add(domain.OriginDerived)
	return m[1]
}

// wordText normalizes s and replaces punctuation with spaces so phrases
// match on whole words only.
func wordText(s string) string {
	n := text.Normalize(s)
	n = strings.Map(func(r rune) rune {
		if r == ' ' || ('a' <= r && r <= 'z') || ('0' <= r && r <= '9') {
			return r
		}
		if r > 0x7f {
			return r
		}
		return ' '
	}, n)
	return text.CollapseSpaces(n)
}

type originSet struct {
	seen  map[domain.SourceOrigin]struct{}
	order []domain.SourceOrigin
}

func newOriginSet() *originSet {
	return &originSet{seen: map[domain.SourceOrigin]struct{}{}}
}

func (s *originSet) add(origins ...domain.SourceOrigin) {
	for _, o := range origins {
		if _, ok := s.seen[o]; ok {
			continue
		}
		s.seen[o] = struct{}{}
		s.order = append(s.order, o)
	}
}

func (s *originSet) list() []domain.SourceOrigin {
	if s.order == nil {
		return []domain.SourceOrigin{}
	}
	return s.order
}
