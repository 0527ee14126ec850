// Package identity deduplicates the persona records extracted from every
// rendition of a case into resolved identities with variant provenance.
package identity

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"concilia/internal/domain"
	"concilia/pkg/platform/text"
)

var personaNamespace = uuid.MustParse("6f1c2a9e-4b7d-5e3a-9c1f-2d8e7a6b5c40")

// Resolver clusters persona records. It holds only configuration and is
// safe for concurrent use.
type Resolver struct {
	cfg     Config
	aliases aliasTable
	score   func(a, b string) float64
}

// New builds a Resolver from cfg.
func New(cfg Config) (*Resolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.Precedence) == 0 {
		cfg.Precedence = domain.DefaultPrecedence()
	}
	r := &Resolver{cfg: cfg, aliases: newAliasTable(cfg.Aliases)}
	r.score = r.composite
	return r, nil
}

// NameScore returns the composite similarity of two names in [0,1].
func (r *Resolver) NameScore(a, b string) float64 {
	return r.score(a, b)
}

func (r *Resolver) composite(a, b string) float64 {
	ts := TokenSortSimilarity(a, b)
	jw := JaroWinklerSimilarity(a, b)
	if r.cfg.Composite == CompositeWeighted {
		return (r.cfg.TokenWeight*ts + r.cfg.JaroWeight*jw) / (r.cfg.TokenWeight + r.cfg.JaroWeight)
	}
	return max(ts, jw)
}

// Decide maps a score onto the thresholds. The bounds are inclusive: a score
// equal to AutoAccept auto-merges.
func (r *Resolver) Decide(score float64) Decision {
	switch {
	case score >= r.cfg.AutoAccept:
		return AutoMerge
	case score >= r.cfg.ReviewThreshold:
		return MergeWithReview
	default:
		return Distinct
	}
}

// link is the verdict for attaching one record to a cluster.
type link struct {
	decision Decision
	score    float64
	warning  string
}

// compare applies the RFC rules first and the name rules second.
func (r *Resolver) compare(a, b domain.PersonData) link {
	rfcA, rfcB := NormalizeRFC(a.RFC), NormalizeRFC(b.RFC)
	if rfcA != "" && rfcA == rfcB {
		return link{decision: AutoMerge, score: 1}
	}
	curpA, curpB := text.Identifier(a.CURP), text.Identifier(b.CURP)
	if curpA != "" && curpA == curpB && (rfcA == "" || rfcB == "" || OCRConfusable(rfcA, rfcB)) {
		return link{decision: AutoMerge, score: 1}
	}

	score := r.score(a.Name, b.Name)

	if rfcA != "" && rfcB != "" {
		switch {
		case score >= r.cfg.AutoAccept:
			return link{decision: MergeWithReview, score: score,
				warning: fmt.Sprintf("RFC %s and %s kept as variants of one persona", rfcA, rfcB)}
		case score >= r.cfg.ReviewThreshold && secondarySignal(a, b, rfcA, rfcB):
			return link{decision: MergeWithReview, score: score,
				warning: fmt.Sprintf("RFC %s and %s merged on name %.2f and a shared secondary signal", rfcA, rfcB, score)}
		}
		return link{decision: Distinct, score: score}
	}

	decision := r.Decide(score)
	if decision == MergeWithReview && r.aliases.confirms(a.Name, b.Name) {
		return link{decision: AutoMerge, score: r.cfg.AutoAccept}
	}
	if decision == MergeWithReview {
		return link{decision: decision, score: score,
			warning: fmt.Sprintf("name %q matched %q at %.2f", a.Name, b.Name, score)}
	}
	return link{decision: decision, score: score}
}

func secondarySignal(a, b domain.PersonData, rfcA, rfcB string) bool {
	if addr := text.Compact(a.Address); addr != "" && addr == text.Compact(b.Address) {
		return true
	}
	if dob := text.Identifier(a.DateOfBirth); dob != "" && dob == text.Identifier(b.DateOfBirth) {
		return true
	}
	return OCRConfusable(rfcA, rfcB)
}

type cluster struct {
	members    []domain.PersonData
	confidence float64
	warnings   []string
}

// Resolve clusters raw personas into identities. One bad record never fails
// the batch; it yields an identity whose ValidationState says what is
// missing.
func (r *Resolver) Resolve(raw []domain.PersonData) []domain.ResolvedIdentity {
	records := make([]domain.PersonData, len(raw))
	copy(records, raw)
	sort.SliceStable(records, func(i, j int) bool {
		return r.cfg.Precedence.Rank(records[i].Origin) < r.cfg.Precedence.Rank(records[j].Origin)
	})

	var clusters []*cluster
	for _, p := range records {
		best, bestLink := -1, link{}
		for i, c := range clusters {
			l := r.linkCluster(p, c)
			if l.decision == Distinct {
				continue
			}
			if best < 0 || l.decision > bestLink.decision || (l.decision == bestLink.decision && l.score > bestLink.score) {
				best, bestLink = i, l
			}
		}
		if best < 0 {
			clusters = append(clusters, &cluster{members: []domain.PersonData{p}, confidence: 1})
			continue
		}
		c := clusters[best]
		c.members = append(c.members, p)
		c.confidence = min(c.confidence, bestLink.score)
		if bestLink.warning != "" {
			c.warnings = append(c.warnings, bestLink.warning)
		}
	}

	out := make([]domain.ResolvedIdentity, 0, len(clusters))
	for _, c := range clusters {
		out = append(out, r.build(c))
	}
	return out
}

// linkCluster keeps the strongest link between p and any member. A record
// carrying an RFC must also pass the differing-RFC rule against every member
// holding another RFC, unless some member already shares its RFC; a member
// without an RFC never bridges two distinct RFCs.
func (r *Resolver) linkCluster(p domain.PersonData, c *cluster) link {
	rfc := NormalizeRFC(p.RFC)
	checkRFC := rfc != "" && !c.holdsRFC(rfc)
	var best, rfcLink link
	differing := false
	for i, m := range c.members {
		l := r.compare(m, p)
		if i == 0 || l.decision > best.decision || (l.decision == best.decision && l.score > best.score) {
			best = l
		}
		if other := NormalizeRFC(m.RFC); checkRFC && other != "" {
			if l.decision == Distinct {
				return link{decision: Distinct, score: l.score}
			}
			if !differing || l.score < rfcLink.score {
				differing, rfcLink = true, l
			}
		}
	}
	if differing {
		return rfcLink
	}
	return best
}

func (c *cluster) holdsRFC(rfc string) bool {
	for _, m := range c.members {
		if NormalizeRFC(m.RFC) == rfc {
			return true
		}
	}
	return false
}

func (r *Resolver) build(c *cluster) domain.ResolvedIdentity {
	id := domain.ResolvedIdentity{
		MatchConfidence: c.confidence,
		RFCVariants:     []domain.RfcVariant{},
		RelatedCaseIDs:  []string{},
		Origins:         []domain.SourceOrigin{},
	}

	var names, caseIDs []string
	rfcOrigins := map[string][]domain.SourceOrigin{}
	var rfcOrder []string
	seenOrigin := map[domain.SourceOrigin]struct{}{}
	var curps []string

	for _, m := range c.members {
		if name := text.CollapseSpaces(m.Name); name != "" {
			names = append(names, name)
		}
		caseIDs = append(caseIDs, m.CaseID)
		if _, ok := seenOrigin[m.Origin]; !ok && m.Origin != "" {
			seenOrigin[m.Origin] = struct{}{}
			id.Origins = append(id.Origins, m.Origin)
		}
		if rfc := NormalizeRFC(m.RFC); rfc != "" {
			if _, ok := rfcOrigins[rfc]; !ok {
				rfcOrder = append(rfcOrder, rfc)
			}
			rfcOrigins[rfc] = appendOrigin(rfcOrigins[rfc], m.Origin)
		}
		if curp := text.Identifier(m.CURP); curp != "" {
			curps = append(curps, curp)
		}
	}

	for _, rfc := range rfcOrder {
		id.RFCVariants = append(id.RFCVariants, domain.RfcVariant{
			Value:     rfc,
			SourceTag: domain.JoinOrigins(rfcOrigins[rfc]),
		})
	}
	id.NameVariants = text.DedupeBy(names, text.Normalize)
	if len(id.NameVariants) > 0 {
		id.CanonicalName = id.NameVariants[0]
	} else {
		id.Validation.AddMissing(domain.MissingPersonaName)
	}
	id.RelatedCaseIDs = append(id.RelatedCaseIDs, text.DedupeAndTrim(caseIDs)...)

	curps = text.DedupeAndTrim(curps)
	if len(curps) > 0 {
		id.CURP = curps[0]
	}
	if len(curps) > 1 {
		id.HasConflict = true
		id.Validation.AddWarning("CURP values disagree: " + strings.Join(curps, ", "))
	}
	if len(id.RFCVariants) == 0 {
		id.Validation.AddMissing("RFC")
	}
	if len(id.RFCVariants) > 1 {
		id.HasConflict = true
	}
	for _, w := range c.warnings {
		id.Validation.AddWarning(w)
	}

	id.PersonaID = personaID(id).String()
	return id
}

func appendOrigin(list []domain.SourceOrigin, o domain.SourceOrigin) []domain.SourceOrigin {
	for _, existing := range list {
		if existing == o {
			return list
		}
	}
	return append(list, o)
}

// personaID is stable across passes: it hashes the strongest identifier
// available.
func personaID(id domain.ResolvedIdentity) uuid.UUID {
	key := "name:" + text.Normalize(id.CanonicalName)
	switch {
	case len(id.RFCVariants) > 0:
		key = "rfc:" + id.RFCVariants[0].Value
	case id.CURP != "":
		key = "curp:" + id.CURP
	}
	return uuid.NewSHA1(personaNamespace, []byte(key))
}

// FindVariants returns every RFC variant held by an identity that knows rfc,
// either exactly or as an OCR-confusable spelling.
func FindVariants(rfc string, identities []domain.ResolvedIdentity) []domain.RfcVariant {
	want := NormalizeRFC(rfc)
	out := []domain.RfcVariant{}
	if want == "" {
		return out
	}
	seen := map[string]struct{}{}
	for _, id := range identities {
		if !holds(id, want) {
			continue
		}
		for _, v := range id.RFCVariants {
			if _, ok := seen[v.Value]; ok {
				continue
			}
			seen[v.Value] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

func holds(id domain.ResolvedIdentity, rfc string) bool {
	for _, v := range id.RFCVariants {
		if v.Value == rfc || OCRConfusable(v.Value, rfc) {
			return true
		}
	}
	return false
}
