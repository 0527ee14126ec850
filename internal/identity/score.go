package identity

import (
	"sort"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"concilia/pkg/platform/text"
)

// Decision is the outcome of comparing two name scores against thresholds.
type Decision int

const (
	Distinct Decision = iota
	MergeWithReview
	AutoMerge
)

func (d Decision) String() string {
	switch d {
	case AutoMerge:
		return "auto_merge"
	case MergeWithReview:
		return "review"
	default:
		return "distinct"
	}
}

// TokenSortSimilarity compares the names with their tokens sorted, so
// "Lopez Perez Juan" and "Juan Lopez Perez" score 1.
func TokenSortSimilarity(a, b string) float64 {
	ta, tb := sortedTokens(a), sortedTokens(b)
	if ta == "" || tb == "" {
		return 0
	}
	return strutil.Similarity(ta, tb, metrics.NewLevenshtein())
}

// JaroWinklerSimilarity compares the normalized names character by character.
func JaroWinklerSimilarity(a, b string) float64 {
	na, nb := text.Normalize(a), text.Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	return strutil.Similarity(na, nb, metrics.NewJaroWinkler())
}

func sortedTokens(s string) string {
	tokens := text.Tokens(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// aliasTable maps every known spelling to one canonical spelling.
type aliasTable map[string]string

func newAliasTable(groups [][]string) aliasTable {
	t := make(aliasTable)
	for _, g := range groups {
		if len(g) == 0 {
			continue
		}
		canonical := text.Normalize(g[0])
		for _, v := range g {
			t[text.Normalize(v)] = canonical
		}
	}
	return t
}

// confirms reports whether a and b become the same token-sorted name once
// every token is replaced by its canonical spelling.
func (t aliasTable) confirms(a, b string) bool {
	if len(t) == 0 {
		return false
	}
	ca, cb := t.canonical(a), t.canonical(b)
	return ca != "" && ca == cb
}

func (t aliasTable) canonical(s string) string {
	tokens := text.Tokens(s)
	for i, tok := range tokens {
		if c, ok := t[tok]; ok {
			tokens[i] = c
		}
	}
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}
