package text

import "strings"

// DedupeAndTrim removes duplicates and empty strings from a slice,
// trimming whitespace from each element. Order is preserved.
//
// Example:
//
//	DedupeAndTrim([]string{"  EXP-1 ", "EXP-2", "EXP-1", "", "  "})
//	// Returns: []string{"EXP-1", "EXP-2"}
func DedupeAndTrim(values []string) []string {
	return DedupeBy(values, strings.TrimSpace)
}

// DedupeBy keeps the first value for every distinct key(value), dropping
// values whose key is empty. Kept values are trimmed. Order is preserved.
func DedupeBy(values []string, key func(string) string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		k := key(v)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			result = append(result, strings.TrimSpace(v))
		}
	}

	return result
}
