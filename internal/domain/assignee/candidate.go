// Package assignee expands an organization name into the candidate name
// variations tried against upstream registries.  Registries index the same
// company under inconsistent legal forms ("Acme", "Acme LLC", "Acme Inc."),
// so a lookup that stops at the literal query name under-reports activity.
package assignee

import "strings"

// variantSuffixes are the legal-form suffixes appended to the base name, in
// the order they are tried.  The list is fixed: it mirrors the forms US
// registries actually index, and extending it widens every lookup fan-out.
var variantSuffixes = []string{
	" LLC",
	" L.L.C.",
	" INC",
	" INC.",
	" CORP",
	" LTD",
	" COMPANY",
}

// Variations returns the ordered, deduplicated candidate names derived from
// base.  The first element is always the trimmed base name.  When tryVariants
// is true, each suffix variant follows in fixed order; exact-string duplicates
// are dropped keeping the first occurrence.  When tryVariants is false the
// result is exactly one candidate, the trimmed base.
//
// A base that trims to empty yields nil; callers validate emptiness before
// aggregation, so nil here only guards against misuse.
func Variations(base string, tryVariants bool) []string {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		return nil
	}
	if !tryVariants {
		return []string{trimmed}
	}

	candidates := make([]string, 0, len(variantSuffixes)+1)
	seen := make(map[string]struct{}, len(variantSuffixes)+1)

	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		candidates = append(candidates, name)
	}

	add(trimmed)
	for _, suffix := range variantSuffixes {
		add(trimmed + suffix)
	}
	return candidates
}

// SuffixCount reports how many suffix variants are tried, exposed for sizing
// fan-out buffers without duplicating the list.
func SuffixCount() int { return len(variantSuffixes) }
