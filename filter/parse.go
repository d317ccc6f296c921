package filter

import (
	"fmt"
	"strings"

	lev "github.com/agnivade/levenshtein"
)

// maxSuggestDistance bounds how far a typo may be from a real name before we
// stop offering it as a suggestion.
const maxSuggestDistance = 6

// ParseType resolves a case-insensitive category name. Unknown names produce
// an error that suggests the closest known name.
func ParseType(name string) (Type, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return 0, fmt.Errorf("filter: empty type name")
	}
	for _, t := range AllTypes() {
		if strings.EqualFold(t.String(), trimmed) {
			return t, nil
		}
		// Accept the short form without the "Log" suffix (e.g. "CellInfo").
		if strings.EqualFold(strings.TrimSuffix(t.String(), "Log"), trimmed) {
			return t, nil
		}
	}
	if suggestion, ok := closestName(trimmed); ok {
		return 0, fmt.Errorf("filter: unknown type %q (did you mean %s?)", name, suggestion)
	}
	return 0, fmt.Errorf("filter: unknown type %q", name)
}

// ParseTypes resolves a list of names, failing on the first unknown one.
func ParseTypes(names []string) ([]Type, error) {
	out := make([]Type, 0, len(names))
	for _, n := range names {
		t, err := ParseType(n)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func closestName(input string) (string, bool) {
	lower := strings.ToLower(input)
	best := ""
	bestDist := maxSuggestDistance + 1
	for _, t := range AllTypes() {
		d := lev.ComputeDistance(lower, strings.ToLower(t.String()))
		if d < bestDist {
			best, bestDist = t.String(), d
		}
	}
	return best, best != ""
}
