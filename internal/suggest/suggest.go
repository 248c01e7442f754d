// Package suggest proposes near matches for mistyped names.
package suggest

import (
	"sort"
	"strings"
)

// Limit is the most names Closest returns.
const Limit = 3

type match struct {
	name     string
	distance int
}

// Closest returns up to Limit candidates within a length-scaled edit
// distance of name, nearest first. Case is ignored and exact matches are
// skipped.
func Closest(name string, candidates []string) []string {
	if name == "" {
		return nil
	}
	name = strings.ToLower(name)
	maxDistance := threshold(name)
	var matches []match
	for _, candidate := range candidates {
		lower := strings.ToLower(candidate)
		if candidate == "" || lower == name {
			continue
		}
		if d := distance(name, lower); d <= maxDistance {
			matches = append(matches, match{name: candidate, distance: d})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].distance != matches[j].distance {
			return matches[i].distance < matches[j].distance
		}
		return matches[i].name < matches[j].name
	})
	if len(matches) > Limit {
		matches = matches[:Limit]
	}
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = m.name
	}
	return names
}

// Hint formats the result of Closest for an error message, or returns ""
// when nothing is close.
func Hint(name string, candidates []string) string {
	names := Closest(name, candidates)
	switch len(names) {
	case 0:
		return ""
	case 1:
		return "did you mean " + quote(names[0]) + "?"
	}
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quote(n)
	}
	return "did you mean one of " + strings.Join(quoted, ", ") + "?"
}

func quote(s string) string {
	return "'" + s + "'"
}

func threshold(name string) int {
	switch n := len(name); {
	case n <= 3:
		return 1
	case n <= 5:
		return 2
	default:
		return 3
	}
}

// distance is the Levenshtein distance between a and b, kept to two rows.
func distance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}
	prev := make([]int, len(ra)+1)
	curr := make([]int, len(ra)+1)
	for i := range prev {
		prev[i] = i
	}
	for j := 1; j <= len(rb); j++ {
		curr[0] = j
		for i := 1; i <= len(ra); i++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[i] = min(prev[i]+1, curr[i-1]+1, prev[i-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(ra)]
}
