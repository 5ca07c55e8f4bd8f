package scoring

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Matcher names accepted by MatcherByName.
const (
	MatcherContainment = "containment"
	MatcherLevenshtein = "levenshtein"
)

// Categorical partial-credit levels.
const (
	exactScore       = 100
	containmentScore = 50
)

// CategoricalMatcher scores a predicted label against the actual one.
type CategoricalMatcher interface {
	Match(predicted, actual string) float64
}

// ContainmentMatcher awards 100 for an exact match, 50 when either label
// contains the other and 0 otherwise. Labels are trimmed and lower-cased.
type ContainmentMatcher struct{}

// Match implements CategoricalMatcher.
func (ContainmentMatcher) Match(predicted, actual string) float64 {
	p, a := normalizeLabel(predicted), normalizeLabel(actual)
	if s, ok := containment(p, a); ok {
		return s
	}
	return 0
}

// LevenshteinMatcher behaves like ContainmentMatcher for exact and contained
// labels and gives the remaining pairs up to 50 points scaled by their edit
// distance similarity.
type LevenshteinMatcher struct{}

// Match implements CategoricalMatcher.
func (LevenshteinMatcher) Match(predicted, actual string) float64 {
	p, a := normalizeLabel(predicted), normalizeLabel(actual)
	if s, ok := containment(p, a); ok {
		return s
	}
	longest := max(utf8.RuneCountInString(p), utf8.RuneCountInString(a))
	if longest == 0 {
		return 0
	}
	similarity := 1 - float64(levenshtein.ComputeDistance(p, a))/float64(longest)
	if similarity <= 0 {
		return 0
	}
	// p != a here, so similarity < 1 and the score stays below containment.
	return containmentScore * similarity
}

// MatcherByName resolves a configured matcher name. Empty means containment.
func MatcherByName(name string) (CategoricalMatcher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", MatcherContainment:
		return ContainmentMatcher{}, nil
	case MatcherLevenshtein:
		return LevenshteinMatcher{}, nil
	}
	return nil, ErrUnknownMatcher
}

func containment(p, a string) (float64, bool) {
	if p == a {
		return exactScore, true
	}
	if p == "" || a == "" {
		return 0, false
	}
	if strings.Contains(p, a) || strings.Contains(a, p) {
		return containmentScore, true
	}
	return 0, false
}

// normalizeLabel trims and lower-cases. A Caser is stateful, so one is made
// per call.
func normalizeLabel(s string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(s))
}
