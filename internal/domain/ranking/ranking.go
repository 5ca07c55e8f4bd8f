// Package ranking orders forecaster summaries into a leaderboard.
package ranking

import (
	"sort"

	"github.com/okian/perimeter/internal/domain/aggregation"
)

// DefaultMinClaims is the minimum resolved claims to appear on a leaderboard.
const DefaultMinClaims = 1

// DefaultLimit is the leaderboard size when the caller gives none.
const DefaultLimit = 100

// Entry is a ranked leaderboard row. Rank is 1-based.
type Entry struct {
	Rank int `json:"rank"`
	aggregation.Summary
}

// Policy filters and orders summaries.
type Policy struct {
	// MinClaims drops forecasters with fewer resolved claims. Values below 1
	// fall back to DefaultMinClaims.
	MinClaims int
	// Limit truncates the result when positive.
	Limit int
}

// Rank applies the policy. Order: weighted perimeter desc, then average
// perimeter desc, forecaster ID asc to break remaining ties. Forecasters
// without a scored claim sort after every scored one. The input is not
// modified.
func (p Policy) Rank(summaries []aggregation.Summary) []Entry {
	minClaims := p.MinClaims
	if minClaims < 1 {
		minClaims = DefaultMinClaims
	}

	kept := make([]aggregation.Summary, 0, len(summaries))
	for _, s := range summaries {
		if s.ResolvedClaims >= minClaims {
			kept = append(kept, s)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool { return less(kept[i], kept[j]) })

	if p.Limit > 0 && len(kept) > p.Limit {
		kept = kept[:p.Limit]
	}

	out := make([]Entry, len(kept))
	for i, s := range kept {
		out[i] = Entry{Rank: i + 1, Summary: s}
	}
	return out
}

func less(a, b aggregation.Summary) bool {
	if a.Scored() != b.Scored() {
		return a.Scored()
	}
	if a.Scored() {
		if a.WeightedPerimeter != b.WeightedPerimeter {
			return a.WeightedPerimeter > b.WeightedPerimeter
		}
		if a.AveragePerimeter != b.AveragePerimeter {
			return a.AveragePerimeter > b.AveragePerimeter
		}
	}
	return a.ForecasterID < b.ForecasterID
}
