// Package aggregation derives per-forecaster summaries, breakdowns, score
// histograms and trend series from claims and their outcomes. Everything here
// is recomputed on demand and holds no state.
package aggregation

import (
	"sort"

	"github.com/okian/perimeter/internal/domain/model"
	"github.com/okian/perimeter/internal/domain/scoring"
)

// Summary is one forecaster's aggregate over a filtered claim set.
type Summary struct {
	ForecasterID      string  `json:"forecaster_id"`
	Name              string  `json:"name"`
	Username          string  `json:"username,omitempty"`
	Platform          string  `json:"platform,omitempty"`
	Verified          bool    `json:"verified"`
	TotalClaims       int     `json:"total_claims"`
	ResolvedClaims    int     `json:"resolved_claims"`
	ScoredClaims      int     `json:"scored_claims"`
	AveragePerimeter  float64 `json:"average_perimeter"`
	WeightedPerimeter float64 `json:"weighted_perimeter"`
}

// Scored reports whether the summary has at least one scored claim.
func (s Summary) Scored() bool { return s.ScoredClaims > 0 }

type accumulator struct {
	summary  Summary
	scores   float64
	weighted []scoring.Sample
}

// Summarize groups records by forecaster. Records without a forecaster are
// skipped; forecasters absent from the lookup use their ID as display name.
// A nil weigher means uniform weights. Output is ordered by forecaster ID.
func Summarize(records []model.Record, forecasters map[string]model.Forecaster, weigher scoring.Weigher) []Summary {
	if weigher == nil {
		weigher = scoring.UniformWeight{}
	}

	acc := make(map[string]*accumulator)
	for _, r := range records {
		id := r.Claim.ForecasterID
		if id == "" {
			continue
		}
		a, ok := acc[id]
		if !ok {
			a = &accumulator{summary: newSummary(id, forecasters)}
			acc[id] = a
		}

		a.summary.TotalClaims++
		if r.Claim.Status == model.StatusResolved {
			a.summary.ResolvedClaims++
		}
		if r.Scored() {
			a.summary.ScoredClaims++
			a.scores += r.Outcome.PerimeterScore
			a.weighted = append(a.weighted, scoring.Sample{
				Score:  r.Outcome.PerimeterScore,
				Weight: weigher.Weight(r.Claim, *r.Outcome),
			})
		}
	}

	out := make([]Summary, 0, len(acc))
	for _, a := range acc {
		s := a.summary
		if s.ScoredClaims > 0 {
			s.AveragePerimeter = a.scores / float64(s.ScoredClaims)
			s.WeightedPerimeter = scoring.Mean(a.weighted)
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ForecasterID < out[j].ForecasterID })
	return out
}

func newSummary(id string, forecasters map[string]model.Forecaster) Summary {
	f, ok := forecasters[id]
	if !ok {
		return Summary{ForecasterID: id, Name: id}
	}
	return Summary{
		ForecasterID: id,
		Name:         f.DisplayName(),
		Username:     f.Username,
		Platform:     f.Platform,
		Verified:     f.Verified,
	}
}
