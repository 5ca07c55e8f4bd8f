package seed

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// gdp claims use the economy/gdp range [-20, 20].
const (
	seedDomain    = "economy"
	seedSubtype   = "gdp"
	gdpRangeSize  = 40.0
	maxErrorShare = 0.8
	platformBase  = "seed"
)

// Profile is a generated forecaster with planted accuracy. ErrorShare is the
// fraction of the numeric range its predictions miss by.
type Profile struct {
	Username   string
	Name       string
	Platform   string
	ErrorShare float64
	Correct    bool // categorical predictions hit
}

// Item is one claim to create and resolve.
type Item struct {
	Profile int
	Claim   claimRequest
	Actual  actualRequest
	ClaimID string
}

// Plan is the generated workload. Profiles are ordered best first.
type Plan struct {
	Platform string
	Profiles []Profile
	Items    []Item
}

// Generate builds a deterministic workload for cfg: forecaster i misses by
// i*0.8/n of the range, and the first half call categories right, which makes
// each forecaster strictly better than the next.
func Generate(cfg Config) Plan {
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	platform := platformBase + "-" + cfg.RunID

	plan := Plan{Platform: platform, Profiles: make([]Profile, cfg.Forecasters)}
	for i := range plan.Profiles {
		plan.Profiles[i] = Profile{
			Username:   fmt.Sprintf("forecaster-%02d", i),
			Name:       fmt.Sprintf("Seed Forecaster %02d", i),
			Platform:   platform,
			ErrorShare: float64(i) * maxErrorShare / float64(cfg.Forecasters),
			Correct:    i < cfg.Forecasters/2,
		}
	}

	for p, prof := range plan.Profiles {
		author := &forecasterRequest{Name: prof.Name, Username: prof.Username, Platform: prof.Platform}
		for j := 0; j < cfg.ClaimsPerForecaster; j++ {
			item := Item{Profile: p}
			switch j % 3 {
			case 0:
				actual := math.Round((rng.Float64()*10-5)*100) / 100
				miss := prof.ErrorShare * gdpRangeSize
				if rng.IntN(2) == 0 {
					miss = -miss
				}
				item.Claim = claimRequest{
					Text:           fmt.Sprintf("GDP growth prints at %.2f%%", actual+miss),
					Domain:         seedDomain,
					Subtype:        seedSubtype,
					ClaimType:      "numeric",
					PredictedValue: ptr(actual + miss),
				}
				item.Actual = actualRequest{ActualValue: ptr(actual)}
			case 1:
				winner := []string{"Incumbent", "Challenger", "Third Party"}[rng.IntN(3)]
				guess := winner
				if !prof.Correct {
					guess = "Nobody"
				}
				item.Claim = claimRequest{
					Text:              guess + " wins the election",
					Domain:            "politics",
					Subtype:           "election",
					ClaimType:         "categorical",
					PredictedCategory: ptr(guess),
				}
				item.Actual = actualRequest{ActualCategory: ptr(winner)}
			default:
				item.Claim = claimRequest{
					Text:                 "Launch happens on schedule",
					Domain:               "technology",
					ClaimType:            "probabilistic",
					PredictedProbability: ptr(1 - prof.ErrorShare),
				}
				item.Actual = actualRequest{ActualProbability: ptr(1.0)}
			}
			item.Claim.Forecaster = author
			item.Actual.DataSource = "seed"
			plan.Items = append(plan.Items, item)
		}
	}
	return plan
}

func ptr[T any](v T) *T { return &v }
