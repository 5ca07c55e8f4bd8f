package aggregation

import (
	"sort"

	"github.com/okian/perimeter/internal/domain/model"
)

// DomainStats is the per-domain slice of a breakdown.
type DomainStats struct {
	Domain           model.Domain `json:"domain"`
	Total            int          `json:"total"`
	Resolved         int          `json:"resolved"`
	AveragePerimeter float64      `json:"average_perimeter"`
}

// Breakdown groups a claim set by domain, claim type and status.
type Breakdown struct {
	ByDomain []DomainStats           `json:"by_domain"`
	ByType   map[model.ClaimType]int `json:"by_type"`
	ByStatus map[model.Status]int    `json:"by_status"`
}

// NewBreakdown groups records. Every domain in domains is reported even when
// empty, as is every claim type and status. Domains seen in records but not
// listed are appended. ByDomain is ordered by domain name.
func NewBreakdown(records []model.Record, domains []model.Domain) Breakdown {
	b := Breakdown{
		ByType:   make(map[model.ClaimType]int),
		ByStatus: make(map[model.Status]int),
	}
	for _, t := range model.ClaimTypes() {
		b.ByType[t] = 0
	}
	for _, s := range model.Statuses() {
		b.ByStatus[s] = 0
	}

	type domainAcc struct {
		stats  DomainStats
		sum    float64
		scored int
	}
	byDomain := make(map[model.Domain]*domainAcc, len(domains))
	for _, d := range domains {
		byDomain[d] = &domainAcc{stats: DomainStats{Domain: d}}
	}

	for _, r := range records {
		b.ByType[r.Claim.Type]++
		b.ByStatus[r.Claim.Status]++

		d, ok := byDomain[r.Claim.Domain]
		if !ok {
			d = &domainAcc{stats: DomainStats{Domain: r.Claim.Domain}}
			byDomain[r.Claim.Domain] = d
		}
		d.stats.Total++
		if r.Claim.Status == model.StatusResolved {
			d.stats.Resolved++
		}
		if r.Scored() {
			d.scored++
			d.sum += r.Outcome.PerimeterScore
		}
	}

	b.ByDomain = make([]DomainStats, 0, len(byDomain))
	for _, d := range byDomain {
		if d.scored > 0 {
			d.stats.AveragePerimeter = d.sum / float64(d.scored)
		}
		b.ByDomain = append(b.ByDomain, d.stats)
	}
	sort.Slice(b.ByDomain, func(i, j int) bool { return b.ByDomain[i].Domain < b.ByDomain[j].Domain })
	return b
}
