package aggregation

import (
	"time"

	"github.com/okian/perimeter/internal/domain/model"
)

// DefaultActivityWindow bounds the recent-activity counters.
const DefaultActivityWindow = 7 * 24 * time.Hour

// Totals counts claims by lifecycle state.
type Totals struct {
	Claims   int `json:"total_claims"`
	Resolved int `json:"resolved_claims"`
	Pending  int `json:"pending_claims"`
	Expired  int `json:"expired_claims"`
	Invalid  int `json:"invalid_claims"`
	Scored   int `json:"scored_claims"`
}

// Activity is the recent-activity block of a snapshot.
type Activity struct {
	Since            time.Time `json:"since"`
	ClaimsCreated    int       `json:"claims_created"`
	OutcomesVerified int       `json:"outcomes_verified"`
}

// Snapshot is the analytics view of a filtered claim set.
type Snapshot struct {
	Totals           Totals       `json:"totals"`
	AveragePerimeter float64      `json:"average_perimeter"`
	Breakdown        Breakdown    `json:"breakdown"`
	Distribution     Distribution `json:"distribution"`
	RecentActivity   Activity     `json:"recent_activity"`
}

// SnapshotOption configures NewSnapshot.
type SnapshotOption func(*snapshotConfig)

type snapshotConfig struct {
	domains []model.Domain
	window  time.Duration
}

// WithDomains lists the domains that always appear in the domain breakdown.
func WithDomains(domains []model.Domain) SnapshotOption {
	return func(c *snapshotConfig) { c.domains = domains }
}

// WithActivityWindow overrides the recent-activity window.
func WithActivityWindow(d time.Duration) SnapshotOption {
	return func(c *snapshotConfig) {
		if d > 0 {
			c.window = d
		}
	}
}

// NewSnapshot builds the analytics snapshot of records as of now.
func NewSnapshot(records []model.Record, now time.Time, opts ...SnapshotOption) Snapshot {
	cfg := snapshotConfig{window: DefaultActivityWindow}
	for _, opt := range opts {
		opt(&cfg)
	}

	since := now.Add(-cfg.window)
	s := Snapshot{
		Breakdown:      NewBreakdown(records, cfg.domains),
		Distribution:   Distribute(records),
		RecentActivity: Activity{Since: since},
	}

	var sum float64
	for _, r := range records {
		s.Totals.Claims++
		switch r.Claim.Status {
		case model.StatusResolved:
			s.Totals.Resolved++
		case model.StatusPending:
			s.Totals.Pending++
		case model.StatusExpired:
			s.Totals.Expired++
		case model.StatusInvalid:
			s.Totals.Invalid++
		}
		if r.Scored() {
			s.Totals.Scored++
			sum += r.Outcome.PerimeterScore
		}

		if !r.Claim.CreatedAt.Before(since) {
			s.RecentActivity.ClaimsCreated++
		}
		if r.Outcome != nil && !r.Outcome.VerifiedAt.Before(since) {
			s.RecentActivity.OutcomesVerified++
		}
	}
	if s.Totals.Scored > 0 {
		s.AveragePerimeter = sum / float64(s.Totals.Scored)
	}
	return s
}
