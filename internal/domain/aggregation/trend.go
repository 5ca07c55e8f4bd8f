package aggregation

import (
	"time"

	"github.com/okian/perimeter/internal/domain/model"
)

// DateLayout is the calendar-day key of a trend point.
const DateLayout = "2006-01-02"

// TrendPoint aggregates one UTC calendar day.
//
// Claims, Resolved and AveragePerimeter are keyed by claim creation day:
// Resolved counts claims created that day that are now resolved.
// Resolutions counts outcomes verified that day regardless of creation day.
type TrendPoint struct {
	Date             string  `json:"date"`
	Claims           int     `json:"claims"`
	Resolved         int     `json:"resolved"`
	AveragePerimeter float64 `json:"average_perimeter"`
	Resolutions      int     `json:"resolutions"`
}

// Trend returns one point per day for the last days days, today included,
// oldest first. A non-positive days yields nil.
func Trend(records []model.Record, days int, now time.Time) []TrendPoint {
	if days <= 0 {
		return nil
	}

	today := truncateDay(now)
	first := today.AddDate(0, 0, -(days - 1))

	points := make([]TrendPoint, days)
	sums := make([]float64, days)
	scored := make([]int, days)
	for i := range points {
		points[i].Date = first.AddDate(0, 0, i).Format(DateLayout)
	}

	index := func(t time.Time) (int, bool) {
		d := truncateDay(t)
		if d.Before(first) || d.After(today) {
			return 0, false
		}
		return int(d.Sub(first).Hours() / 24), true
	}

	for _, r := range records {
		if i, ok := index(r.Claim.CreatedAt); ok {
			points[i].Claims++
			if r.Claim.Status == model.StatusResolved {
				points[i].Resolved++
			}
			if r.Scored() {
				scored[i]++
				sums[i] += r.Outcome.PerimeterScore
			}
		}
		if r.Outcome != nil {
			if i, ok := index(r.Outcome.VerifiedAt); ok {
				points[i].Resolutions++
			}
		}
	}

	for i := range points {
		if scored[i] > 0 {
			points[i].AveragePerimeter = sums[i] / float64(scored[i])
		}
	}
	return points
}

func truncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
