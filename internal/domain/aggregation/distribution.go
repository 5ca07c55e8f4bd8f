package aggregation

import "github.com/okian/perimeter/internal/domain/model"

// Bucket names.
const (
	BucketExcellent = "excellent"
	BucketGood      = "good"
	BucketFair      = "fair"
	BucketPoor      = "poor"
)

// Lower bounds of the histogram buckets. Intervals are half-open except
// excellent, which is closed at 100.
const (
	excellentFrom = 80
	goodFrom      = 60
	fairFrom      = 40
)

// Distribution is the four-bucket score histogram.
type Distribution struct {
	Excellent int `json:"excellent"`
	Good      int `json:"good"`
	Fair      int `json:"fair"`
	Poor      int `json:"poor"`
}

// Total returns the number of scores counted.
func (d Distribution) Total() int { return d.Excellent + d.Good + d.Fair + d.Poor }

// Bucket names the bucket a score falls in.
func Bucket(score float64) string {
	switch {
	case score >= excellentFrom:
		return BucketExcellent
	case score >= goodFrom:
		return BucketGood
	case score >= fairFrom:
		return BucketFair
	default:
		return BucketPoor
	}
}

// Distribute buckets the scores of resolved and scored records.
func Distribute(records []model.Record) Distribution {
	var d Distribution
	for _, r := range records {
		if !r.Scored() {
			continue
		}
		switch Bucket(r.Outcome.PerimeterScore) {
		case BucketExcellent:
			d.Excellent++
		case BucketGood:
			d.Good++
		case BucketFair:
			d.Fair++
		default:
			d.Poor++
		}
	}
	return d
}
