package scoring

import "github.com/okian/perimeter/internal/domain/model"

// Weigher assigns the weight a resolved claim carries in a weighted average.
type Weigher interface {
	Weight(claim model.Claim, outcome model.Outcome) float64
}

// UniformWeight gives every claim weight 1, which makes the weighted average
// equal to the arithmetic mean.
type UniformWeight struct{}

// Weight implements Weigher.
func (UniformWeight) Weight(model.Claim, model.Outcome) float64 { return 1 }

// Sample is one pre-scored contribution to a weighted average.
type Sample struct {
	Score  float64
	Weight float64
}

// Pair is a claim with the outcome it is scored against.
type Pair struct {
	Claim   model.Claim
	Outcome model.Outcome
}

// Mean returns Σ(score·weight)/Σweight, or 0 when the total weight is not
// positive (including the empty collection).
func Mean(samples []Sample) float64 {
	var sum, total float64
	for _, s := range samples {
		sum += s.Score * s.Weight
		total += s.Weight
	}
	if total <= 0 {
		return 0
	}
	return sum / total
}

// WeightedAverage scores every pair on the fly and averages them with the
// engine's weigher. The first scoring error aborts the computation.
func (e *Engine) WeightedAverage(pairs []Pair) (float64, error) {
	samples := make([]Sample, 0, len(pairs))
	for _, p := range pairs {
		score, err := e.Calculate(p.Claim, p.Outcome)
		if err != nil {
			return 0, err
		}
		samples = append(samples, Sample{Score: score, Weight: e.weigher.Weight(p.Claim, p.Outcome)})
	}
	return Mean(samples), nil
}
