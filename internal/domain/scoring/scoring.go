// Package scoring computes Perimeter scores: a single accuracy measure in
// [0,100] for one resolved claim, whatever its encoding.
package scoring

import (
	"fmt"
	"math"

	"github.com/okian/perimeter/internal/domain/model"
	"github.com/okian/perimeter/internal/domain/ranges"
)

// Score bounds.
const (
	MinScore = 0
	MaxScore = 100
)

// Scorer computes the Perimeter score of a claim against its outcome.
type Scorer interface {
	Calculate(claim model.Claim, outcome model.Outcome) (float64, error)
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithRegistry sets the numeric range registry.
func WithRegistry(r *ranges.Registry) Option {
	return func(e *Engine) {
		if r != nil {
			e.registry = r
		}
	}
}

// WithCategoricalMatcher replaces the categorical matching rule.
func WithCategoricalMatcher(m CategoricalMatcher) Option {
	return func(e *Engine) {
		if m != nil {
			e.matcher = m
		}
	}
}

// WithWeigher sets the per-claim weight used by WeightedAverage.
func WithWeigher(w Weigher) Option {
	return func(e *Engine) {
		if w != nil {
			e.weigher = w
		}
	}
}

// Engine is the stateless score calculator. It is safe for concurrent use.
type Engine struct {
	registry *ranges.Registry
	matcher  CategoricalMatcher
	weigher  Weigher
}

var _ Scorer = (*Engine)(nil)

// NewEngine creates an engine with the built-in ranges, the containment
// matcher and uniform weights unless overridden.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		registry: ranges.Default(),
		matcher:  ContainmentMatcher{},
		weigher:  UniformWeight{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the range registry the engine scores against.
func (e *Engine) Registry() *ranges.Registry { return e.registry }

// Weigher returns the engine's weighting rule.
func (e *Engine) Weigher() Weigher { return e.weigher }

// Calculate returns the Perimeter score for claim and outcome. It performs no
// partial work: on error the score is 0 and must not be stored.
func (e *Engine) Calculate(claim model.Claim, outcome model.Outcome) (float64, error) {
	if !model.Present(claim.Prediction) {
		return 0, fmt.Errorf("%w: claim %q", ErrMissingPrediction, claim.ID)
	}
	if !model.Present(outcome.Actual) {
		return 0, fmt.Errorf("%w: claim %q", ErrMissingActual, claim.ID)
	}

	switch claim.Type {
	case model.TypeNumeric:
		p, okP := claim.Prediction.(model.Numeric)
		a, okA := outcome.Actual.(model.Numeric)
		if !okP || !okA {
			return 0, mismatch(claim, outcome)
		}
		return e.numeric(p.Value, a.Value, claim.Domain, claim.Subtype), nil

	case model.TypeCategorical:
		p, okP := claim.Prediction.(model.Categorical)
		a, okA := outcome.Actual.(model.Categorical)
		if !okP || !okA {
			return 0, mismatch(claim, outcome)
		}
		return clamp(e.matcher.Match(p.Category, a.Category)), nil

	case model.TypeProbabilistic:
		p, okP := claim.Prediction.(model.Probabilistic)
		a, okA := outcome.Actual.(model.Probabilistic)
		if !okP || !okA {
			return 0, mismatch(claim, outcome)
		}
		return brier(p.Probability, a.Probability), nil
	}

	return 0, fmt.Errorf("%w: %q", ErrUnsupportedClaimType, claim.Type)
}

// numeric scores 100*(1-|p-a|/size) over the resolved range.
func (e *Engine) numeric(predicted, actual float64, domain model.Domain, subtype string) float64 {
	if predicted == actual {
		return MaxScore
	}
	size := e.registry.Lookup(domain, subtype).Size()
	if size <= 0 {
		return MinScore
	}
	return clamp(MaxScore * (1 - math.Abs(predicted-actual)/size))
}

// brier rescales the squared-error Brier rule to [0,100]. The actual value is
// not restricted to {0,1}; other values score as a continuous generalization.
func brier(predicted, actual float64) float64 {
	d := predicted - actual
	return clamp(MaxScore * (1 - d*d))
}

func clamp(x float64) float64 {
	if math.IsNaN(x) {
		return MinScore
	}
	return math.Max(MinScore, math.Min(MaxScore, x))
}

func mismatch(claim model.Claim, outcome model.Outcome) error {
	return fmt.Errorf("%w: claim %q is %s, prediction is %s, actual is %s",
		ErrTypeMismatch, claim.ID, claim.Type, claim.Prediction.Kind(), outcome.Actual.Kind())
}
