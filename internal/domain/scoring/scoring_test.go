package scoring_test

import (
	"errors"
	"math"
	"testing"

	"github.com/okian/perimeter/internal/domain/model"
	"github.com/okian/perimeter/internal/domain/ranges"
	scoring "github.com/okian/perimeter/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func numericClaim(domain model.Domain, subtype string, predicted float64) model.Claim {
	return model.Claim{
		ID:         "c-1",
		Domain:     domain,
		Subtype:    subtype,
		Type:       model.TypeNumeric,
		Prediction: model.Numeric{Value: predicted},
	}
}

func actual(v model.Value) model.Outcome {
	return model.Outcome{ClaimID: "c-1", Actual: v}
}

func TestEngine_Numeric(t *testing.T) {
	Convey("Given the default engine", t, func() {
		engine := scoring.NewEngine()

		Convey("An exact match scores 100 in every domain", func() {
			for _, d := range []model.Domain{model.DomainEconomy, model.DomainPolitics, model.DomainTechnology, model.DomainEarthquakes, "unknown"} {
				score, err := engine.Calculate(numericClaim(d, "", 42.5), actual(model.Numeric{Value: 42.5}))
				So(err, ShouldBeNil)
				So(score, ShouldEqual, 100)
			}
		})

		Convey("The economy default range scores 10 against 15 as 96.667", func() {
			score, err := engine.Calculate(numericClaim(model.DomainEconomy, "", 10), actual(model.Numeric{Value: 15}))
			So(err, ShouldBeNil)
			So(score, ShouldAlmostEqual, 96.6667, 0.001)
		})

		Convey("An error at least as large as the range floors at 0", func() {
			score, err := engine.Calculate(numericClaim(model.DomainEconomy, "", -50), actual(model.Numeric{Value: 100}))
			So(err, ShouldBeNil)
			So(score, ShouldEqual, 0)

			score, err = engine.Calculate(numericClaim(model.DomainEconomy, "", -500), actual(model.Numeric{Value: 500}))
			So(err, ShouldBeNil)
			So(score, ShouldEqual, 0)
		})

		Convey("An unknown domain falls back to the universal range", func() {
			score, err := engine.Calculate(numericClaim("sports", "", 10), actual(model.Numeric{Value: 20}))
			So(err, ShouldBeNil)
			So(score, ShouldAlmostEqual, 90, 1e-9)
		})
	})

	Convey("Given an engine with a degenerate range", t, func() {
		reg, err := ranges.New(ranges.Table{"economy": {"default": {Min: 5, Max: 5}}})
		So(err, ShouldBeNil)
		engine := scoring.NewEngine(scoring.WithRegistry(reg))

		Convey("Equal values score 100 and anything else scores 0", func() {
			score, err := engine.Calculate(numericClaim(model.DomainEconomy, "", 5), actual(model.Numeric{Value: 5}))
			So(err, ShouldBeNil)
			So(score, ShouldEqual, 100)

			score, err = engine.Calculate(numericClaim(model.DomainEconomy, "", 5), actual(model.Numeric{Value: 5.01}))
			So(err, ShouldBeNil)
			So(score, ShouldEqual, 0)
		})
	})
}

func TestEngine_Categorical(t *testing.T) {
	Convey("Given the default engine", t, func() {
		engine := scoring.NewEngine()
		claim := model.Claim{ID: "c-1", Domain: model.DomainPolitics, Type: model.TypeCategorical, Prediction: model.Categorical{Category: "Biden"}}

		cases := []struct {
			actual string
			want   float64
		}{
			{"joe biden", 50},
			{"Biden", 100},
			{"  bIDEN ", 100},
			{"Trump", 0},
		}
		for _, tc := range cases {
			score, err := engine.Calculate(claim, actual(model.Categorical{Category: tc.actual}))
			So(err, ShouldBeNil)
			So(score, ShouldEqual, tc.want)
		}
	})

	Convey("Given an engine using the levenshtein matcher", t, func() {
		engine := scoring.NewEngine(scoring.WithCategoricalMatcher(scoring.LevenshteinMatcher{}))
		claim := model.Claim{ID: "c-1", Type: model.TypeCategorical, Prediction: model.Categorical{Category: "Bidan"}}

		Convey("A near miss earns partial credit below containment", func() {
			score, err := engine.Calculate(claim, actual(model.Categorical{Category: "biden"}))
			So(err, ShouldBeNil)
			So(score, ShouldAlmostEqual, 40, 1e-9)
		})

		Convey("Exact and contained labels keep their fixed credit", func() {
			score, _ := engine.Calculate(claim, actual(model.Categorical{Category: "BIDAN"}))
			So(score, ShouldEqual, 100)
			score, _ = engine.Calculate(claim, actual(model.Categorical{Category: "bidan jr"}))
			So(score, ShouldEqual, 50)
		})
	})
}

func TestMatcherByName(t *testing.T) {
	Convey("Matchers resolve by name", t, func() {
		m, err := scoring.MatcherByName("")
		So(err, ShouldBeNil)
		So(m, ShouldHaveSameTypeAs, scoring.ContainmentMatcher{})

		m, err = scoring.MatcherByName("Levenshtein")
		So(err, ShouldBeNil)
		So(m, ShouldHaveSameTypeAs, scoring.LevenshteinMatcher{})

		_, err = scoring.MatcherByName("soundex")
		So(errors.Is(err, scoring.ErrUnknownMatcher), ShouldBeTrue)
	})
}

func TestEngine_Probabilistic(t *testing.T) {
	Convey("Given the default engine", t, func() {
		engine := scoring.NewEngine()
		claim := func(p float64) model.Claim {
			return model.Claim{ID: "c-1", Type: model.TypeProbabilistic, Prediction: model.Probabilistic{Probability: p}}
		}

		Convey("0.7 against a realized event scores 91", func() {
			score, err := engine.Calculate(claim(0.7), actual(model.Probabilistic{Probability: 1}))
			So(err, ShouldBeNil)
			So(score, ShouldAlmostEqual, 91, 1e-9)
		})

		Convey("Equal probabilities score 100", func() {
			for _, p := range []float64{0, 0.25, 0.5, 1} {
				score, err := engine.Calculate(claim(p), actual(model.Probabilistic{Probability: p}))
				So(err, ShouldBeNil)
				So(score, ShouldEqual, 100)
			}
		})

		Convey("Out-of-range values are clamped", func() {
			score, err := engine.Calculate(claim(3), actual(model.Probabilistic{Probability: 0}))
			So(err, ShouldBeNil)
			So(score, ShouldEqual, 0)
		})
	})
}

func TestEngine_Bounds(t *testing.T) {
	Convey("Scores are always within [0,100] and never NaN", t, func() {
		engine := scoring.NewEngine()
		values := []float64{-1e308, -1000, -1, 0, 0.5, 1, 99.9, 1e6, 1e308, math.Inf(1), math.Inf(-1), math.NaN()}
		for _, p := range values {
			for _, a := range values {
				for _, c := range []model.Claim{
					numericClaim(model.DomainTechnology, "ai_benchmark", p),
					{Type: model.TypeProbabilistic, Prediction: model.Probabilistic{Probability: p}},
				} {
					var out model.Outcome
					if c.Type == model.TypeNumeric {
						out = actual(model.Numeric{Value: a})
					} else {
						out = actual(model.Probabilistic{Probability: a})
					}
					score, err := engine.Calculate(c, out)
					So(err, ShouldBeNil)
					So(math.IsNaN(score), ShouldBeFalse)
					So(score, ShouldBeBetweenOrEqual, 0, 100)
				}
			}
		}
	})
}

func TestEngine_Errors(t *testing.T) {
	Convey("Given the default engine", t, func() {
		engine := scoring.NewEngine()

		Convey("A missing prediction is reported first", func() {
			_, err := engine.Calculate(model.Claim{Type: "bogus"}, actual(nil))
			So(errors.Is(err, scoring.ErrMissingPrediction), ShouldBeTrue)
			So(scoring.IsCallerError(err), ShouldBeTrue)
			So(scoring.Kind(err), ShouldEqual, "missing_prediction")
		})

		Convey("A blank category counts as missing", func() {
			claim := model.Claim{Type: model.TypeCategorical, Prediction: model.Categorical{Category: "x"}}
			_, err := engine.Calculate(claim, actual(model.Categorical{Category: "  "}))
			So(errors.Is(err, scoring.ErrMissingActual), ShouldBeTrue)
		})

		Convey("An unknown claim type is unsupported", func() {
			claim := model.Claim{Type: "ordinal", Prediction: model.Numeric{Value: 1}}
			_, err := engine.Calculate(claim, actual(model.Numeric{Value: 1}))
			So(errors.Is(err, scoring.ErrUnsupportedClaimType), ShouldBeTrue)
		})

		Convey("Payloads that disagree with the claim type mismatch", func() {
			claim := model.Claim{Type: model.TypeNumeric, Prediction: model.Categorical{Category: "x"}}
			score, err := engine.Calculate(claim, actual(model.Numeric{Value: 1}))
			So(errors.Is(err, scoring.ErrTypeMismatch), ShouldBeTrue)
			So(score, ShouldEqual, 0)
			So(scoring.Kind(err), ShouldEqual, "type_mismatch")

			claim = model.Claim{Type: model.TypeProbabilistic, Prediction: model.Probabilistic{Probability: 0.5}}
			_, err = engine.Calculate(claim, actual(model.Numeric{Value: 1}))
			So(errors.Is(err, scoring.ErrTypeMismatch), ShouldBeTrue)
		})
	})
}

type doubleTech struct{}

func (doubleTech) Weight(c model.Claim, _ model.Outcome) float64 {
	if c.Domain == model.DomainTechnology {
		return 2
	}
	return 1
}

func TestWeightedAverage(t *testing.T) {
	Convey("Mean over uniform weights is the arithmetic mean", t, func() {
		So(scoring.Mean([]scoring.Sample{{Score: 80, Weight: 1}, {Score: 60, Weight: 1}}), ShouldEqual, 70)
		So(scoring.Mean(nil), ShouldEqual, 0)
		So(scoring.Mean([]scoring.Sample{{Score: 80, Weight: 0}}), ShouldEqual, 0)
	})

	Convey("Given scored pairs", t, func() {
		pairs := []scoring.Pair{
			{Claim: numericClaim(model.DomainTechnology, "", 10), Outcome: actual(model.Numeric{Value: 10})},
			{Claim: numericClaim("other", "", 0), Outcome: actual(model.Numeric{Value: 40})},
			{Claim: numericClaim("other", "", 0), Outcome: actual(model.Numeric{Value: 20})},
		}

		Convey("The default engine averages uniformly", func() {
			avg, err := scoring.NewEngine().WeightedAverage(pairs)
			So(err, ShouldBeNil)
			So(avg, ShouldAlmostEqual, 80, 1e-9)
		})

		Convey("A custom weigher changes only the weighting", func() {
			avg, err := scoring.NewEngine(scoring.WithWeigher(doubleTech{})).WeightedAverage(pairs)
			So(err, ShouldBeNil)
			So(avg, ShouldAlmostEqual, 85, 1e-9)
		})

		Convey("An empty collection averages to 0", func() {
			avg, err := scoring.NewEngine().WeightedAverage(nil)
			So(err, ShouldBeNil)
			So(avg, ShouldEqual, 0)
		})

		Convey("A scoring failure aborts the average", func() {
			bad := append(pairs, scoring.Pair{Claim: model.Claim{Type: model.TypeNumeric}})
			_, err := scoring.NewEngine().WeightedAverage(bad)
			So(errors.Is(err, scoring.ErrMissingPrediction), ShouldBeTrue)
		})
	})
}
