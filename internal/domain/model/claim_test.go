package model_test

import (
	"testing"
	"time"

	model "github.com/okian/perimeter/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestParseTokens(t *testing.T) {
	convey.Convey("Given claim type and status tokens", t, func() {
		convey.Convey("When parsing known tokens with odd casing", func() {
			ct, err := model.ParseClaimType("  Numeric ")
			convey.So(err, convey.ShouldBeNil)
			convey.So(ct, convey.ShouldEqual, model.TypeNumeric)

			st, err := model.ParseStatus("RESOLVED")
			convey.So(err, convey.ShouldBeNil)
			convey.So(st, convey.ShouldEqual, model.StatusResolved)
		})

		convey.Convey("When parsing unknown tokens", func() {
			_, err := model.ParseClaimType("ordinal")
			convey.So(err, convey.ShouldEqual, model.ErrUnknownClaimType)

			_, err = model.ParseStatus("archived")
			convey.So(err, convey.ShouldEqual, model.ErrUnknownStatus)
		})
	})
}

func TestValue(t *testing.T) {
	convey.Convey("Given prediction values", t, func() {
		convey.Convey("Then each variant reports its own kind", func() {
			convey.So(model.Numeric{Value: 1}.Kind(), convey.ShouldEqual, model.TypeNumeric)
			convey.So(model.Categorical{Category: "a"}.Kind(), convey.ShouldEqual, model.TypeCategorical)
			convey.So(model.Probabilistic{Probability: 0.2}.Kind(), convey.ShouldEqual, model.TypeProbabilistic)
		})

		convey.Convey("Then presence treats nil and blank categories as absent", func() {
			convey.So(model.Present(nil), convey.ShouldBeFalse)
			convey.So(model.Present(model.Categorical{Category: "   "}), convey.ShouldBeFalse)
			convey.So(model.Present(model.Categorical{Category: "yes"}), convey.ShouldBeTrue)
			convey.So(model.Present(model.Numeric{Value: 0}), convey.ShouldBeTrue)
		})

		convey.Convey("When flattening a probabilistic value", func() {
			flat := model.Flatten(model.Probabilistic{Probability: 0.7})

			convey.Convey("Then only the probability column is set", func() {
				convey.So(flat.Number, convey.ShouldBeNil)
				convey.So(flat.Category, convey.ShouldBeNil)
				convey.So(*flat.Probability, convey.ShouldEqual, 0.7)
			})

			convey.Convey("And it decodes back to the same value", func() {
				v, err := flat.Unflatten()
				convey.So(err, convey.ShouldBeNil)
				convey.So(v, convey.ShouldResemble, model.Probabilistic{Probability: 0.7})
			})
		})

		convey.Convey("When decoding columns with two fields set", func() {
			n, c := 1.0, "x"
			_, err := model.Flat{Number: &n, Category: &c}.Unflatten()

			convey.Convey("Then it is rejected as ambiguous", func() {
				convey.So(err, convey.ShouldEqual, model.ErrAmbiguousValue)
			})
		})

		convey.Convey("When decoding empty columns", func() {
			v, err := model.Flat{}.Unflatten()
			convey.So(err, convey.ShouldBeNil)
			convey.So(v, convey.ShouldBeNil)
		})
	})
}

func TestClaimOverdue(t *testing.T) {
	convey.Convey("Given a pending claim with a deadline", t, func() {
		deadline := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
		c := model.Claim{Status: model.StatusPending, Deadline: &deadline}

		convey.So(c.Overdue(deadline.Add(-time.Hour)), convey.ShouldBeFalse)
		convey.So(c.Overdue(deadline.Add(time.Hour)), convey.ShouldBeTrue)

		convey.Convey("When the claim is already resolved", func() {
			c.Status = model.StatusResolved
			convey.So(c.Overdue(deadline.Add(time.Hour)), convey.ShouldBeFalse)
		})

		convey.Convey("When the claim has no deadline", func() {
			c.Deadline = nil
			convey.So(c.Overdue(deadline.Add(time.Hour)), convey.ShouldBeFalse)
		})
	})
}

func TestForecasterDisplayName(t *testing.T) {
	convey.Convey("Given forecasters with partial identity", t, func() {
		convey.So(model.Forecaster{ID: "f1", Name: "Sarah"}.DisplayName(), convey.ShouldEqual, "Sarah")
		convey.So(model.Forecaster{ID: "f1", Username: "sarahpred"}.DisplayName(), convey.ShouldEqual, "sarahpred")
		convey.So(model.Forecaster{ID: "f1"}.DisplayName(), convey.ShouldEqual, "f1")
	})
}
