// Package storetest holds the behaviour suite every repository.Store must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/perimeter/internal/adapters/repository"
	"github.com/okian/perimeter/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// Factory returns a fresh, empty store. It is called once per leaf scenario.
type Factory func(t *testing.T) repository.Store

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func claim(id, forecaster string, domain model.Domain, created time.Time) model.Claim {
	return model.Claim{
		ID:           id,
		ForecasterID: forecaster,
		Text:         "claim " + id,
		Domain:       domain,
		Type:         model.TypeNumeric,
		Prediction:   model.Numeric{Value: 10},
		Status:       model.StatusPending,
		CreatedAt:    created,
	}
}

// Run executes the suite.
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	Convey("Given an empty store", t, func() {
		s := newStore(t)
		Reset(func() { _ = s.Close() })

		alice, err := s.UpsertForecaster(ctx, model.Forecaster{Name: "Alice", Username: "alice", Platform: "x"})
		So(err, ShouldBeNil)
		So(alice.ID, ShouldNotBeEmpty)

		Convey("Forecasters upsert on username and platform", func() {
			again, err := s.UpsertForecaster(ctx, model.Forecaster{Name: "Alice B.", Username: "alice", Platform: "x"})
			So(err, ShouldBeNil)
			So(again.ID, ShouldEqual, alice.ID)
			So(again.Name, ShouldEqual, "Alice B.")

			other, err := s.UpsertForecaster(ctx, model.Forecaster{Username: "alice", Platform: "mastodon"})
			So(err, ShouldBeNil)
			So(other.ID, ShouldNotEqual, alice.ID)
			So(other.Name, ShouldEqual, repository.DefaultForecasterName)

			anon1, _ := s.UpsertForecaster(ctx, model.Forecaster{Name: "Anon"})
			anon2, _ := s.UpsertForecaster(ctx, model.Forecaster{Name: "Anon"})
			So(anon1.ID, ShouldNotEqual, anon2.ID)
			So(anon1.Platform, ShouldEqual, repository.DefaultForecasterPlatform)

			all, err := s.Forecasters(ctx)
			So(err, ShouldBeNil)
			So(all, ShouldHaveLength, 4)
			So(all[alice.ID].Name, ShouldEqual, "Alice B.")

			got, err := s.GetForecaster(ctx, alice.ID)
			So(err, ShouldBeNil)
			So(got.Username, ShouldEqual, "alice")

			_, err = s.GetForecaster(ctx, "nobody")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("Claims round-trip with their prediction", func() {
			deadline := base.Add(48 * time.Hour)
			c := claim("c-1", alice.ID, model.DomainEconomy, base)
			c.Subtype = "cpi"
			c.Deadline = &deadline
			c.Type = model.TypeCategorical
			c.Prediction = model.Categorical{Category: "Biden"}

			created, err := s.CreateClaim(ctx, c)
			So(err, ShouldBeNil)
			So(created.Status, ShouldEqual, model.StatusPending)

			got, err := s.GetClaim(ctx, "c-1")
			So(err, ShouldBeNil)
			So(got.Prediction, ShouldResemble, model.Categorical{Category: "Biden"})
			So(got.Subtype, ShouldEqual, "cpi")
			So(got.ForecasterID, ShouldEqual, alice.ID)
			So(got.Deadline, ShouldNotBeNil)
			So(got.Deadline.Equal(deadline), ShouldBeTrue)
			So(got.CreatedAt.Equal(base), ShouldBeTrue)

			_, err = s.CreateClaim(ctx, c)
			So(errors.Is(err, repository.ErrConflict), ShouldBeTrue)

			_, err = s.GetClaim(ctx, "missing")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)

			_, err = s.CreateClaim(ctx, claim("", "", model.DomainEconomy, base))
			So(errors.Is(err, repository.ErrInvalidClaim), ShouldBeTrue)

			_, err = s.CreateClaim(ctx, claim("c-x", "ghost", model.DomainEconomy, base))
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("Claims list newest first with filters and paging", func() {
			for i := range 5 {
				d := model.DomainEconomy
				if i%2 == 1 {
					d = model.DomainPolitics
				}
				_, err := s.CreateClaim(ctx, claim(fmt.Sprintf("c-%d", i), alice.ID, d, base.Add(time.Duration(i)*time.Hour)))
				So(err, ShouldBeNil)
			}
			_, err := s.CreateClaim(ctx, claim("anon", "", model.DomainEconomy, base.Add(10*time.Hour)))
			So(err, ShouldBeNil)

			all, err := s.ListClaims(ctx, repository.ClaimFilter{})
			So(err, ShouldBeNil)
			So(all, ShouldHaveLength, 6)
			So(all[0].ID, ShouldEqual, "anon")
			So(all[5].ID, ShouldEqual, "c-0")

			econ, err := s.ListClaims(ctx, repository.ClaimFilter{Domain: model.DomainEconomy, ForecasterID: alice.ID})
			So(err, ShouldBeNil)
			So(len(econ), ShouldEqual, 3)
			So(econ[0].ID, ShouldEqual, "c-4")

			page, err := s.ListClaims(ctx, repository.ClaimFilter{Limit: 2, Offset: 1})
			So(err, ShouldBeNil)
			So(len(page), ShouldEqual, 2)
			So(page[0].ID, ShouldEqual, "c-4")
			So(page[1].ID, ShouldEqual, "c-3")

			empty, err := s.ListClaims(ctx, repository.ClaimFilter{Offset: 100})
			So(err, ShouldBeNil)
			So(empty, ShouldBeEmpty)

			_, err = s.ListClaims(ctx, repository.ClaimFilter{Limit: -1})
			So(errors.Is(err, repository.ErrInvalidLimit), ShouldBeTrue)
		})

		Convey("An outcome resolves its claim exactly once", func() {
			_, err := s.CreateClaim(ctx, claim("c-1", alice.ID, model.DomainEconomy, base))
			So(err, ShouldBeNil)

			verified := base.Add(24 * time.Hour)
			first, err := s.InsertOutcome(ctx, model.Outcome{
				ClaimID: "c-1", Actual: model.Numeric{Value: 15}, PerimeterScore: 96.5,
				DataSource: "bls", VerifiedAt: verified,
			})
			So(err, ShouldBeNil)
			So(first.ID, ShouldNotBeEmpty)

			got, err := s.GetClaim(ctx, "c-1")
			So(err, ShouldBeNil)
			So(got.Status, ShouldEqual, model.StatusResolved)

			_, err = s.InsertOutcome(ctx, model.Outcome{ClaimID: "c-1", Actual: model.Numeric{Value: 99}, PerimeterScore: 1})
			So(errors.Is(err, repository.ErrConflict), ShouldBeTrue)

			stored, err := s.GetOutcome(ctx, "c-1")
			So(err, ShouldBeNil)
			So(stored.ID, ShouldEqual, first.ID)
			So(stored.PerimeterScore, ShouldEqual, 96.5)
			So(stored.Actual, ShouldResemble, model.Numeric{Value: 15})
			So(stored.DataSource, ShouldEqual, "bls")
			So(stored.VerifiedAt.Equal(verified), ShouldBeTrue)

			_, err = s.InsertOutcome(ctx, model.Outcome{ClaimID: "missing", Actual: model.Numeric{Value: 1}})
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)

			_, err = s.GetOutcome(ctx, "missing")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("Concurrent resolutions of one claim admit a single winner", func() {
			_, err := s.CreateClaim(ctx, claim("c-race", alice.ID, model.DomainEconomy, base))
			So(err, ShouldBeNil)

			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				wins      int
				conflicts int
			)
			for i := range 8 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := s.InsertOutcome(ctx, model.Outcome{ClaimID: "c-race", Actual: model.Numeric{Value: float64(i)}, PerimeterScore: float64(i)})
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						wins++
					case errors.Is(err, repository.ErrConflict):
						conflicts++
					}
				}()
			}
			wg.Wait()
			So(wins, ShouldEqual, 1)
			So(conflicts, ShouldEqual, 7)
		})

		Convey("Records pair claims with outcomes and filter by domain and time", func() {
			_, _ = s.CreateClaim(ctx, claim("old", alice.ID, model.DomainEconomy, base.AddDate(0, 0, -40)))
			_, _ = s.CreateClaim(ctx, claim("new", alice.ID, model.DomainEconomy, base))
			_, _ = s.CreateClaim(ctx, claim("pol", alice.ID, model.DomainPolitics, base))
			_, err := s.InsertOutcome(ctx, model.Outcome{ClaimID: "new", Actual: model.Numeric{Value: 10}, PerimeterScore: 100})
			So(err, ShouldBeNil)

			all, err := s.Records(ctx, repository.RecordFilter{})
			So(err, ShouldBeNil)
			So(all, ShouldHaveLength, 3)

			recent, err := s.Records(ctx, repository.RecordFilter{Domain: model.DomainEconomy, Since: base.AddDate(0, 0, -30)})
			So(err, ShouldBeNil)
			So(recent, ShouldHaveLength, 1)
			So(recent[0].Claim.ID, ShouldEqual, "new")
			So(recent[0].Outcome, ShouldNotBeNil)
			So(recent[0].Outcome.PerimeterScore, ShouldEqual, 100)
			So(recent[0].Scored(), ShouldBeTrue)

			pol, err := s.Records(ctx, repository.RecordFilter{Domain: model.DomainPolitics})
			So(err, ShouldBeNil)
			So(pol, ShouldHaveLength, 1)
			So(pol[0].Outcome, ShouldBeNil)
		})

		Convey("Since compares creation times at millisecond precision", func() {
			created := base.Add(300 * time.Microsecond)
			_, err := s.CreateClaim(ctx, claim("edge", alice.ID, model.DomainEconomy, created))
			So(err, ShouldBeNil)

			same, err := s.Records(ctx, repository.RecordFilter{Since: base.Add(900 * time.Microsecond)})
			So(err, ShouldBeNil)
			So(same, ShouldHaveLength, 1)

			later, err := s.Records(ctx, repository.RecordFilter{Since: base.Add(time.Millisecond)})
			So(err, ShouldBeNil)
			So(later, ShouldBeEmpty)
		})

		Convey("Overdue pending claims expire", func() {
			past := base.Add(-time.Hour)
			future := base.Add(time.Hour)
			a := claim("due", alice.ID, model.DomainEconomy, base.Add(-2*time.Hour))
			a.Deadline = &past
			b := claim("later", alice.ID, model.DomainEconomy, base.Add(-2*time.Hour))
			b.Deadline = &future
			c := claim("done", alice.ID, model.DomainEconomy, base.Add(-2*time.Hour))
			c.Deadline = &past
			for _, cl := range []model.Claim{a, b, c} {
				_, err := s.CreateClaim(ctx, cl)
				So(err, ShouldBeNil)
			}
			_, err := s.InsertOutcome(ctx, model.Outcome{ClaimID: "done", Actual: model.Numeric{Value: 1}, PerimeterScore: 50})
			So(err, ShouldBeNil)

			n, err := s.ExpireOverdue(ctx, base)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)

			got, _ := s.GetClaim(ctx, "due")
			So(got.Status, ShouldEqual, model.StatusExpired)
			got, _ = s.GetClaim(ctx, "later")
			So(got.Status, ShouldEqual, model.StatusPending)
			got, _ = s.GetClaim(ctx, "done")
			So(got.Status, ShouldEqual, model.StatusResolved)

			n, err = s.ExpireOverdue(ctx, base)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 0)
		})

		Convey("Counts and ping reflect the store", func() {
			_, _ = s.CreateClaim(ctx, claim("c-1", alice.ID, model.DomainEconomy, base))
			_, _ = s.InsertOutcome(ctx, model.Outcome{ClaimID: "c-1", Actual: model.Numeric{Value: 1}, PerimeterScore: 1})

			counts, err := s.Count(ctx)
			So(err, ShouldBeNil)
			So(counts, ShouldResemble, repository.Counts{Claims: 1, Outcomes: 1, Forecasters: 1})
			So(s.Ping(ctx), ShouldBeNil)
		})
	})
}
