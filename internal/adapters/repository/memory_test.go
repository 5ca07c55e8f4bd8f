package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/perimeter/internal/adapters/repository"
	"github.com/okian/perimeter/internal/adapters/repository/storetest"
	"github.com/okian/perimeter/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(*testing.T) repository.Store { return repository.NewMemoryStore() })
}

func TestMemoryStore_Clock(t *testing.T) {
	Convey("Given a store with a fixed clock", t, func() {
		now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		s := repository.NewMemoryStore(repository.WithMemoryClock(func() time.Time { return now }))
		ctx := context.Background()

		c, err := s.CreateClaim(ctx, model.Claim{ID: "c", Type: model.TypeNumeric, Prediction: model.Numeric{Value: 1}})
		So(err, ShouldBeNil)
		So(c.CreatedAt, ShouldEqual, now)
		So(c.UpdatedAt, ShouldEqual, now)

		o, err := s.InsertOutcome(ctx, model.Outcome{ClaimID: "c", Actual: model.Numeric{Value: 1}, PerimeterScore: 100})
		So(err, ShouldBeNil)
		So(o.VerifiedAt, ShouldEqual, now)

		Convey("Writes fail once closed while ping reports it", func() {
			So(s.Close(), ShouldBeNil)
			So(errors.Is(s.Ping(ctx), repository.ErrClosed), ShouldBeTrue)
			_, err := s.CreateClaim(ctx, model.Claim{ID: "d"})
			So(errors.Is(err, repository.ErrClosed), ShouldBeTrue)
		})
	})
}

func TestClaimFilter_Normalize(t *testing.T) {
	Convey("Listing limits default and cap", t, func() {
		f, err := repository.ClaimFilter{}.Normalize()
		So(err, ShouldBeNil)
		So(f.Limit, ShouldEqual, repository.DefaultListLimit)

		f, err = repository.ClaimFilter{Limit: 10000}.Normalize()
		So(err, ShouldBeNil)
		So(f.Limit, ShouldEqual, repository.MaxListLimit)

		_, err = repository.ClaimFilter{Offset: -1}.Normalize()
		So(errors.Is(err, repository.ErrInvalidLimit), ShouldBeTrue)
	})
}
