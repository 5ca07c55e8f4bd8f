package cache_test

import (
	"testing"
	"time"

	"github.com/okian/perimeter/internal/adapters/cache"
	"github.com/okian/perimeter/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestCache(t *testing.T) {
	Convey("Given an enabled cache", t, func() {
		c := cache.New(cache.WithTTL(time.Minute), cache.WithCleanupInterval(time.Minute))
		So(c.Enabled(), ShouldBeTrue)

		econ := cache.Key{Kind: "leaderboard", Domain: model.DomainEconomy, Query: "period=1y"}
		pol := cache.Key{Kind: "leaderboard", Domain: model.DomainPolitics}
		all := cache.Key{Kind: "analytics"}

		So(c.Set(econ, []int{1, 2}, c.Generation(econ.Domain)), ShouldBeTrue)
		So(c.Set(pol, "politics", c.Generation(pol.Domain)), ShouldBeTrue)
		So(c.Set(all, 42, c.Generation(all.Domain)), ShouldBeTrue)

		Convey("Values come back typed", func() {
			v, ok := cache.Lookup[[]int](c, econ)
			So(ok, ShouldBeTrue)
			So(v, ShouldResemble, []int{1, 2})

			_, ok = cache.Lookup[string](c, econ)
			So(ok, ShouldBeFalse)

			_, ok = c.Get(cache.Key{Kind: "leaderboard", Domain: model.DomainEconomy, Query: "period=6m"})
			So(ok, ShouldBeFalse)
		})

		Convey("Invalidating a domain drops it and the all-domains entries", func() {
			c.InvalidateDomain(model.DomainEconomy)
			_, ok := c.Get(econ)
			So(ok, ShouldBeFalse)
			_, ok = c.Get(all)
			So(ok, ShouldBeFalse)
			_, ok = c.Get(pol)
			So(ok, ShouldBeTrue)
			So(c.Len(), ShouldEqual, 1)
		})

		Convey("Invalidating with no domain flushes", func() {
			c.InvalidateDomain("")
			So(c.Len(), ShouldEqual, 0)
		})

		Convey("A result computed across an invalidation is not stored", func() {
			econGen := c.Generation(model.DomainEconomy)
			polGen := c.Generation(model.DomainPolitics)
			allGen := c.Generation("")

			c.InvalidateDomain(model.DomainEconomy)

			So(c.Set(econ, []int{9}, econGen), ShouldBeFalse)
			So(c.Set(all, 7, allGen), ShouldBeFalse)
			So(c.Set(pol, "fresh", polGen), ShouldBeTrue)
			_, ok := c.Get(econ)
			So(ok, ShouldBeFalse)
			_, ok = c.Get(all)
			So(ok, ShouldBeFalse)

			So(c.Set(econ, []int{9}, c.Generation(model.DomainEconomy)), ShouldBeTrue)
		})

		Convey("A flush moves every generation", func() {
			econGen := c.Generation(model.DomainEconomy)
			allGen := c.Generation("")
			c.Flush()
			So(c.Generation(model.DomainEconomy), ShouldNotEqual, econGen)
			So(c.Generation(""), ShouldNotEqual, allGen)
			So(c.Set(econ, []int{1}, econGen), ShouldBeFalse)
		})

		Convey("Keys render their domain wildcard", func() {
			So(all.String(), ShouldEqual, "analytics|*|")
			So(econ.String(), ShouldEqual, "leaderboard|economy|period=1y")
		})
	})

	Convey("Given entries with a short TTL", t, func() {
		c := cache.New(cache.WithTTL(20 * time.Millisecond))
		k := cache.Key{Kind: "trends"}
		c.Set(k, 1, c.Generation(""))
		time.Sleep(40 * time.Millisecond)
		_, ok := c.Get(k)
		So(ok, ShouldBeFalse)
	})

	Convey("Given a disabled cache", t, func() {
		c := cache.New(cache.WithTTL(0))
		k := cache.Key{Kind: "analytics"}
		So(c.Set(k, 1, c.Generation("")), ShouldBeFalse)
		_, ok := c.Get(k)
		So(ok, ShouldBeFalse)
		So(c.Len(), ShouldEqual, 0)
		So(c.Enabled(), ShouldBeFalse)
		c.InvalidateDomain(model.DomainEconomy)
		c.Flush()
	})
}
