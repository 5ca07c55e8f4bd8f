package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	dedupe "github.com/okian/perimeter/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new deduper", t, func() {
		d := dedupe.NewInMemoryDeduper()
		So(d.Size(), ShouldEqual, 0)

		Convey("When a claim is recorded for the first time", func() {
			seen := d.SeenAndRecord(ctx, "claim-1")

			Convey("Then it is reported new and held", func() {
				So(seen, ShouldBeFalse)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("Then a second submission is reported as seen", func() {
				So(d.SeenAndRecord(ctx, "claim-1"), ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("Then unrecording releases it", func() {
				d.Unrecord(ctx, "claim-1")
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, "claim-1"), ShouldBeFalse)
			})
		})

		Convey("When unrecording an unknown claim", func() {
			d.SeenAndRecord(ctx, "claim-1")
			d.Unrecord(ctx, "claim-2")
			So(d.Size(), ShouldEqual, 1)
		})
	})

	Convey("Given a bounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
		for i := 1; i <= 3; i++ {
			d.SeenAndRecord(ctx, fmt.Sprintf("claim-%d", i))
		}

		Convey("When a fourth claim arrives the oldest is evicted", func() {
			So(d.SeenAndRecord(ctx, "claim-4"), ShouldBeFalse)
			So(d.Size(), ShouldEqual, 3)
			So(d.SeenAndRecord(ctx, "claim-2"), ShouldBeTrue)
			So(d.SeenAndRecord(ctx, "claim-1"), ShouldBeFalse)
		})

		Convey("When a middle claim is released its slot is reused", func() {
			d.Unrecord(ctx, "claim-2")
			So(d.SeenAndRecord(ctx, "claim-5"), ShouldBeFalse)
			So(d.SeenAndRecord(ctx, "claim-1"), ShouldBeTrue)
			So(d.Size(), ShouldEqual, 3)
		})
	})

	Convey("Given an unbounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
		for i := range 1000 {
			d.SeenAndRecord(ctx, fmt.Sprintf("claim-%d", i))
		}
		So(d.Size(), ShouldEqual, 1000)
		So(d.SeenAndRecord(ctx, "claim-0"), ShouldBeTrue)
	})
}

func TestInMemoryDeduper_Concurrent(t *testing.T) {
	Convey("Given many goroutines racing on the same claims", t, func() {
		d := dedupe.NewInMemoryDeduper()
		ctx := context.Background()

		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			fresh int
		)
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range 50 {
					if !d.SeenAndRecord(ctx, fmt.Sprintf("claim-%d", i)) {
						mu.Lock()
						fresh++
						mu.Unlock()
					}
				}
			}()
		}
		wg.Wait()

		Convey("Then each claim is admitted exactly once", func() {
			So(fresh, ShouldEqual, 50)
			So(d.Size(), ShouldEqual, 50)
		})
	})
}
