package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/perimeter/internal/adapters/mq/queue"
	"github.com/okian/perimeter/internal/adapters/mq/worker"
	"github.com/okian/perimeter/internal/domain/dedupe"
	"github.com/okian/perimeter/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

type fakeResolver struct {
	mu       sync.Mutex
	resolved map[string]int
	fail     map[string]bool
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{resolved: map[string]int{}, fail: map[string]bool{}}
}

func (f *fakeResolver) ApplyResolution(_ context.Context, r model.Resolution) (model.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[r.ClaimID] {
		return model.Outcome{}, errors.New("resolve failed")
	}
	f.resolved[r.ClaimID]++
	return model.Outcome{ClaimID: r.ClaimID, PerimeterScore: 100}, nil
}

func (f *fakeResolver) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.resolved {
		n += c
	}
	return n
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker over a queue", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		q := queue.NewInMemoryQueue(queue.WithCapacity(16))
		resolver := newFakeResolver()
		d := dedupe.NewInMemoryDeduper()
		w := worker.NewInMemoryWorker(q, resolver, worker.WithName("test"), worker.WithDeduper(d))
		go w.Run(ctx)

		convey.Convey("When resolutions are queued", func() {
			for i := range 3 {
				id := fmt.Sprintf("claim-%d", i)
				d.SeenAndRecord(ctx, id)
				convey.So(q.Enqueue(ctx, model.Resolution{ClaimID: id, Actual: model.Numeric{Value: 1}}), convey.ShouldBeNil)
			}

			convey.Convey("Then each is resolved and released", func() {
				convey.So(waitFor(func() bool { return w.Processed() == 3 }), convey.ShouldBeTrue)
				convey.So(resolver.count(), convey.ShouldEqual, 3)
				convey.So(waitFor(func() bool { return d.Size() == 0 }), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a resolution fails", func() {
			resolver.mu.Lock()
			resolver.fail["bad"] = true
			resolver.mu.Unlock()
			d.SeenAndRecord(ctx, "bad")
			convey.So(q.Enqueue(ctx, model.Resolution{ClaimID: "bad"}), convey.ShouldBeNil)

			convey.Convey("Then it is counted as failed and may be resubmitted", func() {
				convey.So(waitFor(func() bool { return w.Failed() == 1 }), convey.ShouldBeTrue)
				convey.So(waitFor(func() bool { return !d.SeenAndRecord(ctx, "bad") }), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When shutting down", func() {
			sctx, scancel := context.WithTimeout(context.Background(), time.Second)
			defer scancel()
			convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
			convey.So(w.Shutdown(sctx), convey.ShouldBeNil)
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool of workers", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(256))
		resolver := newFakeResolver()
		p := worker.NewPool(4, q, resolver)
		convey.So(p.Size(), convey.ShouldEqual, 4)

		convey.Convey("When many resolutions are queued before shutdown", func() {
			for i := range 100 {
				convey.So(q.Enqueue(ctx, model.Resolution{ClaimID: fmt.Sprintf("claim-%d", i)}), convey.ShouldBeNil)
			}
			p.Start(ctx)
			convey.So(p.Shutdown(ctx), convey.ShouldBeNil)

			convey.Convey("Then shutdown drains the queue", func() {
				convey.So(resolver.count(), convey.ShouldEqual, 100)
				convey.So(p.Processed(), convey.ShouldEqual, 100)
				convey.So(p.Failed(), convey.ShouldEqual, 0)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("A non-positive worker count falls back to the CPU count", t, func() {
		p := worker.NewPool(0, queue.NewInMemoryQueue(), newFakeResolver())
		convey.So(p.Size(), convey.ShouldBeGreaterThan, 0)
	})
}
