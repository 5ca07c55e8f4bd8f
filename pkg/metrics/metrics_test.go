package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNewManager(t *testing.T) {
	Convey("Given a private registry", t, func() {
		registry := prometheus.NewRegistry()

		Convey("When creating a manager with custom naming", func() {
			m := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 5, 10}),
				WithPrometheusRegistry(registry),
			)
			m.claimsCreated.WithLabelValues("economy").Inc()

			Convey("Then collectors are registered under that name", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "test_unit_claims_created_total")
			})
		})

		Convey("When registering twice on the same registry", func() {
			NewManager(WithPrometheusRegistry(registry))
			So(func() { NewManager(WithPrometheusRegistry(registry)) }, ShouldPanic)
		})
	})
}

func TestRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("Resolution counters move", func() {
			before := testutil.ToFloat64(globalManager.outcomesResolved.WithLabelValues("politics"))
			RecordOutcomeResolved("politics", 91)
			So(testutil.ToFloat64(globalManager.outcomesResolved.WithLabelValues("politics")), ShouldEqual, before+1)

			c := testutil.ToFloat64(globalManager.resolutionConflicts)
			RecordResolutionConflict()
			So(testutil.ToFloat64(globalManager.resolutionConflicts), ShouldEqual, c+1)
		})

		Convey("Cache hits and misses are split by result", func() {
			hits := testutil.ToFloat64(globalManager.cacheRequests.WithLabelValues("leaderboard", "hit"))
			misses := testutil.ToFloat64(globalManager.cacheRequests.WithLabelValues("leaderboard", "miss"))
			RecordCacheHit("leaderboard")
			RecordCacheHit("leaderboard")
			RecordCacheMiss("leaderboard")
			So(testutil.ToFloat64(globalManager.cacheRequests.WithLabelValues("leaderboard", "hit")), ShouldEqual, hits+2)
			So(testutil.ToFloat64(globalManager.cacheRequests.WithLabelValues("leaderboard", "miss")), ShouldEqual, misses+1)
		})

		Convey("Gauges take the last value", func() {
			UpdateQueueSize(7)
			UpdateQueueSize(3)
			So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 3)
			UpdateRepositoryRecords("claims", 12)
			So(testutil.ToFloat64(globalManager.repositoryRecords.WithLabelValues("claims")), ShouldEqual, 12)
		})

		Convey("Expired claims add up", func() {
			before := testutil.ToFloat64(globalManager.claimsExpired)
			RecordClaimsExpired(4)
			So(testutil.ToFloat64(globalManager.claimsExpired), ShouldEqual, before+4)
		})

		Convey("Remaining recorders do not panic", func() {
			So(func() {
				RecordClaimCreated("economy")
				RecordResolutionDuplicate()
				RecordScoringError("type_mismatch")
				RecordScoringLatency(0.2)
				RecordAggregationLatency("analytics", 3)
				UpdateTotalClaims(10)
				UpdateTotalForecasters(2)
				RecordHTTPRequest("/v1/claims", "POST", "201")
				RecordHTTPRequestDuration("/v1/claims", "POST", "201", 1.5)
				RecordRateLimited()
				RecordRepositoryLatency("insert_outcome", 0.4)
				UpdateQueueCapacity(100)
				UpdateQueueUtilization(0.5)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				UpdateWorkerCount(4)
				UpdateWorkerActiveCount(1)
				RecordWorkerProcessingLatency(2)
				RecordWorkerError()
				RecordErrorByComponent("repository", "not_found")
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(12)
			}, ShouldNotPanic)
		})

		Convey("The registry gathers", func() {
			_, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
		})
	})
}
