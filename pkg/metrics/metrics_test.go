package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options on a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then the chorus namespace is used", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "chorus")
				So(manager.refreshInterval, ShouldEqual, defaultRefreshInterval)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("room"),
				WithMetricPrefix("x"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithRefreshInterval(5*time.Second),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then metrics are registered with the prefix and labels", func() {
				manager.replayBursts.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				found := false
				for _, f := range families {
					if f.GetName() == "test_room_x_replay_bursts_total" {
						found = true
						So(f.GetMetric()[0].GetLabel()[0].GetValue(), ShouldEqual, "test")
					}
				}
				So(found, ShouldBeTrue)
				So(manager.refreshInterval, ShouldEqual, 5*time.Second)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording domain events", func() {
			before := testutil.ToFloat64(globalManager.commandsIgnored.WithLabelValues("unknown_action"))
			RecordCommandIgnored("unknown_action")
			RecordCommandIgnored("unknown_action")

			Convey("Then counters advance", func() {
				after := testutil.ToFloat64(globalManager.commandsIgnored.WithLabelValues("unknown_action"))
				So(after-before, ShouldEqual, 2)
			})
		})

		Convey("When updating gauges", func() {
			UpdateSatellites(3, 5)
			UpdateClockOffset(-12.5)

			Convey("Then they hold the last value", func() {
				So(testutil.ToFloat64(globalManager.satellitesConnected), ShouldEqual, 3)
				So(testutil.ToFloat64(globalManager.satellitesKnown), ShouldEqual, 5)
				So(testutil.ToFloat64(globalManager.clockOffset), ShouldEqual, -12.5)
			})
		})

		Convey("When recording the rest of the surface", func() {
			So(func() {
				RecordPitchFrame("pitched")
				RecordReadingEmitted()
				RecordTelemetryReceived()
				RecordCommandPublished("PAGE_SYNC")
				RecordCommandApplied("PAGE_SYNC")
				RecordBusDropped("telemetry")
				RecordReplayBurst()
				RecordSatelliteStaled()
				RecordClockSyncFailure()
				RecordScheduledFired(12)
				RecordScheduledCanceled()
				RecordMixdownDuration("render", 120)
				RecordMixdownError("decode")
				RecordMixdownTracks(4)
				RecordStoreOp("put", "ok")
				RecordHTTPRequest("/api/time", "GET", "200")
				RecordHTTPRequestDuration("/api/time", "GET", "200", 1.2)
				UpdateQueueSize(1)
				UpdateQueueCapacity(10)
				UpdateQueueUtilization(0.1)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				UpdateWorkerCount(2)
				UpdateWorkerActiveCount(1)
				UpdateWorkerIdleCount(1)
				RecordWorkerProcessingLatency(40)
				RecordWorkerError()
				UpdateSystemGoroutineCount(10)
				UpdateSystemMemoryUsage(1 << 20)
			}, ShouldNotPanic)
			So(RefreshInterval(), ShouldEqual, defaultRefreshInterval)
		})
	})
}

func TestConfigure(t *testing.T) {
	Convey("Configure swaps in a renamed manager on a fresh registry", t, func() {
		before := GetRegistry()
		Configure(WithNamespace("cfg"), WithCustomLabels(map[string]string{"site": "a"}))
		defer Configure()

		RecordReplayBurst()
		So(GetRegistry(), ShouldNotPointTo, before)
		families, err := GetRegistry().Gather()
		So(err, ShouldBeNil)
		found := false
		for _, f := range families {
			if f.GetName() == "cfg_rehearsal_replay_bursts_total" {
				found = true
				So(f.GetMetric()[0].GetLabel()[0].GetValue(), ShouldEqual, "a")
			}
		}
		So(found, ShouldBeTrue)
	})
}

func TestGetRegistry(t *testing.T) {
	Convey("The custom registry gathers chorus metrics", t, func() {
		RecordReplayBurst()
		families, err := GetRegistry().Gather()
		So(err, ShouldBeNil)
		So(len(families), ShouldBeGreaterThan, 0)
	})
}
