package registry_test

import (
	"context"
	"testing"
	"time"

	"github.com/okian/chorus/internal/domain/clock"
	"github.com/okian/chorus/internal/domain/model"
	"github.com/okian/chorus/internal/domain/registry"
	"github.com/okian/chorus/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func telemetry(part string, note model.Note) model.Telemetry {
	return model.Telemetry{PartID: part, Pitch: &model.PitchReading{Note: note, Octave: 4}}
}

func TestRegistry(t *testing.T) {
	Convey("Given a registry with the default stale window", t, func() {
		r := registry.New(registry.WithLogger(logger.Nop()))

		Convey("A first message reports a new identity", func() {
			So(r.Observe(telemetry("Soprano", model.NoteA), 1_000), ShouldBeTrue)
			So(r.Observe(telemetry("Soprano", model.NoteB), 1_050), ShouldBeFalse)
			s, ok := r.Get("Soprano")
			So(ok, ShouldBeTrue)
			So(s.Connected, ShouldBeTrue)
			So(s.LastReading.Note, ShouldEqual, model.NoteB)
		})

		Convey("Messages without a part are ignored", func() {
			So(r.Observe(model.Telemetry{}, 1), ShouldBeFalse)
			_, known := r.Counts()
			So(known, ShouldEqual, 0)
		})

		Convey("A satellite silent for 2999ms stays connected", func() {
			r.Observe(telemetry("Alto", model.NoteE), 10_000)
			So(r.Sweep(12_999), ShouldBeEmpty)
			s, _ := r.Get("Alto")
			So(s.Connected, ShouldBeTrue)
			So(s.LastReading, ShouldNotBeNil)
		})

		Convey("A satellite silent for 3001ms is marked stale but kept", func() {
			r.Observe(telemetry("Alto", model.NoteE), 10_000)
			r.Observe(telemetry("Bass", model.NoteC), 12_000)
			So(r.Sweep(13_001), ShouldResemble, []string{"Alto"})

			snap := r.Snapshot()
			So(snap, ShouldHaveLength, 2)
			So(snap[0].PartID, ShouldEqual, "Alto")
			So(snap[0].Connected, ShouldBeFalse)
			So(snap[0].LastReading, ShouldBeNil)
			So(snap[1].Connected, ShouldBeTrue)

			connected, known := r.Counts()
			So(connected, ShouldEqual, 1)
			So(known, ShouldEqual, 2)
			So(r.Readings(), ShouldHaveLength, 1)
		})

		Convey("A stale satellite reconnects without counting as new", func() {
			r.Observe(telemetry("Tenor", model.NoteG), 0)
			r.Sweep(5_000)
			So(r.Observe(telemetry("Tenor", model.NoteG), 5_100), ShouldBeFalse)
			s, _ := r.Get("Tenor")
			So(s.Connected, ShouldBeTrue)
		})
	})

	Convey("Run sweeps on its own ticker", t, func() {
		clk := clock.NewManual(0)
		r := registry.New(registry.WithStaleAfter(100*time.Millisecond), registry.WithLogger(logger.Nop()))
		r.Observe(telemetry("Alto", model.NoteE), 0)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			r.Run(ctx, clk, 5*time.Millisecond)
			close(done)
		}()
		clk.Set(500)

		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if s, _ := r.Get("Alto"); !s.Connected {
				break
			}
			time.Sleep(5 * time.Millisecond)
		}
		s, _ := r.Get("Alto")
		So(s.Connected, ShouldBeFalse)
		cancel()
		<-done
	})
}
