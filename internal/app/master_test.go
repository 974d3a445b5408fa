package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/chorus/internal/adapters/bus"
	"github.com/okian/chorus/internal/adapters/repository"
	service "github.com/okian/chorus/internal/app"
	"github.com/okian/chorus/internal/domain/clock"
	"github.com/okian/chorus/internal/domain/command"
	"github.com/okian/chorus/internal/domain/model"
	"github.com/okian/chorus/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func sung(note model.Note, octave int) *model.PitchReading {
	return &model.PitchReading{Note: note, Octave: octave}
}

func telemetry(t *testing.T, part string, reading *model.PitchReading) []byte {
	t.Helper()
	b, err := json.Marshal(model.Telemetry{PartID: part, Pitch: reading, TimestampMs: 1})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestMaster(t *testing.T) {
	Convey("Given a master and an observing peer in one room", t, func() {
		ctx := context.Background()
		hub := bus.NewHub()
		clk := clock.NewManual(10_000)
		store := repository.NewMemory(repository.WithPublicURL("http://chorus.test"))
		fired := make(chan int64, 1)

		m := service.NewMaster("room", hub.Join("room"), service.NewLibrary(store),
			service.WithMasterClock(clk),
			service.WithReplaySettle(50*time.Millisecond),
			service.WithSchedulePoll(2*time.Millisecond),
			service.WithSweep(3*time.Second, time.Hour),
			service.WithRecordingHook(func(target int64) { fired <- target }),
			service.WithMasterLogger(logger.Nop()),
		)
		So(m.Start(ctx), ShouldBeNil)
		defer m.Close()

		peer := hub.Join("room")
		defer peer.Close()
		cmds := listen(t, peer, bus.TopicCommand)

		Convey("A new satellite gets one replay burst of the room state", func() {
			So(peer.Publish(ctx, bus.TopicTelemetry, telemetry(t, "Soprano", sung(model.NoteA, 4))), ShouldBeNil)
			So(peer.Publish(ctx, bus.TopicTelemetry, telemetry(t, "Alto", sung(model.NoteC, 4))), ShouldBeNil)

			So(waitFor(func() bool { return cmds.len() >= 3 }), ShouldBeTrue)
			time.Sleep(150 * time.Millisecond)
			got := cmds.commands()
			So(got, ShouldResemble, []command.Command{
				command.StudioMode{Enabled: false},
				command.StopRecord{},
				command.PageSync{Page: 0},
			})
			So(m.Satellites(), ShouldHaveLength, 2)
		})

		Convey("A known satellite does not trigger another replay", func() {
			So(peer.Publish(ctx, bus.TopicTelemetry, telemetry(t, "Tenor", nil)), ShouldBeNil)
			So(waitFor(func() bool { return cmds.len() == 3 }), ShouldBeTrue)
			So(peer.Publish(ctx, bus.TopicTelemetry, telemetry(t, "Tenor", sung(model.NoteE, 3))), ShouldBeNil)
			time.Sleep(150 * time.Millisecond)
			So(cmds.len(), ShouldEqual, 3)
		})

		Convey("Issued commands reach the room and the local state", func() {
			So(m.Issue(ctx, command.PageSync{Page: 3}), ShouldBeNil)
			So(waitFor(func() bool { return cmds.len() == 1 }), ShouldBeTrue)
			So(cmds.commands()[0], ShouldResemble, command.PageSync{Page: 3})
			So(m.View().Page, ShouldEqual, 3)
		})

		Convey("Raw commands are decoded before issuing", func() {
			c, err := m.IssueRaw(ctx, []byte(`{"action":"LYRICS_SYNC","text":"la","timestamp":1}`))
			So(err, ShouldBeNil)
			So(c, ShouldResemble, command.LyricsSync{Text: "la"})
			So(m.View().Lyric, ShouldEqual, "la")

			_, err = m.IssueRaw(ctx, []byte(`{"action":"DANCE","timestamp":1}`))
			So(errors.Is(err, command.ErrUnknownAction), ShouldBeTrue)
		})

		Convey("Commands from another master are folded in and unknown ones ignored", func() {
			So(peer.Publish(ctx, bus.TopicCommand, []byte(`{"action":"DANCE","timestamp":1}`)), ShouldBeNil)
			So(peer.Publish(ctx, bus.TopicCommand, encode(t, command.StudioMode{Enabled: true}, 5)), ShouldBeNil)
			So(waitFor(func() bool { return m.View().StudioMode }), ShouldBeTrue)
		})

		Convey("A scheduled start fires once behind the compensation", func() {
			target, err := m.ScheduleRecording(ctx)
			So(err, ShouldBeNil)
			So(target, ShouldEqual, 14_000)
			So(waitFor(func() bool { return cmds.len() == 1 }), ShouldBeTrue)
			So(cmds.commands()[0], ShouldResemble, command.StartRecordScheduled{TargetTimeMs: 14_000})
			So(m.View().Recording, ShouldBeTrue)

			clk.Set(14_129)
			time.Sleep(30 * time.Millisecond)
			So(len(fired), ShouldEqual, 0)

			clk.Set(14_130)
			select {
			case got := <-fired:
				So(got, ShouldEqual, 14_000)
			case <-time.After(time.Second):
				So("scheduled start did not fire", ShouldBeEmpty)
			}
			So(m.Pending().Fired(), ShouldBeTrue)
		})

		Convey("Stopping cancels a pending start", func() {
			_, err := m.ScheduleRecording(ctx)
			So(err, ShouldBeNil)
			pending := m.Pending()
			So(pending, ShouldNotBeNil)
			So(m.StopRecording(ctx), ShouldBeNil)
			So(pending.Canceled(), ShouldBeTrue)
			So(m.Pending(), ShouldBeNil)

			clk.Set(20_000)
			time.Sleep(30 * time.Millisecond)
			So(len(fired), ShouldEqual, 0)
			So(m.View().Recording, ShouldBeFalse)
		})

		Convey("Connected readings name a chord", func() {
			for _, tc := range []struct {
				part string
				note model.Note
			}{{"S", model.NoteC}, {"A", model.NoteE}, {"T", model.NoteG}} {
				So(peer.Publish(ctx, bus.TopicTelemetry, telemetry(t, tc.part, sung(tc.note, 4))), ShouldBeNil)
			}
			So(waitFor(func() bool { _, ok := m.Chord(); return ok }), ShouldBeTrue)
			chord, _ := m.Chord()
			So(chord.Name, ShouldEqual, "C Major")
		})

		Convey("Silent satellites go stale but stay listed", func() {
			So(peer.Publish(ctx, bus.TopicTelemetry, telemetry(t, "Bass", sung(model.NoteE, 2))), ShouldBeNil)
			So(waitFor(func() bool { return len(m.Satellites()) == 1 }), ShouldBeTrue)

			clk.Set(12_999)
			So(m.Sweep(), ShouldBeEmpty)
			clk.Set(13_001)
			So(m.Sweep(), ShouldResemble, []string{"Bass"})
			sats := m.Satellites()
			So(sats, ShouldHaveLength, 1)
			So(sats[0].Connected, ShouldBeFalse)
			So(sats[0].LastReading, ShouldBeNil)
		})

		Convey("Backing uploads preload and clearing the room removes them", func() {
			clk.Set(11_000)
			v, err := m.UploadBacking(ctx, "song.wav", []byte("mr"), "audio/wav")
			So(err, ShouldBeNil)
			So(waitFor(func() bool { return cmds.len() == 1 }), ShouldBeTrue)
			So(cmds.commands()[0], ShouldResemble, command.PreloadTrack{URL: v.URL})
			So(m.View().BackingTrackURL, ShouldEqual, v.URL)

			n, err := m.ClearRoom(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
			So(m.View().BackingTrackURL, ShouldBeEmpty)
		})
	})
}

// interruptingBus runs during once, right after the first STUDIO_MODE
// command goes out, while the rest of a replay burst is still pending.
type interruptingBus struct {
	bus.Bus
	once   sync.Once
	during func()
}

func (b *interruptingBus) Publish(ctx context.Context, topic bus.Topic, payload []byte) error {
	err := b.Bus.Publish(ctx, topic, payload)
	if env, derr := command.Decode(payload); derr == nil && topic == bus.TopicCommand {
		if _, ok := env.Command.(command.StudioMode); ok {
			b.once.Do(b.during)
		}
	}
	return err
}

func lastRecordingCommand(cmds []command.Command) command.Command {
	var last command.Command
	for _, c := range cmds {
		switch c.(type) {
		case command.StartRecord, command.StartRecordScheduled, command.StopRecord:
			last = c
		}
	}
	return last
}

func TestMasterIssueDuringReplay(t *testing.T) {
	Convey("Given a master whose replay burst is interrupted by a start", t, func() {
		ctx := context.Background()
		hub := bus.NewHub()
		wrapped := &interruptingBus{Bus: hub.Join("room")}

		m := service.NewMaster("room", wrapped, service.NewLibrary(repository.NewMemory()),
			service.WithMasterClock(clock.NewManual(10_000)),
			service.WithReplaySettle(10*time.Millisecond),
			service.WithMasterLogger(logger.Nop()),
		)
		issued := make(chan error, 1)
		wrapped.during = func() {
			go func() { issued <- m.Issue(ctx, command.StartRecord{}) }()
			time.Sleep(30 * time.Millisecond)
		}
		So(m.Start(ctx), ShouldBeNil)
		defer m.Close()

		peer := hub.Join("room")
		defer peer.Close()
		cmds := listen(t, peer, bus.TopicCommand)

		So(peer.Publish(ctx, bus.TopicTelemetry, telemetry(t, "Bass", nil)), ShouldBeNil)

		select {
		case err := <-issued:
			So(err, ShouldBeNil)
		case <-time.After(2 * time.Second):
			So("start was never issued", ShouldBeEmpty)
		}
		So(waitFor(func() bool { return cmds.len() == 4 }), ShouldBeTrue)

		Convey("The room ends on the command the master last applied", func() {
			So(m.View().Recording, ShouldBeTrue)
			So(lastRecordingCommand(cmds.commands()), ShouldResemble, command.StartRecord{})
		})
	})
}
