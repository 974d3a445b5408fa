package simulator

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/chorus/internal/adapters/http/api"
	"github.com/okian/chorus/internal/adapters/repository"
	service "github.com/okian/chorus/internal/app"
	"github.com/okian/chorus/internal/audio"
	"github.com/okian/chorus/internal/config"
	"github.com/okian/chorus/internal/domain/model"
	"github.com/okian/chorus/internal/domain/pitch"
	"github.com/okian/chorus/pkg/logger"
)

func init() {
	_ = logger.Init()
	_ = logger.SetLevelString("error")
}

func TestTones(t *testing.T) {
	Convey("Synthetic parts voice a C major chord", t, func() {
		var readings []*model.PitchReading
		for _, part := range []string{"Soprano", "alto", "TENOR", "Bass"} {
			readings = append(readings, pitch.ReadingFor(PartFrequency(part, 440), 440))
		}
		chord, ok := pitch.DetectChordFromReadings(readings)
		So(ok, ShouldBeTrue)
		So(chord.Name, ShouldEqual, "C Major")

		So(PartFrequency("Baritone", 442), ShouldEqual, 442)
	})

	Convey("Synth renders the requested length", t, func() {
		clip := Synth(220, 0.5)
		So(clip.SampleRate, ShouldEqual, synthRate)
		So(clip.Samples, ShouldHaveLength, synthRate/2)
	})
}

func TestConfigDefaults(t *testing.T) {
	Convey("Zero fields get defaults and set ones are kept", t, func() {
		cfg := &Config{Dedupe: 16, Parts: []string{"Alto"}}
		cfg.Defaults()
		So(cfg.Dedupe, ShouldEqual, 16)
		So(cfg.Parts, ShouldResemble, []string{"Alto"})
		So(cfg.Room, ShouldEqual, "rehearsal")
		So(cfg.FrameSize, ShouldEqual, 4096)

		empty := &Config{}
		empty.Defaults()
		So(empty.Dedupe, ShouldEqual, 1024)
		So(empty.Timeout, ShouldEqual, 30*time.Second)
	})
}

func TestClipRecorder(t *testing.T) {
	Convey("Given a recorder with a controlled clock", t, func() {
		now := time.Unix(100, 0)
		r := NewClipRecorder(Synth(440, 0.1))
		r.now = func() time.Time { return now }
		ctx := context.Background()

		Convey("Stopping before starting fails", func() {
			_, _, err := r.Stop(ctx)
			So(errors.Is(err, ErrNotRecording), ShouldBeTrue)
		})

		Convey("A take loops the clip for its whole length", func() {
			So(r.Start(ctx), ShouldBeNil)
			So(errors.Is(r.Start(ctx), ErrAlreadyActive), ShouldBeTrue)

			now = now.Add(500 * time.Millisecond)
			data, ext, err := r.Stop(ctx)
			So(err, ShouldBeNil)
			So(ext, ShouldEqual, "wav")

			clip, err := audio.Decode(data)
			So(err, ShouldBeNil)
			So(clip.Samples, ShouldHaveLength, synthRate/2)
		})
	})
}

func TestPacedSource(t *testing.T) {
	Convey("Frames are released at the pacing interval", t, func() {
		frame := pitch.Frame{Samples: make([]float64, 8), SampleRate: 8000}
		src := NewPacedSource(pitch.NewSliceSource(frame, frame, frame), 30*time.Millisecond)
		ctx := context.Background()

		start := time.Now()
		for range 3 {
			_, err := src.NextFrame(ctx)
			So(err, ShouldBeNil)
		}
		So(time.Since(start), ShouldBeGreaterThanOrEqualTo, 60*time.Millisecond)

		_, err := src.NextFrame(ctx)
		So(errors.Is(err, io.EOF), ShouldBeTrue)
	})

	Convey("A canceled context interrupts the wait", t, func() {
		frame := pitch.Frame{Samples: make([]float64, 8), SampleRate: 8000}
		src := NewPacedSource(pitch.NewSliceSource(frame, frame), time.Hour)
		ctx, cancel := context.WithCancel(context.Background())

		_, err := src.NextFrame(ctx)
		So(err, ShouldBeNil)
		cancel()
		_, err = src.NextFrame(ctx)
		So(errors.Is(err, context.Canceled), ShouldBeTrue)
	})
}

type deps struct{ *service.Service }

func (d deps) Room(ctx context.Context, id string) (api.Room, error) {
	m, err := d.Master(ctx, id)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func TestRun(t *testing.T) {
	Convey("Given a running server", t, func() {
		cfg := config.New()
		cfg.WorkerCount = 1
		cfg.ScheduleLookaheadMS = 300
		cfg.ReplaySettleMS = 20
		svc := service.New(
			service.WithConfig(cfg),
			service.WithStore(repository.NewMemory()),
			service.WithLogger(logger.Nop()),
		)
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()

		ts := httptest.NewServer(api.NewServer(deps{svc}, svc.Hub(), api.WithLogger(logger.Nop())).Router())
		defer ts.Close()

		Convey("Unreachable servers are reported", func() {
			_, err := Run(context.Background(), &Config{BaseURL: "http://127.0.0.1:1", Timeout: time.Second})
			So(errors.Is(err, ErrUnreachable), ShouldBeTrue)
		})

		Convey("A scheduled take is recorded and uploaded by every part", func() {
			stats, err := Run(context.Background(), &Config{
				BaseURL: ts.URL,
				Room:    "sim",
				Parts:   []string{"Soprano", "Bass"},
				Take:    300 * time.Millisecond,
				Timeout: 5 * time.Second,
			})
			So(err, ShouldBeNil)
			So(stats.Satellites.Load(), ShouldEqual, 2)
			So(stats.Uploads.Load(), ShouldEqual, 2)
			So(stats.UploadFailures.Load(), ShouldEqual, 0)
			So(stats.Takes, ShouldEqual, 1)

			takes, err := svc.Takes(context.Background(), "sim")
			So(err, ShouldBeNil)
			So(takes[0].Parts, ShouldHaveLength, 2)
		})
	})
}
