package mixdown_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/okian/chorus/internal/audio"
	"github.com/okian/chorus/internal/domain/mixdown"
	"github.com/okian/chorus/internal/domain/model"
	"github.com/okian/chorus/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func constantWAV(t *testing.T, rate int, seconds, level float64) []byte {
	t.Helper()
	samples := make([]float64, int(float64(rate)*seconds))
	for i := range samples {
		samples[i] = level
	}
	b, err := audio.EncodeMono(&audio.Clip{Samples: samples, SampleRate: rate})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return b
}

func firstNonSilent(x []float64) int {
	for i, v := range x {
		if math.Abs(v) > 1e-6 {
			return i
		}
	}
	return -1
}

func muted(ids ...string) map[string]mixdown.TrackSettings {
	out := make(map[string]mixdown.TrackSettings, len(ids))
	for _, id := range ids {
		out[id] = mixdown.TrackSettings{Muted: true}
	}
	return out
}

func TestEngineRender(t *testing.T) {
	ctx := context.Background()

	Convey("Given two vocals at 0 and 200ms and a backing track", t, func() {
		engine := mixdown.NewEngine(mixdown.WithSeed(1), mixdown.WithLogger(logger.Nop()))
		a := model.CapturedArtifact{Name: "a.wav", OwnerPartID: "Soprano", OffsetMs: 0, Payload: constantWAV(t, 44100, 1, 0.5)}
		b := model.CapturedArtifact{Name: "b.wav", OwnerPartID: "Alto", OffsetMs: 200, Payload: constantWAV(t, 44100, 1, 0.5)}
		backing := &model.BackingTrackVersion{Name: "mr.wav"}
		req := mixdown.Request{
			Vocals:         []model.CapturedArtifact{a, b},
			Backing:        backing,
			BackingPayload: constantWAV(t, 22050, 1, 0.25),
		}

		Convey("The mix lasts backing duration plus the record start delay", func() {
			mix, err := engine.Render(ctx, req)
			So(err, ShouldBeNil)
			So(len(mix.Left), ShouldEqual, 110250)
			So(len(mix.Right), ShouldEqual, len(mix.Left))
			So(mix.Duration(), ShouldEqual, 2500*time.Millisecond)
			So(mix.Tracks, ShouldEqual, 3)
		})

		Convey("The 200ms vocal starts 200ms after the 0ms vocal", func() {
			onlyA := req
			onlyA.Settings = mixdown.Settings{Tracks: muted("b.wav", mixdown.BackingTrackID)}
			mixA, err := engine.Render(ctx, onlyA)
			So(err, ShouldBeNil)

			onlyB := req
			onlyB.Settings = mixdown.Settings{Tracks: muted("a.wav", mixdown.BackingTrackID)}
			mixB, err := engine.Render(ctx, onlyB)
			So(err, ShouldBeNil)

			delta := firstNonSilent(mixB.Left) - firstNonSilent(mixA.Left)
			So(math.Abs(float64(delta-8820)), ShouldBeLessThanOrEqualTo, 1)
		})

		Convey("The backing track sits at the record start delay", func() {
			onlyBacking := req
			onlyBacking.Settings = mixdown.Settings{Tracks: muted("a.wav", "b.wav")}
			mix, err := engine.Render(ctx, onlyBacking)
			So(err, ShouldBeNil)
			So(firstNonSilent(mix.Left), ShouldEqual, 66150)
		})

		Convey("A negative nudge skips into the vocal", func() {
			nudged := req
			nudged.Vocals = []model.CapturedArtifact{b}
			nudged.Backing = nil
			nudged.Settings = mixdown.Settings{Tracks: map[string]mixdown.TrackSettings{"b.wav": {NudgeMs: -500}}}
			mix, err := engine.Render(ctx, nudged)
			So(err, ShouldBeNil)
			So(firstNonSilent(mix.Left), ShouldEqual, 0)
			So(len(mix.Left), ShouldEqual, 30870)
		})

		Convey("Hard pan puts a track in one channel", func() {
			panned := req
			panned.Vocals = []model.CapturedArtifact{a}
			panned.Backing = nil
			panned.Settings = mixdown.Settings{Tracks: map[string]mixdown.TrackSettings{"a.wav": {Pan: -1}}}
			mix, err := engine.Render(ctx, panned)
			So(err, ShouldBeNil)
			So(mix.Left[100], ShouldAlmostEqual, 0.5, 1e-3)
			So(mix.Right[100], ShouldAlmostEqual, 0, 1e-9)
		})

		Convey("Reverb extends the render by the tail", func() {
			wet := req
			wet.Settings = mixdown.Settings{Reverb: 0.3}
			mix, err := engine.Render(ctx, wet)
			So(err, ShouldBeNil)
			So(len(mix.Left), ShouldEqual, 110250+132300)
			So(math.Abs(mix.Left[110250+100]), ShouldBeGreaterThan, 0)
		})

		Convey("A broken backing track does not abort the mix", func() {
			broken := req
			broken.BackingPayload = []byte("not audio")
			mix, err := engine.Render(ctx, broken)
			So(err, ShouldBeNil)
			So(mix.Tracks, ShouldEqual, 2)
			So(len(mix.Left), ShouldEqual, 52920)

			fetchFailed := req
			fetchFailed.BackingErr = errors.New("fetch failed")
			mix, err = engine.Render(ctx, fetchFailed)
			So(err, ShouldBeNil)
			So(mix.Tracks, ShouldEqual, 2)
		})

		Convey("A broken vocal aborts with an error naming it", func() {
			bad := model.CapturedArtifact{Name: "bad.wav", OwnerPartID: "Bass", Payload: []byte("garbage")}
			worse := model.CapturedArtifact{Name: "worse.wav", OwnerPartID: "Tenor"}
			broken := req
			broken.Vocals = []model.CapturedArtifact{a, bad, worse}

			mix, err := engine.Render(ctx, broken)
			So(mix, ShouldBeNil)
			var merr *mixdown.MixdownError
			So(errors.As(err, &merr), ShouldBeTrue)
			So(merr.Artifacts(), ShouldResemble, []string{"bad.wav", "worse.wav"})
			So(errors.Is(err, audio.ErrInvalidWAV), ShouldBeTrue)
		})

		Convey("An empty request has nothing to mix", func() {
			_, err := engine.Render(ctx, mixdown.Request{})
			So(errors.Is(err, mixdown.ErrNothingToMix), ShouldBeTrue)
		})

		Convey("The mix encodes to a stereo WAV", func() {
			mix, err := engine.Render(ctx, req)
			So(err, ShouldBeNil)
			wav, err := mix.WAV()
			So(err, ShouldBeNil)
			clip, err := audio.Decode(wav)
			So(err, ShouldBeNil)
			So(clip.SampleRate, ShouldEqual, 44100)
			So(len(clip.Samples), ShouldEqual, 110250)
		})
	})
}
