// Package mixdown aligns independently captured takes on one timeline and
// renders them, with an optional backing track, into a stereo mix.
package mixdown

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/okian/chorus/internal/audio"
	"github.com/okian/chorus/internal/domain/model"
	"github.com/okian/chorus/pkg/logger"
	"github.com/okian/chorus/pkg/metrics"
)

// Engine defaults.
const (
	DefaultSampleRate       = 44100
	DefaultRecordStartDelay = 1500 * time.Millisecond
	DefaultReverbTail       = 3 * time.Second
)

// Request is everything one render needs. Backing is optional; when
// BackingErr is set or BackingPayload fails to decode the mix proceeds
// without it.
type Request struct {
	Vocals         []model.CapturedArtifact
	Backing        *model.BackingTrackVersion
	BackingPayload []byte
	BackingErr     error
	Settings       Settings
}

// Mix is a rendered stereo buffer.
type Mix struct {
	Left, Right []float64
	SampleRate  int
	Tracks      int
}

// Duration of the mix.
func (m *Mix) Duration() time.Duration {
	if m == nil || m.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(m.Left)) / float64(m.SampleRate) * float64(time.Second))
}

// WAV encodes the mix as 16-bit stereo PCM.
func (m *Mix) WAV() ([]byte, error) {
	return audio.EncodeStereo(m.Left, m.Right, m.SampleRate)
}

// Engine renders takes offline.
type Engine struct {
	sampleRate       int
	recordStartDelay time.Duration
	reverbTail       time.Duration
	reverbDuration   time.Duration
	reverbDecay      float64
	seed             uint64
	logger           logger.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithSampleRate sets the render rate every source is resampled to.
func WithSampleRate(rate int) Option {
	return func(e *Engine) {
		if rate > 0 {
			e.sampleRate = rate
		}
	}
}

// WithRecordStartDelay sets where the backing track sits on the timeline.
func WithRecordStartDelay(d time.Duration) Option {
	return func(e *Engine) { e.recordStartDelay = d }
}

// WithReverb sets the reverb tail, impulse length and decay exponent.
func WithReverb(tail, duration time.Duration, decay float64) Option {
	return func(e *Engine) {
		if tail >= 0 {
			e.reverbTail = tail
		}
		if duration > 0 {
			e.reverbDuration = duration
		}
		if decay > 0 {
			e.reverbDecay = decay
		}
	}
}

// WithSeed fixes the impulse response noise.
func WithSeed(seed uint64) Option {
	return func(e *Engine) { e.seed = seed }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine returns an Engine with defaults applied.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		sampleRate:       DefaultSampleRate,
		recordStartDelay: DefaultRecordStartDelay,
		reverbTail:       DefaultReverbTail,
		reverbDuration:   DefaultReverbDuration,
		reverbDecay:      DefaultReverbDecay,
		seed:             uint64(time.Now().UnixNano()),
		logger:           logger.Get().Named("mixdown"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SampleRate is the render rate.
func (e *Engine) SampleRate() int { return e.sampleRate }

type source struct {
	id    string
	clip  *audio.Clip
	start int
	gain  float64
	pan   float64
}

// Render decodes, places and mixes every source of req. Any vocal failure
// aborts the render with a *MixdownError naming each failed artifact.
func (e *Engine) Render(ctx context.Context, req Request) (*Mix, error) {
	began := time.Now()

	sources, err := e.decodeVocals(ctx, req)
	if err != nil {
		return nil, err
	}
	if backing := e.decodeBacking(ctx, req); backing != nil {
		sources = append(sources, *backing)
	}
	if len(sources) == 0 {
		return nil, ErrNothingToMix
	}
	metrics.RecordMixdownDuration("decode", float64(time.Since(began).Milliseconds()))

	length := 0
	for _, s := range sources {
		length = max(length, s.start+len(s.clip.Samples))
	}
	if length <= 0 {
		return nil, ErrNothingToMix
	}
	reverb := clampUnit(req.Settings.Reverb, 0, 1)
	if reverb > 0 {
		length += e.samples(e.reverbTail.Milliseconds())
	}

	rendered := time.Now()
	left := make([]float64, length)
	right := make([]float64, length)
	for _, s := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		place(left, right, s)
	}

	equalize(left, e.sampleRate, req.Settings.EQ)
	equalize(right, e.sampleRate, req.Settings.EQ)

	if reverb > 0 {
		irL, irR := impulseResponse(e.sampleRate, e.reverbDuration, e.reverbDecay, e.seed)
		wetL := convolve(left, irL)
		wetR := convolve(right, irR)
		dry := 1 - reverb/2
		for i := range left {
			left[i] = left[i]*dry + wetL[i]*reverb
			right[i] = right[i]*dry + wetR[i]*reverb
		}
	}

	metrics.RecordMixdownDuration("render", float64(time.Since(rendered).Milliseconds()))
	metrics.RecordMixdownTracks(len(sources))
	return &Mix{Left: left, Right: right, SampleRate: e.sampleRate, Tracks: len(sources)}, nil
}

func (e *Engine) decodeVocals(ctx context.Context, req Request) ([]source, error) {
	var (
		out      []source
		failures []ArtifactFailure
	)
	for _, a := range req.Vocals {
		clip, err := audio.Decode(a.Payload)
		if err != nil {
			failures = append(failures, ArtifactFailure{ArtifactID: a.ID(), Err: err})
			continue
		}
		ts := req.Settings.track(a.ID())
		out = append(out, source{
			id:    a.ID(),
			clip:  clip.Resample(e.sampleRate),
			start: e.samples(a.OffsetMs + ts.NudgeMs),
			gain:  ts.gain(DefaultVocalVolume),
			pan:   ts.Pan,
		})
	}
	if len(failures) > 0 {
		metrics.RecordMixdownError("decode")
		err := &MixdownError{Failures: failures}
		e.logger.Error(ctx, "vocal decode failed", logger.Int("failed", len(failures)), logger.Error(err))
		return nil, err
	}
	return out, nil
}

func (e *Engine) decodeBacking(ctx context.Context, req Request) *source {
	if req.Backing == nil {
		return nil
	}
	err := req.BackingErr
	var clip *audio.Clip
	if err == nil {
		clip, err = audio.Decode(req.BackingPayload)
	}
	if err != nil {
		metrics.RecordMixdownError("backing")
		e.logger.Warn(ctx, "backing track skipped",
			logger.String("name", req.Backing.Name),
			logger.Error(fmt.Errorf("backing %s: %w", req.Backing.Name, err)))
		return nil
	}
	ts := req.Settings.track(BackingTrackID)
	return &source{
		id:    BackingTrackID,
		clip:  clip.Resample(e.sampleRate),
		start: max(0, e.samples(e.recordStartDelay.Milliseconds()+ts.NudgeMs)),
		gain:  ts.gain(DefaultBackingVolume),
		pan:   ts.Pan,
	}
}

func (e *Engine) samples(ms int64) int {
	return int(math.Round(float64(ms) * float64(e.sampleRate) / 1000))
}

// place mixes s into the bus. A negative start skips the head of the clip.
func place(left, right []float64, s source) {
	if s.gain == 0 {
		return
	}
	gl, gr := panGains(s.pan)
	gl *= s.gain
	gr *= s.gain
	skip := max(0, -s.start)
	at := max(0, s.start)
	for i := skip; i < len(s.clip.Samples); i++ {
		j := at + i - skip
		if j >= len(left) {
			break
		}
		v := s.clip.Samples[i]
		left[j] += v * gl
		right[j] += v * gr
	}
}
