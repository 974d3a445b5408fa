// Package pitch turns raw audio frames into smoothed, note-mapped pitch
// readings: autocorrelation estimation, a throttled smoothing window, note
// mapping against a configurable A4 and chord naming across several voices.
package pitch

import (
	"math"

	"github.com/mjibson/go-dsp/fft"

	"github.com/okian/chorus/internal/audio"
	"github.com/okian/chorus/internal/domain/model"
)

// ListenMode selects the noise gate applied before estimation.
type ListenMode int

const (
	// ModeVocal uses a tighter gate so quieter neighbours are rejected.
	ModeVocal ListenMode = iota
	// ModePiano admits quieter, sustained sources.
	ModePiano
)

func (m ListenMode) String() string {
	if m == ModePiano {
		return "piano"
	}
	return "vocal"
}

// ParseListenMode maps "vocal"/"piano" to a mode; anything else is vocal.
func ParseListenMode(s string) ListenMode {
	if s == "piano" {
		return ModePiano
	}
	return ModeVocal
}

// Outcome classifies what the estimator did with a frame.
type Outcome string

// Estimator outcomes, used as metric labels.
const (
	OutcomePitched   Outcome = "pitched"
	OutcomeGated     Outcome = "gated"
	OutcomeUnclear   Outcome = "unclear"
	OutcomeOutOfBand Outcome = "out_of_band"
)

// Estimator defaults.
const (
	DefaultVocalGate     = 0.015
	DefaultPianoGate     = 0.005
	DefaultClarity       = 0.6
	DefaultTrimThreshold = 0.2
	MinFrequencyHz       = 70.0
	MaxFrequencyHz       = 1200.0
)

// Estimator is a stateless autocorrelation pitch detector.
type Estimator struct {
	vocalGate     float64
	pianoGate     float64
	clarity       float64
	trimThreshold float64
	minHz, maxHz  float64
}

// EstimatorOption configures an Estimator.
type EstimatorOption func(*Estimator)

// WithNoiseGate sets the RMS threshold for a mode.
func WithNoiseGate(mode ListenMode, rms float64) EstimatorOption {
	return func(e *Estimator) {
		if rms <= 0 {
			return
		}
		if mode == ModePiano {
			e.pianoGate = rms
		} else {
			e.vocalGate = rms
		}
	}
}

// WithClarityThreshold sets the minimum c[T0]/c[0] ratio.
func WithClarityThreshold(v float64) EstimatorOption {
	return func(e *Estimator) {
		if v > 0 && v < 1 {
			e.clarity = v
		}
	}
}

// NewEstimator returns an Estimator with default thresholds.
func NewEstimator(opts ...EstimatorOption) *Estimator {
	e := &Estimator{
		vocalGate:     DefaultVocalGate,
		pianoGate:     DefaultPianoGate,
		clarity:       DefaultClarity,
		trimThreshold: DefaultTrimThreshold,
		minHz:         MinFrequencyHz,
		maxHz:         MaxFrequencyHz,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Estimator) gate(mode ListenMode) float64 {
	if mode == ModePiano {
		return e.pianoGate
	}
	return e.vocalGate
}

// Estimate returns the frame's fundamental, or nil when the frame has no
// usable pitch. A nil result means "no update", not a failure.
func (e *Estimator) Estimate(frame []float64, sampleRate int, mode ListenMode) *model.PitchSample {
	s, _ := e.Analyze(frame, sampleRate, mode)
	return s
}

// Analyze is Estimate plus the reason a frame was rejected.
func (e *Estimator) Analyze(frame []float64, sampleRate int, mode ListenMode) (*model.PitchSample, Outcome) {
	if sampleRate <= 0 || len(frame) < 4 {
		return nil, OutcomeGated
	}
	rms := audio.RMS(frame)
	if rms < e.gate(mode) {
		return nil, OutcomeGated
	}

	trimmed := trim(frame, e.trimThreshold)
	if len(trimmed) < 4 {
		return nil, OutcomeUnclear
	}
	c := autocorrelate(trimmed)
	if c[0] <= 0 {
		return nil, OutcomeUnclear
	}

	// Walk off the zero-lag peak before searching for the period.
	d := 0
	for d < len(c)-1 && c[d] > c[d+1] {
		d++
	}
	maxVal, t0 := math.Inf(-1), -1
	for i := d; i < len(c); i++ {
		if c[i] > maxVal {
			maxVal, t0 = c[i], i
		}
	}
	if t0 <= 0 {
		return nil, OutcomeUnclear
	}
	clarity := maxVal / c[0]
	if clarity < e.clarity {
		return nil, OutcomeUnclear
	}

	period := float64(t0)
	if t0 < len(c)-1 {
		x1, x2, x3 := c[t0-1], c[t0], c[t0+1]
		a := (x1 + x3 - 2*x2) / 2
		b := (x3 - x1) / 2
		if a != 0 {
			period -= b / (2 * a)
		}
	}

	freq := float64(sampleRate) / period
	if freq < e.minHz || freq > e.maxHz || math.IsNaN(freq) {
		return nil, OutcomeOutOfBand
	}
	return &model.PitchSample{
		FrequencyHz: freq,
		Confidence:  clarity,
		LoudnessRMS: rms,
	}, OutcomePitched
}

// trim keeps the span between the first and last sample above thres. A
// frame that never crosses the threshold is analysed whole.
func trim(frame []float64, thres float64) []float64 {
	first, last := -1, -1
	for i, v := range frame {
		if math.Abs(v) > thres {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return frame
	}
	return frame[first : last+1]
}

// autocorrelate computes c[i] = sum_j x[j]*x[j+i] for i in [0, n) through
// the power spectrum of the zero-padded frame.
func autocorrelate(x []float64) []float64 {
	n := len(x)
	size := 1
	for size < 2*n {
		size <<= 1
	}
	padded := make([]float64, size)
	copy(padded, x)

	spectrum := fft.FFTReal(padded)
	for i, v := range spectrum {
		re, im := real(v), imag(v)
		spectrum[i] = complex(re*re+im*im, 0)
	}
	r := fft.IFFT(spectrum)

	out := make([]float64, n)
	for i := range out {
		out[i] = real(r[i])
	}
	return out
}
