// Package audio decodes and encodes PCM WAV payloads and holds the mono
// sample buffers the pitch pipeline and the mixdown engine work on.
package audio

import (
	"math"
	"time"
)

// Clip is a mono buffer of samples in [-1, 1].
type Clip struct {
	Samples    []float64
	SampleRate int
}

// Duration of the clip.
func (c *Clip) Duration() time.Duration {
	if c == nil || c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(c.Samples)) / float64(c.SampleRate) * float64(time.Second))
}

// Seconds is Duration as float seconds.
func (c *Clip) Seconds() float64 {
	if c == nil || c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// Resample converts the clip to rate using linear interpolation. The
// receiver is returned unchanged when the rates already match.
func (c *Clip) Resample(rate int) *Clip {
	if c.SampleRate == rate || rate <= 0 || len(c.Samples) == 0 {
		return c
	}
	ratio := float64(c.SampleRate) / float64(rate)
	n := int(math.Floor(float64(len(c.Samples)) / ratio))
	out := make([]float64, n)
	last := len(c.Samples) - 1
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= last {
			out[i] = c.Samples[last]
			continue
		}
		frac := pos - float64(j)
		out[i] = c.Samples[j]*(1-frac) + c.Samples[j+1]*frac
	}
	return &Clip{Samples: out, SampleRate: rate}
}

// RMS of a sample window.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
