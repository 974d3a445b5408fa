package mixdown

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/mjibson/go-dsp/fft"
)

// Impulse response defaults.
const (
	DefaultReverbDuration = 2500 * time.Millisecond
	DefaultReverbDecay    = 4.0
	irLowPassAlpha        = 0.15
)

// impulseResponse synthesises a stereo hall: white noise through a one-pole
// low-pass, shaped by (1 - i/n)^decay.
func impulseResponse(rate int, d time.Duration, decay float64, seed uint64) (left, right []float64) {
	n := int(float64(rate) * d.Seconds())
	if n < 1 {
		n = 1
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	left = make([]float64, n)
	right = make([]float64, n)
	var lpL, lpR float64
	for i := 0; i < n; i++ {
		env := math.Pow(1-float64(i)/float64(n), decay)
		lpL += irLowPassAlpha * (rng.Float64()*2 - 1 - lpL)
		lpR += irLowPassAlpha * (rng.Float64()*2 - 1 - lpR)
		left[i] = lpL * env
		right[i] = lpR * env
	}
	return left, right
}

// convolve returns x*h truncated to len(x), by FFT overlap-add.
func convolve(x, h []float64) []float64 {
	out := make([]float64, len(x))
	if len(x) == 0 || len(h) == 0 {
		return out
	}
	block := nextPow2(len(h))
	size := nextPow2(block + len(h) - 1)

	hp := make([]float64, size)
	copy(hp, h)
	hf := fft.FFTReal(hp)

	seg := make([]float64, size)
	for start := 0; start < len(x); start += block {
		end := min(start+block, len(x))
		clear(seg)
		copy(seg, x[start:end])

		xf := fft.FFTReal(seg)
		for i := range xf {
			xf[i] *= hf[i]
		}
		y := fft.IFFT(xf)
		for i := 0; i < size && start+i < len(out); i++ {
			out[start+i] += real(y[i])
		}
	}
	return out
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
