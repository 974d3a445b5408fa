package mixdown

import "math"

// Master bus EQ bands.
const (
	lowShelfHz  = 300
	peakHz      = 1000
	peakQ       = 0.5
	highShelfHz = 4000
)

// biquad is a direct form I RBJ cookbook filter.
type biquad struct {
	b0, b1, b2, a1, a2 float64
	x1, x2, y1, y2     float64
}

func newBiquad(b0, b1, b2, a0, a1, a2 float64) *biquad {
	return &biquad{b0: b0 / a0, b1: b1 / a0, b2: b2 / a0, a1: a1 / a0, a2: a2 / a0}
}

// Shelves use slope S=1.
func lowShelf(rate int, freq, gainDB float64) *biquad {
	a, cosw, alpha := shelfTerms(rate, freq, gainDB)
	sa := 2 * math.Sqrt(a) * alpha
	return newBiquad(
		a*((a+1)-(a-1)*cosw+sa),
		2*a*((a-1)-(a+1)*cosw),
		a*((a+1)-(a-1)*cosw-sa),
		(a+1)+(a-1)*cosw+sa,
		-2*((a-1)+(a+1)*cosw),
		(a+1)+(a-1)*cosw-sa,
	)
}

func highShelf(rate int, freq, gainDB float64) *biquad {
	a, cosw, alpha := shelfTerms(rate, freq, gainDB)
	sa := 2 * math.Sqrt(a) * alpha
	return newBiquad(
		a*((a+1)+(a-1)*cosw+sa),
		-2*a*((a-1)+(a+1)*cosw),
		a*((a+1)+(a-1)*cosw-sa),
		(a+1)-(a-1)*cosw+sa,
		2*((a-1)-(a+1)*cosw),
		(a+1)-(a-1)*cosw-sa,
	)
}

func peaking(rate int, freq, q, gainDB float64) *biquad {
	a := math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * freq / float64(rate)
	cosw := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * q)
	return newBiquad(1+alpha*a, -2*cosw, 1-alpha*a, 1+alpha/a, -2*cosw, 1-alpha/a)
}

func shelfTerms(rate int, freq, gainDB float64) (a, cosw, alpha float64) {
	a = math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * freq / float64(rate)
	return a, math.Cos(w0), math.Sin(w0) / 2 * math.Sqrt2
}

func (b *biquad) process(x []float64) {
	for i, in := range x {
		out := b.b0*in + b.b1*b.x1 + b.b2*b.x2 - b.a1*b.y1 - b.a2*b.y2
		b.x2, b.x1 = b.x1, in
		b.y2, b.y1 = b.y1, out
		x[i] = out
	}
}

// equalize runs the three band chain over one channel in place. Bands at
// 0 dB are skipped.
func equalize(x []float64, rate int, eq EQ) {
	if eq.LowDB != 0 {
		lowShelf(rate, lowShelfHz, eq.LowDB).process(x)
	}
	if eq.MidDB != 0 {
		peaking(rate, peakHz, peakQ, eq.MidDB).process(x)
	}
	if eq.HighDB != 0 {
		highShelf(rate, highShelfHz, eq.HighDB).process(x)
	}
}

// panGains is the equal-power law for a mono source, pan in [-1, 1].
func panGains(pan float64) (left, right float64) {
	x := (clampUnit(pan, -1, 1) + 1) / 2
	return math.Cos(x * math.Pi / 2), math.Sin(x * math.Pi / 2)
}
