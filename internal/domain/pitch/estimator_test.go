package pitch

import (
	"math"
	"math/rand/v2"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

const testRate = 44100

func sineFrame(freq, amp float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/testRate)
	}
	return out
}

func TestEstimator(t *testing.T) {
	Convey("Given a default estimator", t, func() {
		est := NewEstimator()

		Convey("Silence yields no pitch", func() {
			s, outcome := est.Analyze(make([]float64, 4096), testRate, ModeVocal)
			So(s, ShouldBeNil)
			So(outcome, ShouldEqual, OutcomeGated)
		})

		Convey("Pure tones are estimated within 1%", func() {
			for _, f := range []float64{82.41, 110, 220, 261.63, 440, 659.25, 880, 1046.5} {
				s := est.Estimate(sineFrame(f, 0.5, 4096), testRate, ModeVocal)
				So(s, ShouldNotBeNil)
				So(math.Abs(s.FrequencyHz-f)/f, ShouldBeLessThan, 0.01)
				So(s.Confidence, ShouldBeGreaterThanOrEqualTo, DefaultClarity)
				So(s.LoudnessRMS, ShouldAlmostEqual, 0.5/math.Sqrt2, 0.01)
			}
		})

		Convey("A quiet tone passes the piano gate but not the vocal gate", func() {
			frame := sineFrame(330, 0.02, 4096)
			So(est.Estimate(frame, testRate, ModeVocal), ShouldBeNil)
			s := est.Estimate(frame, testRate, ModePiano)
			So(s, ShouldNotBeNil)
			So(math.Abs(s.FrequencyHz-330)/330, ShouldBeLessThan, 0.01)
		})

		Convey("Tones above the vocal band are rejected", func() {
			s, outcome := est.Analyze(sineFrame(1500, 0.5, 4096), testRate, ModeVocal)
			So(s, ShouldBeNil)
			So(outcome, ShouldEqual, OutcomeOutOfBand)
		})

		Convey("Broadband noise has no clear period", func() {
			rng := rand.New(rand.NewPCG(7, 11))
			frame := make([]float64, 4096)
			for i := range frame {
				frame[i] = rng.Float64()*2 - 1
			}
			s, outcome := est.Analyze(frame, testRate, ModeVocal)
			So(s, ShouldBeNil)
			So(outcome, ShouldEqual, OutcomeUnclear)
		})

		Convey("A custom gate is honoured", func() {
			strict := NewEstimator(WithNoiseGate(ModeVocal, 0.5))
			So(strict.Estimate(sineFrame(440, 0.5, 4096), testRate, ModeVocal), ShouldBeNil)
		})

		Convey("Invalid input is treated as no pitch", func() {
			So(est.Estimate(sineFrame(440, 0.5, 4096), 0, ModeVocal), ShouldBeNil)
			So(est.Estimate([]float64{1, -1}, testRate, ModeVocal), ShouldBeNil)
		})
	})
}

func TestAutocorrelateMatchesDirectSum(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	x := make([]float64, 300)
	for i := range x {
		x[i] = rng.Float64() - 0.5
	}
	got := autocorrelate(x)
	for lag := range x {
		var want float64
		for j := 0; j+lag < len(x); j++ {
			want += x[j] * x[j+lag]
		}
		if math.Abs(got[lag]-want) > 1e-9 {
			t.Fatalf("lag %d: got %g want %g", lag, got[lag], want)
		}
	}
}

func TestTrim(t *testing.T) {
	frame := []float64{0, 0.1, 0.3, -0.5, 0.1, 0.25, 0.05}
	got := trim(frame, 0.2)
	if len(got) != 4 || got[0] != 0.3 || got[3] != 0.25 {
		t.Fatalf("unexpected trim %v", got)
	}
	quiet := []float64{0.1, -0.1}
	if len(trim(quiet, 0.2)) != 2 {
		t.Fatal("quiet frame should be kept whole")
	}
}
