package pitch

import (
	"fmt"
	"math"

	"github.com/okian/chorus/internal/domain/model"
)

// Reference pitch bounds and default.
const (
	DefaultA4 = 440.0
	MinA4     = 430.0
	MaxA4     = 450.0
	a4MIDI    = 69
)

// ValidateA4 reports whether a4 is an accepted reference pitch.
func ValidateA4(a4 float64) error {
	if a4 < MinA4 || a4 > MaxA4 {
		return fmt.Errorf("%w: %.2f", ErrReferenceOutOfRange, a4)
	}
	return nil
}

// MIDI returns the nearest MIDI note number for freq against a4.
func MIDI(freq, a4 float64) int {
	return int(math.Round(a4MIDI + 12*math.Log2(freq/a4)))
}

// FrequencyOf returns the equal-tempered frequency of a MIDI note.
func FrequencyOf(midi int, a4 float64) float64 {
	return a4 * math.Pow(2, float64(midi-a4MIDI)/12)
}

// ReadingFor maps a frequency onto the nearest equal-tempered note.
func ReadingFor(freq, a4 float64) *model.PitchReading {
	if freq <= 0 || math.IsNaN(freq) || math.IsInf(freq, 0) {
		return nil
	}
	midi := MIDI(freq, a4)
	perfect := FrequencyOf(midi, a4)
	return &model.PitchReading{
		Note:        model.Note(((midi % 12) + 12) % 12),
		Octave:      floorDiv(midi, 12) - 1,
		Cents:       int(math.Round(1200 * math.Log2(freq/perfect))),
		FrequencyHz: freq,
	}
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
