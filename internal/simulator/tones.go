package simulator

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/okian/chorus/internal/audio"
	"github.com/okian/chorus/internal/domain/pitch"
)

const synthRate = 44100

// partMIDI voices a C major chord across the usual choir parts.
var partMIDI = map[string]int{
	"soprano": 72, // C5
	"alto":    67, // G4
	"tenor":   64, // E4
	"bass":    48, // C3
}

// PartFrequency is the tone a synthetic part sings. Unknown parts sing A4.
func PartFrequency(part string, a4 float64) float64 {
	if midi, ok := partMIDI[strings.ToLower(part)]; ok {
		return pitch.FrequencyOf(midi, a4)
	}
	return a4
}

// Synth renders a steady voiced tone with a weak second harmonic.
func Synth(freq float64, seconds float64) *audio.Clip {
	n := int(seconds * synthRate)
	samples := make([]float64, n)
	for i := range samples {
		t := float64(i) / synthRate
		samples[i] = 0.4*math.Sin(2*math.Pi*freq*t) + 0.1*math.Sin(4*math.Pi*freq*t)
	}
	return &audio.Clip{Samples: samples, SampleRate: synthRate}
}

// LoadClip reads a WAV file.
func LoadClip(path string) (*audio.Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read clip: %w", err)
	}
	clip, err := audio.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode clip %s: %w", path, err)
	}
	return clip, nil
}
