package pitch

import (
	"slices"
	"strconv"
	"strings"

	"github.com/okian/chorus/internal/domain/model"
)

// ChordType names a recognised interval pattern.
type ChordType string

// Recognised chord qualities.
const (
	ChordMajor ChordType = "Major"
	ChordMinor ChordType = "minor"
	ChordDim   ChordType = "dim"
	ChordAug   ChordType = "aug"
	ChordSus4  ChordType = "sus4"
	ChordSus2  ChordType = "sus2"
	ChordDom7  ChordType = "7"
	ChordMaj7  ChordType = "maj7"
	ChordMin7  ChordType = "m7"
)

var chordPatterns = map[string]ChordType{
	"0,4,7":    ChordMajor,
	"0,3,7":    ChordMinor,
	"0,3,6":    ChordDim,
	"0,4,8":    ChordAug,
	"0,5,7":    ChordSus4,
	"0,2,7":    ChordSus2,
	"0,4,7,10": ChordDom7,
	"0,4,7,11": ChordMaj7,
	"0,3,7,10": ChordMin7,
}

// Chord is a named triad or seventh.
type Chord struct {
	Root string    `json:"root"`
	Type ChordType `json:"type"`
	Name string    `json:"name"`
}

// DetectChord names the chord formed by the distinct pitch classes in notes,
// trying each one as the root so inversions are recognised. At least three
// distinct classes are required.
func DetectChord(notes []model.Note) (Chord, bool) {
	var unique []model.Note
	for _, n := range notes {
		if n < model.NoteC || n > model.NoteB {
			continue
		}
		if !slices.Contains(unique, n) {
			unique = append(unique, n)
		}
	}
	if len(unique) < 3 {
		return Chord{}, false
	}

	intervals := make([]int, len(unique))
	parts := make([]string, len(unique))
	for _, root := range unique {
		for i, n := range unique {
			intervals[i] = (int(n) - int(root) + 12) % 12
		}
		slices.Sort(intervals)
		for i, v := range intervals {
			parts[i] = strconv.Itoa(v)
		}
		if typ, ok := chordPatterns[strings.Join(parts, ",")]; ok {
			display := displayRoot(root)
			return Chord{Root: display, Type: typ, Name: display + " " + string(typ)}, true
		}
	}
	return Chord{}, false
}

// DetectChordFromReadings is DetectChord over the notes of live readings.
func DetectChordFromReadings(readings []*model.PitchReading) (Chord, bool) {
	notes := make([]model.Note, 0, len(readings))
	for _, r := range readings {
		if r != nil {
			notes = append(notes, r.Note)
		}
	}
	return DetectChord(notes)
}

func displayRoot(n model.Note) string {
	switch n {
	case model.NoteASharp:
		return "Bb"
	case model.NoteDSharp:
		return "Eb"
	default:
		return n.String()
	}
}
