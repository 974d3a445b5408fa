package model

import (
	"fmt"
	"strings"
)

// Note is one of the twelve pitch classes, C through B.
type Note int

// Pitch classes in chromatic order starting at C.
const (
	NoteC Note = iota
	NoteCSharp
	NoteD
	NoteDSharp
	NoteE
	NoteF
	NoteFSharp
	NoteG
	NoteGSharp
	NoteA
	NoteASharp
	NoteB
)

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// flats maps flat spellings onto the sharp names used internally.
var flats = map[string]string{"Db": "C#", "Eb": "D#", "Gb": "F#", "Ab": "G#", "Bb": "A#"}

func (n Note) String() string {
	if n < 0 || n > NoteB {
		return fmt.Sprintf("Note(%d)", int(n))
	}
	return noteNames[n]
}

// ParseNote accepts sharp or flat spellings and ignores any octave digits.
func ParseNote(s string) (Note, error) {
	s = strings.TrimRight(strings.TrimSpace(s), "0123456789-")
	if sharp, ok := flats[s]; ok {
		s = sharp
	}
	for i, name := range noteNames {
		if name == s {
			return Note(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownNote, s)
}

// MarshalText encodes the note by name so telemetry stays readable.
func (n Note) MarshalText() ([]byte, error) {
	if n < 0 || n > NoteB {
		return nil, fmt.Errorf("%w: %d", ErrUnknownNote, int(n))
	}
	return []byte(noteNames[n]), nil
}

// UnmarshalText decodes a note name.
func (n *Note) UnmarshalText(b []byte) error {
	v, err := ParseNote(string(b))
	if err != nil {
		return err
	}
	*n = v
	return nil
}

// PitchSample is a raw per-frame estimate.
type PitchSample struct {
	FrequencyHz       float64
	Confidence        float64
	LoudnessRMS       float64
	CapturedAtLocalMs int64
}

// PitchReading is a smoothed, note-mapped estimate.
type PitchReading struct {
	Note        Note    `json:"note"`
	Octave      int     `json:"octave"`
	Cents       int     `json:"cents"`
	FrequencyHz float64 `json:"frequency"`
}

// Label renders the reading as e.g. "A4".
func (r PitchReading) Label() string {
	return fmt.Sprintf("%s%d", r.Note, r.Octave)
}
