package model

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseNote(t *testing.T) {
	cases := map[string]Note{
		"C":   NoteC,
		"C#4": NoteCSharp,
		"Bb":  NoteASharp,
		"Eb3": NoteDSharp,
		"B":   NoteB,
	}
	for in, want := range cases {
		got, err := ParseNote(in)
		if err != nil {
			t.Fatalf("ParseNote(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseNote(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseNote("H"); !errors.Is(err, ErrUnknownNote) {
		t.Fatalf("expected ErrUnknownNote, got %v", err)
	}
}

func TestTelemetryWireShape(t *testing.T) {
	msg := Telemetry{
		PartID:      "Tenor",
		Pitch:       &PitchReading{Note: NoteA, Octave: 4, Cents: -3, FrequencyHz: 439.2},
		TimestampMs: 1700000000000,
	}
	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"part":"Tenor","pitch":{"note":"A","octave":4,"cents":-3,"frequency":439.2},"timestamp":1700000000000}`
	if string(b) != want {
		t.Fatalf("got %s", b)
	}

	var silent Telemetry
	if err := json.Unmarshal([]byte(`{"part":"Bass","pitch":null,"timestamp":5}`), &silent); err != nil {
		t.Fatal(err)
	}
	if silent.Pitch != nil || silent.PartID != "Bass" {
		t.Fatalf("unexpected decode %+v", silent)
	}
}

func TestClockOffsetApply(t *testing.T) {
	o := ClockOffset{OffsetMs: -250, IsValid: true}
	if got := o.Apply(10_000); got != 9_750 {
		t.Fatalf("Apply = %d", got)
	}
}

func TestKeyRoundTrip(t *testing.T) {
	if got := EncodeKey(" Room 1 "); got != "Um9vbSAx" {
		t.Fatalf("EncodeKey = %q", got)
	}
	for _, in := range []string{"Soprano", "알토", "a/b?c"} {
		key := EncodeKey(in)
		got, err := DecodeKey(key)
		if err != nil || got != in {
			t.Fatalf("DecodeKey(%q) = %q, %v", key, got, err)
		}
	}
	for _, bad := range []string{"!!", "S1"} {
		if _, err := DecodeKey(bad); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("DecodeKey(%q): expected ErrInvalidKey, got %v", bad, err)
		}
	}
}
