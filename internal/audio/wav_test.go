package audio

import (
	"errors"
	"math"
	"testing"
)

func sine(freq float64, rate int, seconds float64, amp float64) *Clip {
	n := int(float64(rate) * seconds)
	s := make([]float64, n)
	for i := range s {
		s[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}
	return &Clip{Samples: s, SampleRate: rate}
}

func TestEncodeDecodeMono(t *testing.T) {
	in := sine(440, 22050, 0.25, 0.5)
	data, err := EncodeMono(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(data[:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatalf("missing RIFF/WAVE header: %q", data[:12])
	}

	out, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.SampleRate != 22050 || len(out.Samples) != len(in.Samples) {
		t.Fatalf("got rate=%d len=%d", out.SampleRate, len(out.Samples))
	}
	for i := range in.Samples {
		if math.Abs(in.Samples[i]-out.Samples[i]) > 1.0/16000 {
			t.Fatalf("sample %d: %f vs %f", i, in.Samples[i], out.Samples[i])
		}
	}
}

func TestEncodeStereoDownmixes(t *testing.T) {
	left := []float64{0.5, 0.5, 0.5, 0.5}
	right := []float64{-0.5, 0, 0.5, 1.5}
	data, err := EncodeStereo(left, right, 8000)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(data) != 44+4*2*2 {
		t.Fatalf("unexpected size %d", len(data))
	}
	clip, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(clip.Samples) != 4 {
		t.Fatalf("expected 4 mono frames, got %d", len(clip.Samples))
	}
	if math.Abs(clip.Samples[0]) > 1e-3 {
		t.Fatalf("expected cancellation, got %f", clip.Samples[0])
	}
	// right channel clamps to 1.0
	if math.Abs(clip.Samples[3]-0.75) > 1e-3 {
		t.Fatalf("expected clamped mean 0.75, got %f", clip.Samples[3])
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte("definitely not a wav file at all....")); !errors.Is(err, ErrInvalidWAV) {
		t.Fatalf("expected ErrInvalidWAV, got %v", err)
	}
}

func TestQuantizeRails(t *testing.T) {
	if quantize(-1) != -32768 || quantize(1) != 32767 || quantize(2) != 32767 || quantize(0) != 0 {
		t.Fatal("quantize rails")
	}
}

func TestResample(t *testing.T) {
	c := sine(100, 48000, 1, 0.3)
	r := c.Resample(44100)
	if r.SampleRate != 44100 {
		t.Fatalf("rate %d", r.SampleRate)
	}
	if math.Abs(r.Seconds()-1) > 0.001 {
		t.Fatalf("duration %f", r.Seconds())
	}
	if same := c.Resample(48000); same != c {
		t.Fatal("expected identity when rates match")
	}
	if rms := RMS(r.Samples); math.Abs(rms-0.3/math.Sqrt2) > 0.01 {
		t.Fatalf("rms drifted: %f", rms)
	}
}
