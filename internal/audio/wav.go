package audio

import (
	"bytes"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	pcmFormat = 1
	bitDepth  = 16
)

// Decode reads a PCM WAV payload and downmixes it to a mono Clip.
func Decode(data []byte) (*Clip, error) {
	return DecodeReader(bytes.NewReader(data))
}

// DecodeReader is Decode over a seekable stream.
func DecodeReader(r io.ReadSeeker) (*Clip, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, ErrInvalidWAV
	}
	if d.WavAudioFormat != pcmFormat {
		return nil, fmt.Errorf("%w: wav format %d", ErrUnsupported, d.WavAudioFormat)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidWAV, err)
	}
	channels := int(d.NumChans)
	if channels < 1 || len(buf.Data) < channels {
		return nil, ErrEmptyAudio
	}

	depth := buf.SourceBitDepth
	if depth == 0 {
		depth = int(d.BitDepth)
	}
	scale := 1 / float64(int64(1)<<(uint(depth)-1))

	frames := len(buf.Data) / channels
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum int
		for ch := 0; ch < channels; ch++ {
			sum += buf.Data[i*channels+ch]
		}
		samples[i] = float64(sum) / float64(channels) * scale
	}
	return &Clip{Samples: samples, SampleRate: int(d.SampleRate)}, nil
}

// EncodeMono writes a 16-bit mono WAV.
func EncodeMono(c *Clip) ([]byte, error) {
	if c == nil || len(c.Samples) == 0 {
		return nil, ErrEmptyAudio
	}
	data := make([]int, len(c.Samples))
	for i, v := range c.Samples {
		data[i] = quantize(v)
	}
	return encode(data, c.SampleRate, 1)
}

// EncodeStereo interleaves left and right into a 16-bit stereo WAV.
func EncodeStereo(left, right []float64, rate int) ([]byte, error) {
	if len(left) == 0 || len(left) != len(right) {
		return nil, fmt.Errorf("%w: channel lengths %d/%d", ErrEmptyAudio, len(left), len(right))
	}
	data := make([]int, 2*len(left))
	for i := range left {
		data[2*i] = quantize(left[i])
		data[2*i+1] = quantize(right[i])
	}
	return encode(data, rate, 2)
}

func encode(data []int, rate, channels int) ([]byte, error) {
	ws := &writeSeeker{}
	enc := wav.NewEncoder(ws, rate, bitDepth, channels, pcmFormat)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("wav write: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("wav close: %w", err)
	}
	return ws.Bytes(), nil
}

// quantize clamps to [-1, 1] and scales asymmetrically so both rails map
// onto the full int16 range.
func quantize(v float64) int {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	if v < 0 {
		return int(v * 0x8000)
	}
	return int(v * 0x7FFF)
}
