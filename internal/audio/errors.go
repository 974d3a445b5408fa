package audio

import "errors"

// Sentinel errors for decoding and encoding.
var (
	ErrInvalidWAV  = errors.New("audio: not a valid WAV stream")
	ErrEmptyAudio  = errors.New("audio: no samples")
	ErrUnsupported = errors.New("audio: unsupported format")
)
