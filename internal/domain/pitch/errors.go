package pitch

import "errors"

// Sentinel errors.
var (
	ErrReferenceOutOfRange = errors.New("pitch: reference A4 outside 430..450 Hz")
	ErrFrameRate           = errors.New("pitch: frame sample rate must be positive")
)
