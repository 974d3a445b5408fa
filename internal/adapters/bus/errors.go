package bus

import "errors"

// Sentinel errors.
var (
	ErrClosed       = errors.New("bus: closed")
	ErrUnknownTopic = errors.New("bus: unknown topic")
)
