package clock

import "errors"

// Sentinel errors.
var (
	ErrSyncInFlight = errors.New("clock: sync already in flight")
	ErrCanceled     = errors.New("clock: scheduled action canceled")
)
