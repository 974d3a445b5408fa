package dedupe

import "time"

// Option applies a configuration option to the in-memory deduper.
type Option func(*window)

// WithMaxSize bounds how many ids are kept. The oldest entry is
// evicted first. maxSize <= 0 disables the bound.
func WithMaxSize(maxSize int) Option {
	return func(w *window) {
		w.maxSize = maxSize
	}
}

// WithTTL sets how long an id suppresses repeats. ttl <= 0 keeps
// entries until evicted by size.
func WithTTL(ttl time.Duration) Option {
	return func(w *window) {
		w.ttl = ttl
	}
}

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(w *window) {
		if now != nil {
			w.now = now
		}
	}
}
