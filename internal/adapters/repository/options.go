package repository

import "time"

type config struct {
	publicURL string
	now       func() time.Time
}

func defaults() config {
	return config{publicURL: "http://localhost:9080", now: time.Now}
}

// Option configures a Store implementation.
type Option func(*config)

// WithPublicURL sets the base URL object URLs are built on.
func WithPublicURL(base string) Option {
	return func(c *config) {
		if base != "" {
			c.publicURL = base
		}
	}
}

// WithClock sets the CreatedAt source.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}
