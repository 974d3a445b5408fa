// Package clock estimates the offset between a device clock and the shared
// time authority and fires scheduled actions against authority time.
package clock

import (
	"context"
	"sync"
	"time"
)

// Clock reads local time in Unix milliseconds.
type Clock interface {
	NowMs() int64
}

// System is the process wall clock.
type System struct{}

// NowMs implements Clock.
func (System) NowMs() int64 { return time.Now().UnixMilli() }

// Manual is a settable clock for simulations and tests.
type Manual struct {
	mu sync.Mutex
	ms int64
}

// NewManual returns a Manual clock at ms.
func NewManual(ms int64) *Manual { return &Manual{ms: ms} }

// NowMs implements Clock.
func (m *Manual) NowMs() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ms
}

// Set moves the clock to ms.
func (m *Manual) Set(ms int64) {
	m.mu.Lock()
	m.ms = ms
	m.mu.Unlock()
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.ms += d.Milliseconds()
	m.mu.Unlock()
}

// TimeSource returns the authority's current time in Unix milliseconds.
type TimeSource interface {
	ServerTime(ctx context.Context) (int64, error)
}

// LocalSource serves a local clock as the authority. The process hosting
// the authority endpoint uses it for its own sessions.
type LocalSource struct {
	Clock Clock
}

// ServerTime implements TimeSource.
func (l LocalSource) ServerTime(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if l.Clock == nil {
		return System{}.NowMs(), nil
	}
	return l.Clock.NowMs(), nil
}
