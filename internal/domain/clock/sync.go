package clock

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/okian/chorus/internal/domain/model"
	"github.com/okian/chorus/pkg/logger"
	"github.com/okian/chorus/pkg/metrics"
)

// Sync estimates the local-to-authority offset with a single round trip.
// A failed probe falls back to a zero offset that is still marked valid, so
// scheduling always proceeds.
type Sync struct {
	source   TimeSource
	clock    Clock
	logger   logger.Logger
	inFlight atomic.Bool

	mu     sync.RWMutex
	offset model.ClockOffset
}

// SyncOption configures a Sync.
type SyncOption func(*Sync)

// WithClock overrides the local clock.
func WithClock(c Clock) SyncOption {
	return func(s *Sync) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithSyncLogger sets the logger.
func WithSyncLogger(l logger.Logger) SyncOption {
	return func(s *Sync) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSync returns a Sync probing source.
func NewSync(source TimeSource, opts ...SyncOption) *Sync {
	s := &Sync{source: source, clock: System{}, logger: logger.Get().Named("clock")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SyncOnce probes the authority and stores the resulting offset. Only one
// probe may be outstanding; a concurrent call gets ErrSyncInFlight.
func (s *Sync) SyncOnce(ctx context.Context) (model.ClockOffset, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return s.Offset(), ErrSyncInFlight
	}
	defer s.inFlight.Store(false)

	t0 := s.clock.NowMs()
	serverMs, err := s.source.ServerTime(ctx)
	t1 := s.clock.NowMs()

	var off model.ClockOffset
	if err != nil {
		s.logger.Warn(ctx, "time authority unreachable, assuming zero offset", logger.Error(err))
		metrics.RecordClockSyncFailure()
		off = model.ClockOffset{OffsetMs: 0, IsValid: true}
	} else {
		rtt := float64(t1 - t0)
		off = model.ClockOffset{
			OffsetMs: float64(serverMs) + rtt/2 - float64(t1),
			IsValid:  true,
		}
		s.logger.Info(ctx, "clock synced", logger.Float64("offset_ms", off.OffsetMs), logger.Float64("rtt_ms", rtt))
	}
	metrics.UpdateClockOffset(off.OffsetMs)

	s.mu.Lock()
	s.offset = off
	s.mu.Unlock()
	return off, nil
}

// Offset returns the last estimate. Before the first sync it is invalid.
func (s *Sync) Offset() model.ClockOffset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.offset
}

// Now returns the current authority time estimate.
func (s *Sync) Now() int64 {
	return s.Offset().Apply(s.clock.NowMs())
}
