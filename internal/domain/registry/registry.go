// Package registry tracks which satellites a master has heard from and
// flags the ones that have gone quiet.
package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okian/chorus/internal/domain/clock"
	"github.com/okian/chorus/internal/domain/model"
	"github.com/okian/chorus/pkg/logger"
	"github.com/okian/chorus/pkg/metrics"
)

// Registry defaults.
const (
	DefaultStaleAfter    = 3 * time.Second
	DefaultSweepInterval = time.Second
)

// Registry is the master's satellite table. Entries are never removed; a
// silent satellite is kept as disconnected so layouts stay stable.
type Registry struct {
	mu         sync.RWMutex
	entries    map[string]*model.SatelliteState
	staleAfter int64
	logger     logger.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithStaleAfter sets how long a satellite may be silent and stay connected.
func WithStaleAfter(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.staleAfter = d.Milliseconds()
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// New returns an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		entries:    make(map[string]*model.SatelliteState),
		staleAfter: DefaultStaleAfter.Milliseconds(),
		logger:     logger.Get().Named("registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Observe records telemetry received at nowMs (local clock). It reports
// whether the part had never been seen before.
func (r *Registry) Observe(t model.Telemetry, nowMs int64) bool {
	if t.PartID == "" {
		return false
	}
	r.mu.Lock()
	e, ok := r.entries[t.PartID]
	if !ok {
		e = &model.SatelliteState{PartID: t.PartID}
		r.entries[t.PartID] = e
	}
	e.LastReading = t.Pitch
	e.LastUpdatedAtMs = nowMs
	e.Connected = true
	connected, known := r.countsLocked()
	r.mu.Unlock()

	metrics.RecordTelemetryReceived()
	metrics.UpdateSatellites(connected, known)
	return !ok
}

// Sweep marks satellites silent for longer than the stale window as
// disconnected and clears their reading. It returns the flipped parts.
func (r *Registry) Sweep(nowMs int64) []string {
	r.mu.Lock()
	var flipped []string
	for part, e := range r.entries {
		if e.Connected && nowMs-e.LastUpdatedAtMs > r.staleAfter {
			e.Connected = false
			e.LastReading = nil
			flipped = append(flipped, part)
		}
	}
	connected, known := r.countsLocked()
	r.mu.Unlock()

	for range flipped {
		metrics.RecordSatelliteStaled()
	}
	metrics.UpdateSatellites(connected, known)
	sort.Strings(flipped)
	return flipped
}

// Run sweeps on every interval tick until ctx is done.
func (r *Registry) Run(ctx context.Context, clk clock.Clock, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, part := range r.Sweep(clk.NowMs()) {
				r.logger.Info(ctx, "satellite went quiet", logger.String("part", part))
			}
		}
	}
}

// Get returns a copy of one entry.
func (r *Registry) Get(part string) (model.SatelliteState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[part]
	if !ok {
		return model.SatelliteState{}, false
	}
	return *e, true
}

// Snapshot returns copies of all entries ordered by part.
func (r *Registry) Snapshot() []model.SatelliteState {
	r.mu.RLock()
	out := make([]model.SatelliteState, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].PartID < out[j].PartID })
	return out
}

// Readings returns the current readings of connected satellites.
func (r *Registry) Readings() []*model.PitchReading {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.PitchReading
	for _, e := range r.entries {
		if e.Connected && e.LastReading != nil {
			reading := *e.LastReading
			out = append(out, &reading)
		}
	}
	return out
}

// Counts returns connected and known satellite totals.
func (r *Registry) Counts() (connected, known int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.countsLocked()
}

func (r *Registry) countsLocked() (connected, known int) {
	for _, e := range r.entries {
		if e.Connected {
			connected++
		}
	}
	return connected, len(r.entries)
}
