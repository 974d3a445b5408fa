package simulator

import (
	"context"
	"time"

	"github.com/okian/chorus/internal/domain/pitch"
)

// PacedSource releases frames from src no faster than one per interval, so
// a clip replays in real time.
type PacedSource struct {
	src      pitch.FrameSource
	interval time.Duration
	next     time.Time
}

// NewPacedSource wraps src.
func NewPacedSource(src pitch.FrameSource, interval time.Duration) *PacedSource {
	return &PacedSource{src: src, interval: interval}
}

// NextFrame implements pitch.FrameSource. It is not safe for concurrent use.
func (p *PacedSource) NextFrame(ctx context.Context) (pitch.Frame, error) {
	if wait := time.Until(p.next); wait > 0 {
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return pitch.Frame{}, ctx.Err()
		case <-t.C:
		}
	}
	f, err := p.src.NextFrame(ctx)
	if err != nil {
		return f, err
	}
	now := time.Now()
	if p.next.IsZero() || now.Sub(p.next) > p.interval {
		p.next = now
	}
	p.next = p.next.Add(p.interval)
	return f, nil
}
