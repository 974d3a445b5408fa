package pitch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/okian/chorus/pkg/logger"
	"github.com/okian/chorus/pkg/metrics"
)

// Tracker pulls frames from a FrameSource, estimates each one and feeds the
// smoother. It owns no goroutines; Run returns when the source ends.
type Tracker struct {
	estimator *Estimator
	smoother  *Smoother
	mode      atomic.Int32
	logger    logger.Logger
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithMode sets the initial listen mode.
func WithMode(m ListenMode) TrackerOption {
	return func(t *Tracker) { t.mode.Store(int32(m)) }
}

// WithTrackerLogger sets the logger.
func WithTrackerLogger(l logger.Logger) TrackerOption {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewTracker wires an estimator to a smoother.
func NewTracker(est *Estimator, sm *Smoother, opts ...TrackerOption) *Tracker {
	t := &Tracker{estimator: est, smoother: sm, logger: logger.Get().Named("pitch")}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetMode switches the noise gate for subsequent frames.
func (t *Tracker) SetMode(m ListenMode) { t.mode.Store(int32(m)) }

// Mode reports the current listen mode.
func (t *Tracker) Mode() ListenMode { return ListenMode(t.mode.Load()) }

// Process runs one frame through estimation and smoothing.
func (t *Tracker) Process(f Frame) error {
	if f.SampleRate <= 0 {
		return ErrFrameRate
	}
	sample, outcome := t.estimator.Analyze(f.Samples, f.SampleRate, t.Mode())
	metrics.RecordPitchFrame(string(outcome))
	if sample != nil {
		sample.CapturedAtLocalMs = f.CapturedAtLocalMs
	}
	t.smoother.Push(sample)
	return nil
}

// Run consumes src until it is exhausted or ctx is done, then stops the
// smoother so downstream sees the terminal nil reading.
func (t *Tracker) Run(ctx context.Context, src FrameSource) error {
	defer t.smoother.Stop()
	for {
		f, err := src.NextFrame(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("next frame: %w", err)
		}
		if err := t.Process(f); err != nil {
			t.logger.Warn(ctx, "dropping frame", logger.Error(err))
		}
	}
}
