package clock

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/okian/chorus/internal/domain/model"
	"github.com/okian/chorus/pkg/logger"
	"github.com/okian/chorus/pkg/metrics"
)

// Coordinator defaults.
const (
	DefaultPollInterval = 20 * time.Millisecond
	DefaultLookahead    = 4 * time.Second
)

// OffsetSource supplies the current clock offset.
type OffsetSource interface {
	Offset() model.ClockOffset
}

// FixedOffset is an OffsetSource that never changes.
type FixedOffset model.ClockOffset

// Offset implements OffsetSource.
func (f FixedOffset) Offset() model.ClockOffset { return model.ClockOffset(f) }

// Coordinator fires actions when authority time reaches a target.
type Coordinator struct {
	clock        Clock
	offsets      OffsetSource
	interval     time.Duration
	compensation int64
	logger       logger.Logger
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithPollInterval sets how often armed actions check the clock.
func WithPollInterval(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithCompensation delays firing by d, for the role whose output has no
// hardware latency to absorb.
func WithCompensation(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d >= 0 {
			c.compensation = d.Milliseconds()
		}
	}
}

// WithCoordinatorLogger sets the logger.
func WithCoordinatorLogger(l logger.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCoordinator returns a Coordinator reading clk corrected by offsets.
func NewCoordinator(clk Clock, offsets OffsetSource, opts ...CoordinatorOption) *Coordinator {
	if clk == nil {
		clk = System{}
	}
	if offsets == nil {
		offsets = FixedOffset{IsValid: true}
	}
	c := &Coordinator{
		clock:    clk,
		offsets:  offsets,
		interval: DefaultPollInterval,
		logger:   logger.Get().Named("scheduler"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AuthorityNow is the local clock corrected by the current offset.
func (c *Coordinator) AuthorityNow() int64 {
	return c.offsets.Offset().Apply(c.clock.NowMs())
}

// TargetIn returns the authority timestamp lookahead from now.
func (c *Coordinator) TargetIn(lookahead time.Duration) int64 {
	return c.AuthorityNow() + lookahead.Milliseconds()
}

// Action states.
const (
	statePending int32 = iota
	stateFired
	stateCanceled
)

// Action is one armed schedule. It fires at most once and never after Cancel.
type Action struct {
	coord  *Coordinator
	target int64
	fn     func()
	state  atomic.Int32
	stop   chan struct{}
	done   chan struct{}
}

// ScheduleAt arms fn to run once authority time reaches targetMs plus the
// coordinator's compensation. fn runs on the coordinator goroutine.
// Canceling ctx cancels the action.
func (c *Coordinator) ScheduleAt(ctx context.Context, targetMs int64, fn func()) *Action {
	a := &Action{
		coord:  c,
		target: targetMs,
		fn:     fn,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go a.run(ctx)
	return a
}

func (a *Action) due() bool {
	return a.coord.AuthorityNow() >= a.target+a.coord.compensation
}

func (a *Action) run(ctx context.Context) {
	defer close(a.done)

	ticker := time.NewTicker(a.coord.interval)
	defer ticker.Stop()
	for {
		if a.state.Load() != statePending {
			return
		}
		if a.due() {
			if a.state.CompareAndSwap(statePending, stateFired) {
				late := a.coord.AuthorityNow() - a.target - a.coord.compensation
				metrics.RecordScheduledFired(float64(late))
				a.coord.logger.Debug(ctx, "scheduled action fired",
					logger.Int64("target_ms", a.target), logger.Int64("late_ms", late))
				a.fn()
			}
			return
		}
		select {
		case <-ctx.Done():
			a.Cancel()
			return
		case <-a.stop:
			return
		case <-ticker.C:
		}
	}
}

// Cancel disarms the action. It reports whether this call prevented the
// action from firing.
func (a *Action) Cancel() bool {
	if !a.state.CompareAndSwap(statePending, stateCanceled) {
		return false
	}
	metrics.RecordScheduledCanceled()
	close(a.stop)
	return true
}

// Fired reports whether the action has run.
func (a *Action) Fired() bool { return a.state.Load() == stateFired }

// Canceled reports whether the action was disarmed before firing.
func (a *Action) Canceled() bool { return a.state.Load() == stateCanceled }

// Done is closed once the action has fired or been canceled.
func (a *Action) Done() <-chan struct{} { return a.done }

// Target is the authority timestamp the action was armed for.
func (a *Action) Target() int64 { return a.target }

// Remaining is the countdown to the firing instant, floored at zero.
func (a *Action) Remaining() time.Duration {
	left := a.target + a.coord.compensation - a.coord.AuthorityNow()
	if left < 0 {
		return 0
	}
	return time.Duration(left) * time.Millisecond
}

// Wait blocks until the action resolves. It returns ErrCanceled when the
// action was disarmed and ctx.Err() when ctx ends first.
func (a *Action) Wait(ctx context.Context) error {
	select {
	case <-a.done:
		if a.Canceled() {
			return ErrCanceled
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
