package pitch

import (
	"sync"
	"time"

	"github.com/okian/chorus/internal/domain/model"
)

// Smoother defaults.
const (
	DefaultWindow       = 25
	DefaultJumpRatio    = 0.09
	DefaultEmitInterval = 100 * time.Millisecond
)

// Sink receives smoothed readings. A nil reading means "no current pitch".
type Sink func(*model.PitchReading)

// Smoother averages recent estimates, resets on note changes and throttles
// emissions. It is driven by sample timestamps, not the wall clock.
type Smoother struct {
	mu           sync.Mutex
	sink         Sink
	a4           float64
	window       int
	jumpRatio    float64
	emitInterval int64

	buf        []float64
	lastEmitMs int64
	emitted    bool
	stopped    bool
}

// SmootherOption configures a Smoother.
type SmootherOption func(*Smoother)

// WithReference sets A4 in Hz. Values outside 430..450 are ignored.
func WithReference(a4 float64) SmootherOption {
	return func(s *Smoother) {
		if ValidateA4(a4) == nil {
			s.a4 = a4
		}
	}
}

// WithWindow sets the number of recent frequencies averaged.
func WithWindow(n int) SmootherOption {
	return func(s *Smoother) {
		if n > 0 {
			s.window = n
		}
	}
}

// WithJumpRatio sets the relative change that counts as a new note.
func WithJumpRatio(r float64) SmootherOption {
	return func(s *Smoother) {
		if r > 0 && r < 1 {
			s.jumpRatio = r
		}
	}
}

// WithEmitInterval sets the minimum spacing between emissions.
func WithEmitInterval(d time.Duration) SmootherOption {
	return func(s *Smoother) {
		if d > 0 {
			s.emitInterval = d.Milliseconds()
		}
	}
}

// NewSmoother returns a Smoother emitting into sink.
func NewSmoother(sink Sink, opts ...SmootherOption) *Smoother {
	s := &Smoother{
		sink:         sink,
		a4:           DefaultA4,
		window:       DefaultWindow,
		jumpRatio:    DefaultJumpRatio,
		emitInterval: DefaultEmitInterval.Milliseconds(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.buf = make([]float64, 0, s.window)
	return s
}

// SetReference changes A4 for subsequent emissions.
func (s *Smoother) SetReference(a4 float64) error {
	if err := ValidateA4(a4); err != nil {
		return err
	}
	s.mu.Lock()
	s.a4 = a4
	s.mu.Unlock()
	return nil
}

// Push feeds one estimate. A nil sample clears the window without emitting.
func (s *Smoother) Push(sample *model.PitchSample) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if sample == nil {
		s.buf = s.buf[:0]
		s.mu.Unlock()
		return
	}

	f := sample.FrequencyHz
	if n := len(s.buf); n > 0 {
		ratio := f / s.buf[n-1]
		if ratio > 1+s.jumpRatio || ratio < 1-s.jumpRatio {
			s.buf = s.buf[:0]
		}
	}
	if len(s.buf) == s.window {
		copy(s.buf, s.buf[1:])
		s.buf = s.buf[:s.window-1]
	}
	s.buf = append(s.buf, f)

	now := sample.CapturedAtLocalMs
	if s.emitted && now-s.lastEmitMs <= s.emitInterval {
		s.mu.Unlock()
		return
	}
	var sum float64
	for _, v := range s.buf {
		sum += v
	}
	reading := ReadingFor(sum/float64(len(s.buf)), s.a4)
	s.lastEmitMs = now
	s.emitted = true
	s.mu.Unlock()

	s.sink(reading)
}

// Stop emits a single terminal nil reading. Later calls and pushes are no-ops.
func (s *Smoother) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.buf = s.buf[:0]
	s.mu.Unlock()

	s.sink(nil)
}
