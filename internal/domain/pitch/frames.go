package pitch

import (
	"context"
	"io"
	"sync"

	"github.com/okian/chorus/internal/audio"
)

// Frame is one analysis window.
type Frame struct {
	Samples           []float64
	SampleRate        int
	CapturedAtLocalMs int64
}

// FrameSource is a pull-based capture stream. NextFrame blocks until a frame
// is ready or ctx is done, and returns io.EOF when the stream has ended.
type FrameSource interface {
	NextFrame(ctx context.Context) (Frame, error)
}

// SliceSource replays a fixed list of frames.
type SliceSource struct {
	mu     sync.Mutex
	frames []Frame
}

// NewSliceSource returns a source over frames.
func NewSliceSource(frames ...Frame) *SliceSource {
	return &SliceSource{frames: frames}
}

// NextFrame implements FrameSource.
func (s *SliceSource) NextFrame(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return Frame{}, io.EOF
	}
	f := s.frames[0]
	s.frames = s.frames[1:]
	return f, nil
}

// ClipSource slides a fixed-size window over a clip with a fixed hop.
// Frame timestamps advance with the hop from startMs.
type ClipSource struct {
	mu      sync.Mutex
	clip    *audio.Clip
	size    int
	hop     int
	pos     int
	startMs int64
	loop    bool
}

// ClipSourceOption configures a ClipSource.
type ClipSourceOption func(*ClipSource)

// WithHop sets the hop between consecutive windows in samples.
func WithHop(n int) ClipSourceOption {
	return func(c *ClipSource) {
		if n > 0 {
			c.hop = n
		}
	}
}

// WithStart sets the local timestamp of the first frame.
func WithStart(ms int64) ClipSourceOption {
	return func(c *ClipSource) { c.startMs = ms }
}

// WithLoop restarts from the top of the clip instead of returning io.EOF.
func WithLoop(loop bool) ClipSourceOption {
	return func(c *ClipSource) { c.loop = loop }
}

// NewClipSource windows clip into frames of size samples.
func NewClipSource(clip *audio.Clip, size int, opts ...ClipSourceOption) *ClipSource {
	c := &ClipSource{clip: clip, size: size, hop: size / 4}
	for _, opt := range opts {
		opt(c)
	}
	if c.hop <= 0 {
		c.hop = 1
	}
	return c
}

// HopDuration is the time between frames in milliseconds.
func (c *ClipSource) HopDuration() float64 {
	return float64(c.hop) * 1000 / float64(c.clip.SampleRate)
}

// NextFrame implements FrameSource.
func (c *ClipSource) NextFrame(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.clip == nil || c.clip.SampleRate <= 0 || len(c.clip.Samples) < c.size {
		return Frame{}, io.EOF
	}
	step := c.pos
	offset := (step * c.hop) % (len(c.clip.Samples) - c.size + 1)
	if !c.loop && step*c.hop+c.size > len(c.clip.Samples) {
		return Frame{}, io.EOF
	}
	c.pos++
	window := make([]float64, c.size)
	copy(window, c.clip.Samples[offset:offset+c.size])
	return Frame{
		Samples:           window,
		SampleRate:        c.clip.SampleRate,
		CapturedAtLocalMs: c.startMs + int64(float64(step*c.hop)*1000/float64(c.clip.SampleRate)),
	}, nil
}
