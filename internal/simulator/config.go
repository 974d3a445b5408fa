// Package simulator drives a rehearsal room with synthetic satellites: each
// part streams pitch telemetry from a clip over the room bus, follows room
// commands and uploads a recording when a take ends.
package simulator

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/okian/chorus/internal/domain/dedupe"
)

// Errors.
var (
	ErrUnreachable   = errors.New("server unreachable")
	ErrNoParts       = errors.New("no parts configured")
	ErrNotRecording  = errors.New("recorder is not recording")
	ErrAlreadyActive = errors.New("recorder is already recording")
	ErrUploadTimeout = errors.New("timed out waiting for uploads")
)

// Config holds the simulator settings.
type Config struct {
	BaseURL   string        // server base URL
	Room      string        // room to join
	Parts     []string      // one satellite per part
	ClipPath  string        // optional WAV replayed by every part; tones are synthesized when empty
	FrameSize int           // pitch analysis window in samples
	A4        float64       // tuning reference
	Duration  time.Duration // how long to stream when no take is requested
	Take      time.Duration // when positive, schedule a take of this length
	Timeout   time.Duration // HTTP and upload wait timeout
	Dedupe    int           // command ids each satellite remembers
	Verbose   bool
}

// Defaults fills zero fields.
func (c *Config) Defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:9080"
	}
	if c.Room == "" {
		c.Room = "rehearsal"
	}
	if len(c.Parts) == 0 {
		c.Parts = []string{"Soprano", "Alto", "Tenor", "Bass"}
	}
	if c.FrameSize <= 0 {
		c.FrameSize = 4096
	}
	if c.A4 <= 0 {
		c.A4 = 440
	}
	if c.Duration <= 0 {
		c.Duration = 10 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Dedupe <= 0 {
		c.Dedupe = dedupe.DefaultMaxSize
	}
}

// Stats counts what happened during a run.
type Stats struct {
	Satellites     atomic.Int64
	Commands       atomic.Int64
	Uploads        atomic.Int64
	UploadFailures atomic.Int64
	Takes          int
	StartTime      time.Time
	Duration       time.Duration
}
