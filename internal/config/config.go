// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - Durations are carried as integer milliseconds so the same keys work in
//     YAML files and CHORUS_* environment variables; accessors convert them.
//   - New() supplies defaults; Load(ctx) layers file and env on top.
package config

import (
	"fmt"
	"runtime"
	"time"
)

// Bus backends.
const (
	BusMemory = "memory"
	BusValkey = "valkey"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// PublicURL prefixes object URLs handed to satellites.
	PublicURL string `koanf:"public_url"`

	// DBPath is the SQLite object store file.
	DBPath string `koanf:"db_path"`

	// BusBackend selects how rooms fan out between masters: memory or valkey.
	BusBackend string `koanf:"bus_backend"`
	ValkeyAddr string `koanf:"valkey_addr"`

	// Pitch pipeline.
	A4Hz             float64 `koanf:"a4_hz"`
	FrameSize        int     `koanf:"frame_size"`
	NoiseGateVocal   float64 `koanf:"noise_gate_vocal"`
	NoiseGatePiano   float64 `koanf:"noise_gate_piano"`
	ClarityThreshold float64 `koanf:"clarity_threshold"`
	SmoothingWindow  int     `koanf:"smoothing_window"`
	EmitIntervalMS   int     `koanf:"emit_interval_ms"`
	JumpRatio        float64 `koanf:"jump_ratio"`

	// Satellite registry.
	StaleAfterMS    int `koanf:"stale_after_ms"`
	SweepIntervalMS int `koanf:"sweep_interval_ms"`
	ReplaySettleMS  int `koanf:"replay_settle_ms"`

	// Scheduling and alignment.
	ScheduleLookaheadMS  int `koanf:"schedule_lookahead_ms"`
	PollIntervalMS       int `koanf:"poll_interval_ms"`
	MasterCompensationMS int `koanf:"master_compensation_ms"`
	LegacyOffsetMS       int `koanf:"legacy_offset_ms"`
	RecordStartDelayMS   int `koanf:"record_start_delay_ms"`
	TakeWindowMS         int `koanf:"take_window_ms"`

	// Mixdown.
	MixSampleRate    int     `koanf:"mix_sample_rate"`
	ReverbTailMS     int     `koanf:"reverb_tail_ms"`
	ReverbDurationMS int     `koanf:"reverb_duration_ms"`
	ReverbDecay      float64 `koanf:"reverb_decay"`

	// JobQueueSize bounds the mixdown job queue.
	JobQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of mixdown workers.
	WorkerCount int `koanf:"worker_count"`

	// Metrics naming. Namespace and subsystem prefix every series; labels are
	// attached to all of them, e.g. {"site": "hall-a"}.
	MetricsNamespace string            `koanf:"metrics_namespace"`
	MetricsSubsystem string            `koanf:"metrics_subsystem"`
	MetricsPrefix    string            `koanf:"metrics_prefix"`
	MetricsLabels    map[string]string `koanf:"metrics_labels"`
	MetricsBuckets   []float64         `koanf:"metrics_buckets"`
	MetricsRefreshMS int               `koanf:"metrics_refresh_ms"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:   "info",
		Addr:       ":9080",
		PublicURL:  "http://localhost:9080",
		DBPath:     "chorus.sqlite3",
		BusBackend: BusMemory,
		ValkeyAddr: "127.0.0.1:6379",

		A4Hz:             440,
		FrameSize:        4096,
		NoiseGateVocal:   0.015,
		NoiseGatePiano:   0.005,
		ClarityThreshold: 0.6,
		SmoothingWindow:  25,
		EmitIntervalMS:   100,
		JumpRatio:        0.09,

		StaleAfterMS:    3000,
		SweepIntervalMS: 1000,
		ReplaySettleMS:  500,

		ScheduleLookaheadMS:  4000,
		PollIntervalMS:       20,
		MasterCompensationMS: 130,
		LegacyOffsetMS:       1500,
		RecordStartDelayMS:   1500,
		TakeWindowMS:         3000,

		MixSampleRate:    44100,
		ReverbTailMS:     3000,
		ReverbDurationMS: 2500,
		ReverbDecay:      4.0,

		JobQueueSize: 64,
		WorkerCount:  max(1, runtime.NumCPU()/2),

		MetricsNamespace: "chorus",
		MetricsSubsystem: "rehearsal",
		MetricsRefreshMS: 10_000,
	}
}

// Validate checks ranges that would otherwise surface as odd runtime behavior.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.A4Hz < 430 || c.A4Hz > 450:
		return fmt.Errorf("%w: a4_hz %.1f outside 430..450", ErrInvalidConfig, c.A4Hz)
	case c.FrameSize < 256:
		return fmt.Errorf("%w: frame_size %d too small", ErrInvalidConfig, c.FrameSize)
	case c.SmoothingWindow < 1:
		return fmt.Errorf("%w: smoothing_window must be positive", ErrInvalidConfig)
	case c.StaleAfterMS <= 0 || c.SweepIntervalMS <= 0 || c.PollIntervalMS <= 0:
		return fmt.Errorf("%w: intervals must be positive", ErrInvalidConfig)
	case c.MixSampleRate < 8000:
		return fmt.Errorf("%w: mix_sample_rate %d too low", ErrInvalidConfig, c.MixSampleRate)
	case c.JobQueueSize < 1 || c.WorkerCount < 1:
		return fmt.Errorf("%w: queue_size and worker_count must be positive", ErrInvalidConfig)
	case c.BusBackend != BusMemory && c.BusBackend != BusValkey:
		return fmt.Errorf("%w: unknown bus_backend %q", ErrInvalidConfig, c.BusBackend)
	}
	return nil
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// EmitInterval is the smoother's minimum spacing between readings.
func (c *Config) EmitInterval() time.Duration { return ms(c.EmitIntervalMS) }

// StaleAfter is how long a satellite may stay silent and still be connected.
func (c *Config) StaleAfter() time.Duration { return ms(c.StaleAfterMS) }

// SweepInterval is how often the registry checks for stale satellites.
func (c *Config) SweepInterval() time.Duration { return ms(c.SweepIntervalMS) }

// ReplaySettle is the delay before a late joiner receives the state replay.
func (c *Config) ReplaySettle() time.Duration { return ms(c.ReplaySettleMS) }

// ScheduleLookahead is how far ahead scheduled starts are placed.
func (c *Config) ScheduleLookahead() time.Duration { return ms(c.ScheduleLookaheadMS) }

// PollInterval is the scheduled-action polling cadence.
func (c *Config) PollInterval() time.Duration { return ms(c.PollIntervalMS) }

// MasterCompensation is added on the master's side of a scheduled start.
func (c *Config) MasterCompensation() time.Duration { return ms(c.MasterCompensationMS) }

// RecordStartDelay is where the backing track sits on the mix timeline.
func (c *Config) RecordStartDelay() time.Duration { return ms(c.RecordStartDelayMS) }

// TakeWindow is the capture-time clustering window for takes.
func (c *Config) TakeWindow() time.Duration { return ms(c.TakeWindowMS) }

// ReverbTail is appended to a render when reverb is enabled.
func (c *Config) ReverbTail() time.Duration { return ms(c.ReverbTailMS) }

// MetricsRefresh is how often process gauges are sampled.
func (c *Config) MetricsRefresh() time.Duration { return ms(c.MetricsRefreshMS) }

// ReverbDuration is the synthetic impulse response length.
func (c *Config) ReverbDuration() time.Duration { return ms(c.ReverbDurationMS) }
