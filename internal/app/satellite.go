package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/okian/chorus/internal/adapters/bus"
	"github.com/okian/chorus/internal/domain/clock"
	"github.com/okian/chorus/internal/domain/command"
	"github.com/okian/chorus/internal/domain/dedupe"
	"github.com/okian/chorus/internal/domain/mixdown"
	"github.com/okian/chorus/internal/domain/model"
	"github.com/okian/chorus/internal/domain/pitch"
	"github.com/okian/chorus/internal/domain/room"
	"github.com/okian/chorus/pkg/logger"
	"github.com/okian/chorus/pkg/metrics"
)

// Recorder captures one take on a satellite device.
type Recorder interface {
	// Start begins capturing. An error leaves the satellite idle.
	Start(ctx context.Context) error
	// Stop ends the capture and returns the encoded recording.
	Stop(ctx context.Context) (data []byte, ext string, err error)
}

// ArtifactSink receives finished recordings.
type ArtifactSink interface {
	UploadArtifact(ctx context.Context, part string, capturedAtMs, offsetMs int64, ext string, data []byte) (string, error)
}

// RoomArtifacts is an ArtifactSink writing straight into a Library.
type RoomArtifacts struct {
	Library *Library
	Room    string
}

// UploadArtifact implements ArtifactSink.
func (r RoomArtifacts) UploadArtifact(ctx context.Context, part string, capturedAtMs, offsetMs int64, ext string, data []byte) (string, error) {
	_, url, err := r.Library.UploadArtifact(ctx, r.Room, part, capturedAtMs, offsetMs, ext, data)
	return url, err
}

// Upload reports the outcome of one finished recording.
type Upload struct {
	Part         string
	CapturedAtMs int64
	OffsetMs     int64
	URL          string
	Err          error
}

// Satellite is one singer's session: it keeps its clock aligned with the
// authority, follows room commands, records scheduled takes and streams
// pitch telemetry.
type Satellite struct {
	part     string
	bus      bus.Bus
	clock    clock.Clock
	sync     *clock.Sync
	coord    *clock.Coordinator
	dedupe   dedupe.Deduper
	state    *room.State
	recorder Recorder
	sink     ArtifactSink

	recordStartDelay time.Duration
	pollInterval     time.Duration
	onUpload         func(Upload)
	onCommand        func(command.Command)
	logger           logger.Logger

	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	subs      []bus.Subscription
	pending   *clock.Action
	recording bool
	takeAtMs  int64
	offsetMs  int64
	wg        sync.WaitGroup
}

// SatelliteOption configures a Satellite.
type SatelliteOption func(*Satellite)

// WithSatelliteClock sets the local device clock.
func WithSatelliteClock(c clock.Clock) SatelliteOption {
	return func(s *Satellite) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithRecorder sets the capture device.
func WithRecorder(r Recorder) SatelliteOption {
	return func(s *Satellite) { s.recorder = r }
}

// WithArtifactSink sets where finished recordings go.
func WithArtifactSink(sink ArtifactSink) SatelliteOption {
	return func(s *Satellite) { s.sink = sink }
}

// WithDeduper replaces the duplicate command window.
func WithDeduper(d dedupe.Deduper) SatelliteOption {
	return func(s *Satellite) {
		if d != nil {
			s.dedupe = d
		}
	}
}

// WithRecordStartDelay sets the backing track position recorded into the
// artifact offset.
func WithRecordStartDelay(d time.Duration) SatelliteOption {
	return func(s *Satellite) {
		if d >= 0 {
			s.recordStartDelay = d
		}
	}
}

// WithSatellitePoll sets the scheduled-start polling cadence.
func WithSatellitePoll(d time.Duration) SatelliteOption {
	return func(s *Satellite) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithUploadHook is called after each recording is stored or fails.
func WithUploadHook(fn func(Upload)) SatelliteOption {
	return func(s *Satellite) { s.onUpload = fn }
}

// WithCommandHook is called for every applied command.
func WithCommandHook(fn func(command.Command)) SatelliteOption {
	return func(s *Satellite) { s.onCommand = fn }
}

// WithSatelliteLogger sets the logger.
func WithSatelliteLogger(l logger.Logger) SatelliteOption {
	return func(s *Satellite) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSatellite returns a Satellite for part talking over b and syncing
// against src.
func NewSatellite(part string, b bus.Bus, src clock.TimeSource, opts ...SatelliteOption) *Satellite {
	s := &Satellite{
		part:             part,
		bus:              b,
		clock:            clock.System{},
		state:            room.NewState(),
		recordStartDelay: mixdown.DefaultRecordStartDelay,
		pollInterval:     clock.DefaultPollInterval,
		logger:           logger.Get().Named("satellite"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dedupe == nil {
		s.dedupe = dedupe.NewInMemoryDeduper()
	}
	s.logger = s.logger.Named(part)
	s.sync = clock.NewSync(src, clock.WithClock(s.clock), clock.WithSyncLogger(s.logger))
	s.coord = clock.NewCoordinator(s.clock, s.sync,
		clock.WithPollInterval(s.pollInterval),
		clock.WithCoordinatorLogger(s.logger),
	)
	return s
}

// Part is the satellite's part id.
func (s *Satellite) Part() string { return s.part }

// Start syncs the clock once and subscribes to room commands. A failed
// sync still leaves a usable zero offset.
func (s *Satellite) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}
	if _, err := s.sync.SyncOnce(ctx); err != nil {
		s.logger.Warn(ctx, "clock sync skipped", logger.Error(err))
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub, err := s.bus.Subscribe(runCtx, bus.TopicCommand, s.handleCommand)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe command: %w", err)
	}
	s.ctx, s.cancel = runCtx, cancel
	s.subs = []bus.Subscription{sub}
	s.logger.Info(ctx, "satellite session started", logger.Float64("offset_ms", s.sync.Offset().OffsetMs))
	return nil
}

// Resync probes the authority again.
func (s *Satellite) Resync(ctx context.Context) (model.ClockOffset, error) {
	return s.sync.SyncOnce(ctx)
}

// Offset is the current clock offset estimate.
func (s *Satellite) Offset() model.ClockOffset { return s.sync.Offset() }

// Now is the satellite's estimate of authority time.
func (s *Satellite) Now() int64 { return s.sync.Now() }

// View is the room state as this satellite knows it.
func (s *Satellite) View() room.View { return s.state.View() }

// Recording reports whether a capture is running.
func (s *Satellite) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

// Pending returns the armed scheduled start, if any.
func (s *Satellite) Pending() *clock.Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Close cancels any pending start, stops a running capture and waits for
// its upload.
func (s *Satellite) Close() error {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return nil
	}
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	s.subs = nil
	if s.pending != nil {
		s.pending.Cancel()
		s.pending = nil
	}
	ctx := s.ctx
	s.mu.Unlock()

	s.stopRecording(ctx)
	s.wg.Wait()

	s.mu.Lock()
	s.cancel()
	s.cancel = nil
	s.mu.Unlock()
	return nil
}

// Stream runs the pitch pipeline over src and publishes every smoothed
// reading as telemetry until src ends or ctx is done.
func (s *Satellite) Stream(ctx context.Context, src pitch.FrameSource, est *pitch.Estimator, opts ...pitch.SmootherOption) error {
	sink := func(r *model.PitchReading) {
		t := model.Telemetry{PartID: s.part, Pitch: r, TimestampMs: s.sync.Now()}
		payload, err := json.Marshal(t)
		if err != nil {
			return
		}
		if err := s.bus.Publish(ctx, bus.TopicTelemetry, payload); err != nil {
			s.logger.Debug(ctx, "telemetry dropped", logger.Error(err))
			return
		}
		metrics.RecordReadingEmitted()
	}
	tracker := pitch.NewTracker(est, pitch.NewSmoother(sink, opts...), pitch.WithTrackerLogger(s.logger))
	return tracker.Run(ctx, src)
}

// handleCommand applies one room command. A publish id seen inside the
// dedupe window is dropped; unknown actions are counted and ignored.
// Identical commands with distinct ids are separate publishes and all apply.
func (s *Satellite) handleCommand(ctx context.Context, payload []byte) {
	env, err := command.Decode(payload)
	if err != nil {
		ignore(ctx, s.logger, err)
		return
	}
	if env.ID != "" && s.dedupe.SeenAndRecord(ctx, env.ID) {
		metrics.RecordCommandIgnored("duplicate")
		return
	}
	s.Apply(ctx, env.Command)
}

// Apply acts on cmd as if it had arrived from the room.
func (s *Satellite) Apply(ctx context.Context, cmd command.Command) {
	s.state.Apply(cmd)
	metrics.RecordCommandApplied(string(cmd.Action()))

	switch c := cmd.(type) {
	case command.StartRecord:
		s.cancelPending()
		now := s.sync.Now()
		s.startRecording(ctx, now, now)
	case command.StartRecordScheduled:
		s.arm(c.TargetTimeMs)
	case command.StopRecord:
		s.cancelPending()
		s.stopRecording(ctx)
	case command.ClearRoom:
		s.cancelPending()
	}
	if s.onCommand != nil {
		s.onCommand(cmd)
	}
}

func (s *Satellite) cancelPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		s.pending.Cancel()
		s.pending = nil
	}
}

func (s *Satellite) arm(target int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		if s.pending.Target() == target && !s.pending.Canceled() {
			return
		}
		s.pending.Cancel()
	}
	base := s.ctx
	if base == nil {
		base = context.Background()
	}
	s.pending = s.coord.ScheduleAt(base, target, func() {
		s.startRecording(base, target, s.sync.Now())
	})
	s.logger.Info(base, "recording armed", logger.Int64("target_ms", target))
}

// startRecording begins a capture for the take anchored at takeAtMs. The
// artifact offset is the backing track position plus how late the capture
// actually began.
func (s *Satellite) startRecording(ctx context.Context, takeAtMs, startedAtMs int64) {
	s.mu.Lock()
	if s.recording || s.recorder == nil {
		s.mu.Unlock()
		return
	}
	s.recording = true
	s.takeAtMs = takeAtMs
	offset := s.recordStartDelay.Milliseconds() + (startedAtMs - takeAtMs)
	s.offsetMs = offset
	s.mu.Unlock()

	if err := s.recorder.Start(ctx); err != nil {
		s.mu.Lock()
		s.recording = false
		s.mu.Unlock()
		s.logger.Error(ctx, "capture failed to start", logger.Error(err))
		return
	}
	s.logger.Info(ctx, "recording", logger.Int64("take_ms", takeAtMs), logger.Int64("offset_ms", offset))
}

// stopRecording ends a running capture and uploads it in the background.
func (s *Satellite) stopRecording(ctx context.Context) {
	s.mu.Lock()
	if !s.recording {
		s.mu.Unlock()
		return
	}
	s.recording = false
	up := Upload{Part: s.part, CapturedAtMs: s.takeAtMs, OffsetMs: s.offsetMs}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		data, ext, err := s.recorder.Stop(ctx)
		switch {
		case err != nil:
			up.Err = fmt.Errorf("stop capture: %w", err)
		case s.sink == nil:
			up.Err = fmt.Errorf("%w: no artifact sink", ErrInvalidRequest)
		default:
			up.URL, up.Err = s.sink.UploadArtifact(ctx, s.part, up.CapturedAtMs, up.OffsetMs, ext, data)
		}
		if up.Err != nil {
			s.logger.Error(ctx, "take not saved", logger.Error(up.Err))
		} else {
			s.logger.Info(ctx, "take saved", logger.String("url", up.URL))
		}
		if s.onUpload != nil {
			s.onUpload(up)
		}
	}()
}
