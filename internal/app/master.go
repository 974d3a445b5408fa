package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/chorus/internal/adapters/bus"
	"github.com/okian/chorus/internal/domain/clock"
	"github.com/okian/chorus/internal/domain/command"
	"github.com/okian/chorus/internal/domain/model"
	"github.com/okian/chorus/internal/domain/pitch"
	"github.com/okian/chorus/internal/domain/registry"
	"github.com/okian/chorus/internal/domain/room"
	"github.com/okian/chorus/pkg/logger"
	"github.com/okian/chorus/pkg/metrics"
)

// Master defaults.
const (
	DefaultReplaySettle       = 500 * time.Millisecond
	DefaultMasterCompensation = 130 * time.Millisecond
)

// Master is the conductor's session for one room. It owns the satellite
// registry and the room's command state, issues commands and answers late
// joiners with a replay of that state.
type Master struct {
	room     string
	bus      bus.Bus
	library  *Library
	clock    clock.Clock
	registry *registry.Registry
	state    *room.State
	coord    *clock.Coordinator

	settle        time.Duration
	lookahead     time.Duration
	sweepInterval time.Duration
	compensation  time.Duration
	pollInterval  time.Duration
	staleAfter    time.Duration
	onStart       func(targetMs int64)
	logger        logger.Logger

	// pubMu orders room publishes. An issued command and a replay burst
	// never interleave, so the last command a satellite sees matches state.
	pubMu sync.Mutex

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	subs    []bus.Subscription
	replay  *time.Timer
	pending *clock.Action
	wg      sync.WaitGroup
}

// MasterOption configures a Master.
type MasterOption func(*Master)

// WithMasterClock sets the authority clock.
func WithMasterClock(c clock.Clock) MasterOption {
	return func(m *Master) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithReplaySettle sets how long a new satellite waits for its replay.
// Identities arriving inside the window share one burst.
func WithReplaySettle(d time.Duration) MasterOption {
	return func(m *Master) {
		if d >= 0 {
			m.settle = d
		}
	}
}

// WithLookahead sets how far ahead scheduled starts are placed.
func WithLookahead(d time.Duration) MasterOption {
	return func(m *Master) {
		if d > 0 {
			m.lookahead = d
		}
	}
}

// WithCompensation sets the master's extra firing delay for scheduled starts.
func WithCompensation(d time.Duration) MasterOption {
	return func(m *Master) {
		if d >= 0 {
			m.compensation = d
		}
	}
}

// WithSchedulePoll sets the scheduled-action polling cadence.
func WithSchedulePoll(d time.Duration) MasterOption {
	return func(m *Master) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// WithSweep sets the stale window and how often it is checked.
func WithSweep(staleAfter, interval time.Duration) MasterOption {
	return func(m *Master) {
		if staleAfter > 0 {
			m.staleAfter = staleAfter
		}
		if interval > 0 {
			m.sweepInterval = interval
		}
	}
}

// WithRecordingHook runs fn on the master when a scheduled start fires.
func WithRecordingHook(fn func(targetMs int64)) MasterOption {
	return func(m *Master) { m.onStart = fn }
}

// WithMasterLogger sets the logger.
func WithMasterLogger(l logger.Logger) MasterOption {
	return func(m *Master) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewMaster returns a Master for roomID publishing on b. lib may be nil when
// the room has no object store.
func NewMaster(roomID string, b bus.Bus, lib *Library, opts ...MasterOption) *Master {
	m := &Master{
		room:          roomID,
		bus:           b,
		library:       lib,
		clock:         clock.System{},
		state:         room.NewState(),
		settle:        DefaultReplaySettle,
		lookahead:     clock.DefaultLookahead,
		sweepInterval: registry.DefaultSweepInterval,
		staleAfter:    registry.DefaultStaleAfter,
		compensation:  DefaultMasterCompensation,
		pollInterval:  clock.DefaultPollInterval,
		logger:        logger.Get().Named("master"),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.Named(roomID)
	m.registry = registry.New(registry.WithStaleAfter(m.staleAfter), registry.WithLogger(m.logger))
	m.coord = clock.NewCoordinator(m.clock, clock.FixedOffset{IsValid: true},
		clock.WithPollInterval(m.pollInterval),
		clock.WithCompensation(m.compensation),
		clock.WithCoordinatorLogger(m.logger),
	)
	return m
}

// Room is the room id.
func (m *Master) Room() string { return m.room }

// Start subscribes to the room and starts the stale sweeper.
func (m *Master) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	tel, err := m.bus.Subscribe(runCtx, bus.TopicTelemetry, m.handleTelemetry)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe telemetry: %w", err)
	}
	cmd, err := m.bus.Subscribe(runCtx, bus.TopicCommand, m.handleCommand)
	if err != nil {
		tel.Unsubscribe()
		cancel()
		return fmt.Errorf("subscribe command: %w", err)
	}
	m.ctx, m.cancel = runCtx, cancel
	m.subs = []bus.Subscription{tel, cmd}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.registry.Run(runCtx, m.clock, m.sweepInterval)
	}()

	m.logger.Info(ctx, "master session started", logger.String("room", m.room))
	return nil
}

// Close stops the session. The bus is left open for its owner.
func (m *Master) Close() error {
	m.mu.Lock()
	if m.cancel == nil {
		m.mu.Unlock()
		return nil
	}
	for _, s := range m.subs {
		s.Unsubscribe()
	}
	m.subs = nil
	if m.replay != nil {
		m.replay.Stop()
		m.replay = nil
	}
	if m.pending != nil {
		m.pending.Cancel()
		m.pending = nil
	}
	m.cancel()
	m.mu.Unlock()

	m.wg.Wait()
	m.mu.Lock()
	m.cancel = nil
	m.mu.Unlock()
	return nil
}

// Now is authority time as seen by this master.
func (m *Master) Now() int64 { return m.clock.NowMs() }

// Issue folds cmd into the local state and publishes it to the room. A failed
// publish leaves cmd in the state; the next replay carries it.
func (m *Master) Issue(ctx context.Context, cmd command.Command) error {
	payload, err := command.EncodeID(cmd, m.clock.NowMs(), uuid.NewString())
	if err != nil {
		return err
	}
	m.pubMu.Lock()
	defer m.pubMu.Unlock()
	m.state.Apply(cmd)
	if err := m.bus.Publish(ctx, bus.TopicCommand, payload); err != nil {
		return fmt.Errorf("publish %s: %w", cmd.Action(), err)
	}
	metrics.RecordCommandPublished(string(cmd.Action()))
	m.logger.Debug(ctx, "command issued", logger.String("action", string(cmd.Action())))
	return nil
}

// IssueRaw decodes a wire-shaped command and issues it. The sender's
// timestamp is replaced with the master's.
func (m *Master) IssueRaw(ctx context.Context, payload []byte) (command.Command, error) {
	env, err := command.Decode(payload)
	if err != nil {
		return nil, err
	}
	switch env.Command.(type) {
	case command.StartRecordScheduled:
		return nil, fmt.Errorf("%w: use the schedule endpoint", ErrInvalidRequest)
	case command.StopRecord:
		return env.Command, m.StopRecording(ctx)
	}
	return env.Command, m.Issue(ctx, env.Command)
}

// ScheduleRecording places a synchronized start one lookahead from now and
// arms the master's own start behind its compensation. Any earlier pending
// start is canceled.
func (m *Master) ScheduleRecording(ctx context.Context) (int64, error) {
	target := m.coord.TargetIn(m.lookahead)
	if err := m.Issue(ctx, command.StartRecordScheduled{TargetTimeMs: target}); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending != nil {
		m.pending.Cancel()
	}
	base := m.ctx
	if base == nil {
		base = context.WithoutCancel(ctx)
	}
	m.pending = m.coord.ScheduleAt(base, target, func() {
		m.logger.Info(base, "scheduled recording started", logger.Int64("target_ms", target))
		if m.onStart != nil {
			m.onStart(target)
		}
	})
	return target, nil
}

// Pending returns the armed scheduled start, if any.
func (m *Master) Pending() *clock.Action {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil || m.pending.Canceled() {
		return nil
	}
	return m.pending
}

// StopRecording cancels any pending start and tells the room to stop.
func (m *Master) StopRecording(ctx context.Context) error {
	m.mu.Lock()
	if m.pending != nil {
		m.pending.Cancel()
		m.pending = nil
	}
	m.mu.Unlock()
	return m.Issue(ctx, command.StopRecord{})
}

// ClearRoom tells the room to reset and deletes its backing tracks and
// scores.
func (m *Master) ClearRoom(ctx context.Context) (int, error) {
	m.mu.Lock()
	if m.pending != nil {
		m.pending.Cancel()
		m.pending = nil
	}
	m.mu.Unlock()
	if err := m.Issue(ctx, command.ClearRoom{}); err != nil {
		return 0, err
	}
	if m.library == nil {
		return 0, nil
	}
	return m.library.ClearRoom(ctx, m.room)
}

// UploadBacking stores a backing track version and preloads it on every
// satellite.
func (m *Master) UploadBacking(ctx context.Context, name string, data []byte, contentType string) (model.BackingTrackVersion, error) {
	if m.library == nil {
		return model.BackingTrackVersion{}, fmt.Errorf("%w: no object store", ErrInvalidRequest)
	}
	v, err := m.library.UploadBacking(ctx, m.room, name, data, contentType)
	if err != nil {
		return model.BackingTrackVersion{}, err
	}
	return v, m.Issue(ctx, command.PreloadTrack{URL: v.URL})
}

// Satellites returns the registry snapshot.
func (m *Master) Satellites() []model.SatelliteState { return m.registry.Snapshot() }

// Sweep runs one stale check at the current time.
func (m *Master) Sweep() []string { return m.registry.Sweep(m.clock.NowMs()) }

// Chord names the chord formed by the connected satellites' notes.
func (m *Master) Chord() (pitch.Chord, bool) {
	return pitch.DetectChordFromReadings(m.registry.Readings())
}

// View returns the current room state.
func (m *Master) View() room.View { return m.state.View() }

func (m *Master) handleTelemetry(ctx context.Context, payload []byte) {
	var t model.Telemetry
	if err := json.Unmarshal(payload, &t); err != nil {
		m.logger.Debug(ctx, "dropping malformed telemetry", logger.Error(err))
		return
	}
	if t.PartID == "" {
		return
	}
	if m.registry.Observe(t, m.clock.NowMs()) {
		m.logger.Info(ctx, "satellite joined", logger.String("part", t.PartID))
		m.scheduleReplay()
	}
}

// handleCommand folds in commands published by other masters of the room.
func (m *Master) handleCommand(ctx context.Context, payload []byte) {
	env, err := command.Decode(payload)
	if err != nil {
		ignore(ctx, m.logger, err)
		return
	}
	m.state.Apply(env.Command)
	metrics.RecordCommandApplied(string(env.Command.Action()))
}

func (m *Master) scheduleReplay() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replay != nil || m.cancel == nil {
		return
	}
	m.replay = time.AfterFunc(m.settle, m.sendReplay)
}

func (m *Master) sendReplay() {
	m.mu.Lock()
	m.replay = nil
	ctx := m.ctx
	m.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	m.pubMu.Lock()
	defer m.pubMu.Unlock()
	now := m.clock.NowMs()
	cmds := m.state.Replay()
	for _, cmd := range cmds {
		payload, err := command.EncodeID(cmd, now, uuid.NewString())
		if err != nil {
			m.logger.Error(ctx, "encoding replay", logger.Error(err))
			continue
		}
		if err := m.bus.Publish(ctx, bus.TopicCommand, payload); err != nil {
			m.logger.Warn(ctx, "replay publish failed", logger.Error(err))
			return
		}
	}
	metrics.RecordReplayBurst()
	m.logger.Info(ctx, "state replayed", logger.Int("commands", len(cmds)))
}

// ignore counts and logs a command that will not be applied.
func ignore(ctx context.Context, log logger.Logger, err error) {
	reason := "malformed"
	if errors.Is(err, command.ErrUnknownAction) {
		reason = "unknown_action"
	}
	metrics.RecordCommandIgnored(reason)
	log.Debug(ctx, "ignoring command", logger.String("reason", reason), logger.Error(err))
}
