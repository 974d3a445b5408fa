// Package service wires the rehearsal rooms together: one Master session
// per room on a shared bus hub, the object library, and the mixdown queue
// with its worker pool.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/chorus/internal/adapters/bus"
	valkeybus "github.com/okian/chorus/internal/adapters/bus/valkey"
	jobqueue "github.com/okian/chorus/internal/adapters/mq/queue"
	workerpool "github.com/okian/chorus/internal/adapters/mq/worker"
	"github.com/okian/chorus/internal/adapters/repository"
	"github.com/okian/chorus/internal/config"
	"github.com/okian/chorus/internal/domain/clock"
	"github.com/okian/chorus/internal/domain/mixdown"
	"github.com/okian/chorus/internal/domain/model"
	"github.com/okian/chorus/pkg/logger"
	"github.com/okian/chorus/pkg/metrics"
)

type roomSession struct {
	master *Master
	peer   *bus.Peer
	relay  *bus.Peer
	bridge bus.Subscription
	remote bus.Bus
}

// Service owns every room hosted by this process.
type Service struct {
	mu sync.RWMutex

	cfg     *config.Config
	clock   clock.Clock
	store   repository.Store
	library *Library
	hub     *bus.Hub
	queue   *jobqueue.InMemoryQueue
	pool    *workerpool.Pool
	jobs    *mixdown.Tracker
	engine  *mixdown.Engine
	rooms   map[string]*roomSession

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the process configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithStore uses store instead of opening the configured SQLite file.
func WithStore(store repository.Store) Option {
	return func(s *Service) { s.store = store }
}

// WithClock sets the authority clock.
func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service. Nothing runs until Start.
func New(opts ...Option) *Service {
	s := &Service{
		cfg:   config.New(),
		clock: clock.System{},
		rooms: make(map[string]*roomSession),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the store and starts the mixdown workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	cfg := s.cfg

	if s.store == nil {
		store, err := repository.OpenSQLite(cfg.DBPath, repository.WithPublicURL(cfg.PublicURL))
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		s.store = store
		s.logger.Info(ctx, "using sqlite store", logger.String("path", cfg.DBPath))
	}
	s.library = NewLibrary(s.store,
		WithLegacyOffset(int64(cfg.LegacyOffsetMS)),
		WithTakeWindow(cfg.TakeWindow()),
		WithLibraryClock(func() time.Time { return time.UnixMilli(s.clock.NowMs()) }),
	)
	s.hub = bus.NewHub()
	s.jobs = mixdown.NewTracker(mixdown.DefaultTrackerSize)
	s.engine = mixdown.NewEngine(
		mixdown.WithSampleRate(cfg.MixSampleRate),
		mixdown.WithRecordStartDelay(cfg.RecordStartDelay()),
		mixdown.WithReverb(cfg.ReverbTail(), cfg.ReverbDuration(), cfg.ReverbDecay),
	)
	s.queue = jobqueue.NewInMemoryQueue(
		jobqueue.WithCapacity(cfg.JobQueueSize),
		jobqueue.WithBufferSize(cfg.JobQueueSize),
	)
	s.pool = workerpool.NewPool(cfg.WorkerCount, s.queue, s)
	s.pool.Start(context.WithoutCancel(ctx), metrics.RefreshInterval())

	s.started = true
	s.logger.Info(ctx, "chorus service started",
		logger.Int("workers", cfg.WorkerCount),
		logger.Int("queueSize", cfg.JobQueueSize),
		logger.String("bus", cfg.BusBackend),
	)
	return nil
}

// Stop closes every room, drains the workers and closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping chorus service...")

	for id, r := range s.rooms {
		s.closeRoom(r)
		delete(s.rooms, id)
	}
	if s.pool != nil {
		if err := s.pool.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "worker pool shutdown", logger.Error(err))
		}
	}
	if s.store != nil {
		_ = s.store.Close()
	}
	s.started = false
	s.logger.Info(ctx, "chorus service stopped")
}

// Hub is the process bus hub; WebSocket peers join it.
func (s *Service) Hub() *bus.Hub { return s.hub }

// Library is the room object library.
func (s *Service) Library() *Library { return s.library }

// Store is the object store.
func (s *Service) Store() repository.Store { return s.store }

// Now is the authority time served to satellites.
func (s *Service) Now() int64 { return s.clock.NowMs() }

// ServerTime implements clock.TimeSource for in-process satellites.
func (s *Service) ServerTime(ctx context.Context) (int64, error) {
	return clock.LocalSource{Clock: s.clock}.ServerTime(ctx)
}

// Master returns the room's master session, creating it on first use.
func (s *Service) Master(ctx context.Context, room string) (*Master, error) {
	s.mu.RLock()
	r, ok := s.rooms[room]
	started := s.started
	s.mu.RUnlock()
	if ok {
		return r.master, nil
	}
	if !started {
		return nil, ErrNotStarted
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[room]; ok {
		return r.master, nil
	}
	r, err := s.openRoom(ctx, room)
	if err != nil {
		return nil, err
	}
	s.rooms[room] = r
	return r.master, nil
}

// Rooms lists the rooms with a master session.
func (s *Service) Rooms() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		out = append(out, id)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (s *Service) openRoom(ctx context.Context, room string) (*roomSession, error) {
	cfg := s.cfg
	r := &roomSession{peer: s.hub.Join(room)}

	if cfg.BusBackend == config.BusValkey {
		remote, err := valkeybus.Connect(cfg.ValkeyAddr, room, valkeybus.WithLogger(s.logger))
		if err != nil {
			_ = r.peer.Close()
			return nil, fmt.Errorf("connect valkey: %w", err)
		}
		r.relay = s.hub.Join(room)
		bridge, err := bus.Bridge(context.WithoutCancel(ctx), r.relay, remote, s.logger)
		if err != nil {
			_ = remote.Close()
			_ = r.relay.Close()
			_ = r.peer.Close()
			return nil, fmt.Errorf("bridge valkey: %w", err)
		}
		r.remote, r.bridge = remote, bridge
	}

	r.master = NewMaster(room, r.peer, s.library,
		WithMasterClock(s.clock),
		WithReplaySettle(cfg.ReplaySettle()),
		WithLookahead(cfg.ScheduleLookahead()),
		WithCompensation(cfg.MasterCompensation()),
		WithSchedulePoll(cfg.PollInterval()),
		WithSweep(cfg.StaleAfter(), cfg.SweepInterval()),
	)
	if err := r.master.Start(ctx); err != nil {
		s.closeRoom(r)
		return nil, err
	}
	return r, nil
}

func (s *Service) closeRoom(r *roomSession) {
	if r.master != nil {
		_ = r.master.Close()
	}
	if r.bridge != nil {
		r.bridge.Unsubscribe()
	}
	if r.remote != nil {
		_ = r.remote.Close()
	}
	if r.relay != nil {
		_ = r.relay.Close()
	}
	_ = r.peer.Close()
}

// EnqueueMixdown queues a render of one take.
func (s *Service) EnqueueMixdown(ctx context.Context, room string, takeID int64, settings mixdown.Settings) (mixdown.JobState, error) {
	if !s.isStarted() {
		return mixdown.JobState{}, ErrNotStarted
	}
	if _, err := s.library.Take(ctx, room, takeID); err != nil {
		return mixdown.JobState{}, err
	}
	job := mixdown.Job{
		ID:         uuid.NewString(),
		RoomID:     room,
		TakeID:     takeID,
		Settings:   settings,
		EnqueuedAt: time.Now(),
	}
	s.jobs.Queued(job)
	if !s.queue.Enqueue(ctx, job) {
		s.jobs.Failed(job.ID, ErrQueueFull)
		return mixdown.JobState{}, ErrQueueFull
	}
	st, _ := s.jobs.Get(job.ID)
	return st, nil
}

// Job returns a mixdown job's state.
func (s *Service) Job(id string) (mixdown.JobState, bool) {
	if s.jobs == nil {
		return mixdown.JobState{}, false
	}
	return s.jobs.Get(id)
}

// Process renders one queued job. It implements worker.Processor.
func (s *Service) Process(ctx context.Context, job mixdown.Job) error { //nolint:gocritic // hugeParam: matches Processor
	s.jobs.Running(job.ID)
	start := time.Now()

	url, err := s.render(ctx, job)
	if err != nil {
		s.jobs.Failed(job.ID, err)
		var mixErr *mixdown.MixdownError
		if !errors.As(err, &mixErr) {
			metrics.RecordMixdownError("internal")
		}
		return err
	}
	s.jobs.Done(job.ID, url)
	metrics.RecordMixdownDuration("job", float64(time.Since(start).Milliseconds()))
	s.logger.Info(ctx, "mixdown finished",
		logger.String("job", job.ID), logger.String("room", job.RoomID), logger.String("url", url))
	return nil
}

func (s *Service) render(ctx context.Context, job mixdown.Job) (string, error) { //nolint:gocritic // hugeParam: matches Processor
	req, err := s.library.Request(ctx, job.RoomID, job.TakeID, job.Settings)
	if err != nil {
		return "", err
	}
	mix, err := s.engine.Render(ctx, req)
	if err != nil {
		return "", err
	}
	wav, err := mix.WAV()
	if err != nil {
		return "", fmt.Errorf("encode mix: %w", err)
	}
	return s.library.SaveMix(ctx, job.RoomID, job.TakeID, job.ID, wav)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.cfg.WorkerCount,
		"queueSize":   s.cfg.JobQueueSize,
		"rooms":       len(s.rooms),
	}
	if s.started {
		stats["queueLength"] = s.queue.Len(context.Background())
		stats["busyWorkers"] = s.pool.Busy()
	}
	return stats
}

func (s *Service) isStarted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// Takes lists the room's grouped takes.
func (s *Service) Takes(ctx context.Context, room string) ([]model.Take, error) {
	if !s.isStarted() {
		return nil, ErrNotStarted
	}
	return s.library.Takes(ctx, room)
}

// UploadArtifact stores a satellite recording for room.
func (s *Service) UploadArtifact(ctx context.Context, room, part string, capturedAtMs, offsetMs int64, ext string, data []byte) (model.CapturedArtifact, string, error) {
	if !s.isStarted() {
		return model.CapturedArtifact{}, "", ErrNotStarted
	}
	return s.library.UploadArtifact(ctx, room, part, capturedAtMs, offsetMs, ext, data)
}

// UploadScore stores a score page for room.
func (s *Service) UploadScore(ctx context.Context, room, name string, data []byte, contentType string) (string, error) {
	if !s.isStarted() {
		return "", ErrNotStarted
	}
	return s.library.UploadScore(ctx, room, name, data, contentType)
}

// Object fetches a stored blob by path.
func (s *Service) Object(ctx context.Context, p string) (repository.Object, error) {
	if !s.isStarted() {
		return repository.Object{}, ErrNotStarted
	}
	return s.store.Get(ctx, p)
}
