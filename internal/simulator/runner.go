package simulator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/okian/chorus/internal/adapters/bus/websocket"
	"github.com/okian/chorus/internal/adapters/http/api"
	service "github.com/okian/chorus/internal/app"
	"github.com/okian/chorus/internal/audio"
	"github.com/okian/chorus/internal/domain/command"
	"github.com/okian/chorus/internal/domain/dedupe"
	"github.com/okian/chorus/internal/domain/pitch"
	"github.com/okian/chorus/pkg/logger"
)

const clipSeconds = 4

// session is one simulated part.
type session struct {
	part string
	conn *websocket.Client
	sat  *service.Satellite
}

func (s *session) close(ctx context.Context) {
	if err := s.sat.Close(); err != nil {
		logger.Get().Warn(ctx, "satellite close failed", logger.String("part", s.part), logger.Error(err))
	}
	_ = s.conn.Close()
}

// Run joins cfg.Room with one satellite per part, streams until the run
// ends and, when cfg.Take is set, records one scheduled take.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	cfg.Defaults()
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get().Named("simulator")
	if !cfg.Verbose {
		log = logger.Nop()
	}

	if len(cfg.Parts) == 0 {
		return stats, ErrNoParts
	}

	client := api.NewClient(cfg.BaseURL, cfg.Room, api.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	if _, err := client.ServerTime(ctx); err != nil {
		return stats, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}

	logger.Get().Info(ctx, "starting rehearsal simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.String("room", cfg.Room),
		logger.Any("parts", cfg.Parts),
		logger.Duration("take", cfg.Take))

	var shared *audio.Clip
	if cfg.ClipPath != "" {
		clip, err := LoadClip(cfg.ClipPath)
		if err != nil {
			return stats, err
		}
		shared = clip
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		sessions []*session
	)
	defer func() {
		cancel()
		wg.Wait()
		for _, s := range sessions {
			s.close(context.WithoutCancel(ctx))
		}
		stats.Duration = time.Since(stats.StartTime)
		displayFinalStats(stats)
	}()

	for _, part := range cfg.Parts {
		clip := shared
		if clip == nil {
			clip = Synth(PartFrequency(part, cfg.A4), clipSeconds)
		}
		s, err := join(runCtx, cfg, client, part, clip, stats, log)
		if err != nil {
			return stats, err
		}
		sessions = append(sessions, s)
		stats.Satellites.Add(1)

		hop := time.Duration(float64(cfg.FrameSize/4) / float64(clip.SampleRate) * float64(time.Second))
		src := NewPacedSource(pitch.NewClipSource(clip, cfg.FrameSize, pitch.WithLoop(true)), hop)
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.sat.Stream(runCtx, src, pitch.NewEstimator(), pitch.WithReference(cfg.A4))
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
				log.Warn(runCtx, "stream ended", logger.String("part", s.part), logger.Error(err))
			}
		}()
	}

	if cfg.Take <= 0 {
		return stats, sleep(ctx, cfg.Duration)
	}
	return stats, recordTake(ctx, cfg, client, sessions, stats)
}

func join(ctx context.Context, cfg *Config, client *api.Client, part string, clip *audio.Clip, stats *Stats, log logger.Logger) (*session, error) {
	conn, err := websocket.Dial(ctx, client.BusURL(), websocket.WithClientLogger(log))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", part, err)
	}
	sat := service.NewSatellite(part, conn, client,
		service.WithRecorder(NewClipRecorder(clip)),
		service.WithArtifactSink(client),
		service.WithDeduper(dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(cfg.Dedupe))),
		service.WithCommandHook(func(command.Command) { stats.Commands.Add(1) }),
		service.WithUploadHook(func(u service.Upload) {
			if u.Err != nil {
				stats.UploadFailures.Add(1)
				log.Warn(ctx, "upload failed", logger.String("part", u.Part), logger.Error(u.Err))
				return
			}
			stats.Uploads.Add(1)
			log.Info(ctx, "uploaded", logger.String("part", u.Part), logger.Int64("offset_ms", u.OffsetMs), logger.String("url", u.URL))
		}),
		service.WithSatelliteLogger(log),
	)
	if err := sat.Start(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s: %w", part, err)
	}
	return &session{part: part, conn: conn, sat: sat}, nil
}

// recordTake schedules a start, lets it run for cfg.Take, stops it and
// waits for every part's upload.
func recordTake(ctx context.Context, cfg *Config, client *api.Client, sessions []*session, stats *Stats) error {
	target, err := client.ScheduleRecording(ctx)
	if err != nil {
		return err
	}
	wait := time.Duration(target-sessions[0].sat.Now())*time.Millisecond + cfg.Take
	if err := sleep(ctx, wait); err != nil {
		return err
	}
	if err := client.StopRecording(ctx); err != nil {
		return err
	}

	deadline := time.Now().Add(cfg.Timeout)
	want := int64(len(sessions))
	for stats.Uploads.Load()+stats.UploadFailures.Load() < want {
		if time.Now().After(deadline) {
			return ErrUploadTimeout
		}
		if err := sleep(ctx, 50*time.Millisecond); err != nil {
			return err
		}
	}

	takes, err := client.Takes(ctx)
	if err != nil {
		return err
	}
	stats.Takes = len(takes)
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func displayFinalStats(stats *Stats) {
	logger.Get().Info(context.Background(), "final statistics",
		logger.Int64("satellites", stats.Satellites.Load()),
		logger.Int64("commands", stats.Commands.Load()),
		logger.Int64("uploads", stats.Uploads.Load()),
		logger.Int64("uploadFailures", stats.UploadFailures.Load()),
		logger.Int("takes", stats.Takes),
		logger.String("duration", stats.Duration.String()))
}
