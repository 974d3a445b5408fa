package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/okian/chorus/internal/adapters/repository"
	"github.com/okian/chorus/internal/domain/mixdown"
	"github.com/okian/chorus/internal/domain/model"
	"github.com/okian/chorus/pkg/logger"
	"github.com/okian/chorus/pkg/metrics"
)

// Library maps rooms onto the object store layout: captured artifacts,
// backing track versions, scores and rendered mixes.
type Library struct {
	store          repository.Store
	legacyOffsetMs int64
	takeWindow     time.Duration
	now            func() time.Time
	logger         logger.Logger
}

// LibraryOption configures a Library.
type LibraryOption func(*Library)

// WithLegacyOffset sets the offset assumed for artifacts named without one.
func WithLegacyOffset(ms int64) LibraryOption {
	return func(l *Library) { l.legacyOffsetMs = ms }
}

// WithTakeWindow sets the capture-time clustering window.
func WithTakeWindow(d time.Duration) LibraryOption {
	return func(l *Library) {
		if d > 0 {
			l.takeWindow = d
		}
	}
}

// WithLibraryClock overrides the upload timestamp source.
func WithLibraryClock(now func() time.Time) LibraryOption {
	return func(l *Library) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLibraryLogger sets the logger.
func WithLibraryLogger(lg logger.Logger) LibraryOption {
	return func(l *Library) {
		if lg != nil {
			l.logger = lg
		}
	}
}

// NewLibrary returns a Library over store.
func NewLibrary(store repository.Store, opts ...LibraryOption) *Library {
	l := &Library{
		store:          store,
		legacyOffsetMs: mixdown.DefaultLegacyOffsetMs,
		takeWindow:     mixdown.DefaultTakeWindow,
		now:            time.Now,
		logger:         logger.Get().Named("library"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Store returns the underlying object store.
func (l *Library) Store() repository.Store { return l.store }

// UploadArtifact stores a captured recording under its canonical name.
func (l *Library) UploadArtifact(ctx context.Context, room, part string, capturedAtMs, offsetMs int64, ext string, data []byte) (model.CapturedArtifact, string, error) {
	if strings.TrimSpace(part) == "" {
		return model.CapturedArtifact{}, "", fmt.Errorf("%w: empty part", ErrInvalidRequest)
	}
	if len(data) == 0 {
		return model.CapturedArtifact{}, "", fmt.Errorf("%w: empty recording", ErrInvalidRequest)
	}
	name := mixdown.ArtifactName(part, capturedAtMs, offsetMs, ext)
	a, err := mixdown.ParseArtifactName(name, l.legacyOffsetMs)
	if err != nil {
		return model.CapturedArtifact{}, "", err
	}
	url, err := l.store.Put(ctx, repository.PracticePrefix(room)+name, data, a.MimeType)
	if err != nil {
		return model.CapturedArtifact{}, "", fmt.Errorf("store artifact: %w", err)
	}
	l.logger.Info(ctx, "artifact stored",
		logger.String("room", room), logger.String("part", part),
		logger.Int64("captured_at", capturedAtMs), logger.Int64("offset_ms", offsetMs))
	return a, url, nil
}

// Artifacts lists the room's captured artifacts without payloads. Objects
// whose names do not parse are skipped.
func (l *Library) Artifacts(ctx context.Context, room string) ([]model.CapturedArtifact, error) {
	infos, err := l.store.List(ctx, repository.PracticePrefix(room))
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	out := make([]model.CapturedArtifact, 0, len(infos))
	for _, info := range infos {
		if strings.Contains(info.Name, "/") {
			continue
		}
		a, err := mixdown.ParseArtifactName(info.Name, l.legacyOffsetMs)
		if err != nil {
			l.logger.Debug(ctx, "skipping object", logger.String("path", info.Path), logger.Error(err))
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// UploadBacking stores a new backing track version stamped with the
// current time.
func (l *Library) UploadBacking(ctx context.Context, room, name string, data []byte, contentType string) (model.BackingTrackVersion, error) {
	if len(data) == 0 {
		return model.BackingTrackVersion{}, fmt.Errorf("%w: empty backing track", ErrInvalidRequest)
	}
	if name == "" {
		name = "backing.wav"
	}
	ts := l.now().UnixMilli()
	file := mixdown.BackingName(ts, name)
	url, err := l.store.Put(ctx, repository.BackingPrefix(room)+file, data, contentType)
	if err != nil {
		return model.BackingTrackVersion{}, fmt.Errorf("store backing track: %w", err)
	}
	_, display, _ := mixdown.ParseBackingName(file)
	return model.BackingTrackVersion{Name: display, URL: url, UploadedAtMs: ts}, nil
}

// BackingVersions lists every backing track uploaded to the room, oldest
// first. A file name without a timestamp falls back to the object's
// creation time.
func (l *Library) BackingVersions(ctx context.Context, room string) ([]model.BackingTrackVersion, error) {
	infos, err := l.store.List(ctx, repository.BackingPrefix(room))
	if err != nil {
		return nil, fmt.Errorf("list backing tracks: %w", err)
	}
	out := make([]model.BackingTrackVersion, 0, len(infos))
	for _, info := range infos {
		ts, display, ok := mixdown.ParseBackingName(info.Name)
		if !ok {
			ts = info.CreatedAt.UnixMilli()
		}
		out = append(out, model.BackingTrackVersion{Name: display, URL: info.URL, UploadedAtMs: ts})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UploadedAtMs < out[j].UploadedAtMs })
	return out, nil
}

// LatestBacking returns the newest backing track, or nil.
func (l *Library) LatestBacking(ctx context.Context, room string) (*model.BackingTrackVersion, error) {
	versions, err := l.BackingVersions(ctx, room)
	if err != nil {
		return nil, err
	}
	return mixdown.Latest(versions), nil
}

// UploadScore stores a score page and returns its URL.
func (l *Library) UploadScore(ctx context.Context, room, name string, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty score", ErrInvalidRequest)
	}
	file := mixdown.BackingName(l.now().UnixMilli(), name)
	url, err := l.store.Put(ctx, repository.ScoresPrefix(room)+file, data, contentType)
	if err != nil {
		return "", fmt.Errorf("store score: %w", err)
	}
	return url, nil
}

// Takes groups the room's artifacts and pairs each take with the backing
// track that was current when it was captured.
func (l *Library) Takes(ctx context.Context, room string) ([]model.Take, error) {
	artifacts, err := l.Artifacts(ctx, room)
	if err != nil {
		return nil, err
	}
	versions, err := l.BackingVersions(ctx, room)
	if err != nil {
		return nil, err
	}
	takes := mixdown.GroupTakes(artifacts, l.takeWindow)
	for i := range takes {
		takes[i].Backing = mixdown.VersionAt(versions, takes[i].CapturedAtMs)
	}
	return takes, nil
}

// Take returns one take by ID or ErrTakeNotFound.
func (l *Library) Take(ctx context.Context, room string, id int64) (model.Take, error) {
	takes, err := l.Takes(ctx, room)
	if err != nil {
		return model.Take{}, err
	}
	for _, t := range takes {
		if t.ID == id {
			return t, nil
		}
	}
	return model.Take{}, fmt.Errorf("%w: %d", ErrTakeNotFound, id)
}

// Request loads every payload of a take into a render request. Vocal fetch
// failures are fatal; a backing fetch failure is recorded on the request
// so the render can proceed without it.
func (l *Library) Request(ctx context.Context, room string, takeID int64, settings mixdown.Settings) (mixdown.Request, error) {
	take, err := l.Take(ctx, room, takeID)
	if err != nil {
		return mixdown.Request{}, err
	}

	req := mixdown.Request{Settings: settings, Backing: take.Backing}
	var failures []mixdown.ArtifactFailure
	for _, a := range take.Artifacts {
		obj, err := l.store.Get(ctx, repository.PracticePrefix(room)+a.Name)
		if err != nil {
			failures = append(failures, mixdown.ArtifactFailure{ArtifactID: a.ID(), Err: err})
			continue
		}
		a.Payload = obj.Data
		req.Vocals = append(req.Vocals, a)
	}
	if len(failures) > 0 {
		metrics.RecordMixdownError("fetch")
		return mixdown.Request{}, &mixdown.MixdownError{Failures: failures}
	}

	if take.Backing != nil {
		obj, err := l.store.Get(ctx, l.objectPath(take.Backing.URL))
		if err != nil {
			req.BackingErr = err
		} else {
			req.BackingPayload = obj.Data
		}
	}
	return req, nil
}

// SaveMix stores a rendered mix under mixdowns/{room}/{take}_{job}.wav.
func (l *Library) SaveMix(ctx context.Context, room string, takeID int64, jobID string, wav []byte) (string, error) {
	p := fmt.Sprintf("%s%d_%s.wav", repository.MixdownPrefix(room), takeID, jobID)
	url, err := l.store.Put(ctx, p, wav, "audio/wav")
	if err != nil {
		return "", fmt.Errorf("store mix: %w", err)
	}
	return url, nil
}

// ClearRoom removes the room's backing tracks and scores. Recordings and
// mixes are kept.
func (l *Library) ClearRoom(ctx context.Context, room string) (int, error) {
	var paths []string
	for _, prefix := range []string{repository.BackingPrefix(room), repository.ScoresPrefix(room)} {
		infos, err := l.store.List(ctx, prefix)
		if err != nil {
			return 0, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, info := range infos {
			paths = append(paths, info.Path)
		}
	}
	if len(paths) == 0 {
		return 0, nil
	}
	n, err := l.store.Delete(ctx, paths...)
	if err != nil {
		return n, fmt.Errorf("clear room: %w", err)
	}
	l.logger.Info(ctx, "room cleared", logger.String("room", room), logger.Int("objects", n))
	return n, nil
}

// objectPath recovers the store path from a URL handed out by Put.
func (l *Library) objectPath(url string) string {
	if i := strings.Index(url, "/objects/"); i >= 0 {
		return url[i+len("/objects/"):]
	}
	return path.Clean(strings.TrimPrefix(url, "/"))
}

// IsNotFound reports whether err means a missing room object or take.
func IsNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound) || errors.Is(err, ErrTakeNotFound)
}
