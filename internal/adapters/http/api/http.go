// Package api exposes rehearsal rooms over HTTP: the authority clock, the
// WebSocket bus, room control, uploads and mixdown jobs.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/okian/chorus/internal/adapters/bus"
	"github.com/okian/chorus/internal/adapters/bus/websocket"
	"github.com/okian/chorus/internal/adapters/repository"
	"github.com/okian/chorus/internal/domain/command"
	"github.com/okian/chorus/internal/domain/mixdown"
	"github.com/okian/chorus/internal/domain/model"
	"github.com/okian/chorus/internal/domain/pitch"
	"github.com/okian/chorus/internal/domain/room"
	"github.com/okian/chorus/pkg/logger"
)

// Room is the master session of one rehearsal room.
type Room interface {
	Satellites() []model.SatelliteState
	Chord() (pitch.Chord, bool)
	View() room.View
	IssueRaw(ctx context.Context, payload []byte) (command.Command, error)
	ScheduleRecording(ctx context.Context) (int64, error)
	StopRecording(ctx context.Context) error
	UploadBacking(ctx context.Context, name string, data []byte, contentType string) (model.BackingTrackVersion, error)
	ClearRoom(ctx context.Context) (int, error)
}

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	StatsProvider

	// Now is the authority clock in Unix milliseconds.
	Now() int64

	// Room returns the master session for id, opening it if needed.
	Room(ctx context.Context, id string) (Room, error)

	UploadArtifact(ctx context.Context, room, part string, capturedAtMs, offsetMs int64, ext string, data []byte) (model.CapturedArtifact, string, error)
	UploadScore(ctx context.Context, room, name string, data []byte, contentType string) (string, error)
	Takes(ctx context.Context, room string) ([]model.Take, error)

	// EnqueueMixdown queues a render.
	EnqueueMixdown(ctx context.Context, room string, takeID int64, settings mixdown.Settings) (mixdown.JobState, error)
	Job(id string) (mixdown.JobState, bool)

	Object(ctx context.Context, path string) (repository.Object, error)
}

// Server wires HTTP routes for the rehearsal API.
type Server struct {
	deps   Dependencies
	ws     *websocket.Server
	logger logger.Logger

	classify Classifiers

	healthHandler *HealthHandler
	statsHandler  *StatsHandler
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// Classifiers map upstream errors onto client-facing statuses. A nil
// classifier matches nothing.
type Classifiers struct {
	BadRequest   func(error) bool
	NotFound     func(error) bool
	Backpressure func(error) bool
}

// WithErrorClassifiers sets how upstream errors are reported.
func WithErrorClassifiers(c Classifiers) Option {
	return func(s *Server) { s.classify = c }
}

func match(fn func(error) bool, err error) bool { return fn != nil && fn(err) }

// NewServer creates a new API server. hub carries WebSocket peers; it may
// be nil when the bus is not exposed.
func NewServer(deps Dependencies, hub *bus.Hub, opts ...Option) *Server {
	s := &Server{
		deps:          deps,
		logger:        logger.Get().Named("api"),
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(deps),
	}
	for _, opt := range opts {
		opt(s)
	}
	if hub != nil {
		s.ws = websocket.NewServer(hub, websocket.WithServerLogger(s.logger))
	}
	return s
}

// Router returns a handler serving every route.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	s.Register(r)
	return r
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(r *mux.Router) {
	r.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz")).Methods(http.MethodGet)
	r.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats")).Methods(http.MethodGet)
	r.HandleFunc("/api/time", MetricsMiddleware(noCache(s.handleTime), "time")).Methods(http.MethodGet)
	r.HandleFunc("/rooms/{room}/ws", s.handleWebSocket).Methods(http.MethodGet)

	api := r.PathPrefix("/api/rooms/{room}").Subrouter()
	api.HandleFunc("", MetricsMiddleware(s.handleClearRoom, "room")).Methods(http.MethodDelete)
	api.HandleFunc("/state", MetricsMiddleware(s.handleState, "state")).Methods(http.MethodGet)
	api.HandleFunc("/satellites", MetricsMiddleware(s.handleSatellites, "satellites")).Methods(http.MethodGet)
	api.HandleFunc("/chord", MetricsMiddleware(s.handleChord, "chord")).Methods(http.MethodGet)
	api.HandleFunc("/commands", MetricsMiddleware(s.handleCommand, "commands")).Methods(http.MethodPost)
	api.HandleFunc("/recording/schedule", MetricsMiddleware(s.handleSchedule, "schedule")).Methods(http.MethodPost)
	api.HandleFunc("/recording/stop", MetricsMiddleware(s.handleStop, "stop")).Methods(http.MethodPost)
	api.HandleFunc("/backing-tracks", MetricsMiddleware(s.handleUploadBacking, "backing_tracks")).Methods(http.MethodPost)
	api.HandleFunc("/scores", MetricsMiddleware(s.handleUploadScore, "scores")).Methods(http.MethodPost)
	api.HandleFunc("/artifacts", MetricsMiddleware(s.handleUploadArtifact, "artifacts")).Methods(http.MethodPost)
	api.HandleFunc("/takes", MetricsMiddleware(s.handleTakes, "takes")).Methods(http.MethodGet)
	api.HandleFunc("/takes/{take:[0-9]+}/mixdown", MetricsMiddleware(s.handleMixdown, "mixdown")).Methods(http.MethodPost)

	r.HandleFunc("/api/jobs/{id}", MetricsMiddleware(s.handleJob, "jobs")).Methods(http.MethodGet)
	r.PathPrefix("/objects/").HandlerFunc(MetricsMiddleware(s.handleObject, "objects")).Methods(http.MethodGet)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeUpstream maps an error from the dependencies onto a status code.
func (s *Server) writeUpstream(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, repository.ErrInvalidPath), match(s.classify.BadRequest, err):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, repository.ErrNotFound), match(s.classify.NotFound, err):
		writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
	case match(s.classify.Backpressure, err):
		writeError(w, http.StatusTooManyRequests, "backpressure", WrapKind(op, ErrBackpressure, err))
	default:
		s.logger.Error(r.Context(), "request failed", logger.String("op", op), logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
