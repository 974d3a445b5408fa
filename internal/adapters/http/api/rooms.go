package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/okian/chorus/internal/domain/command"
	"github.com/okian/chorus/internal/domain/model"
)

// maxUpload bounds recordings and backing tracks.
const maxUpload = 64 << 20

type timeResponse struct {
	ServerTime int64 `json:"serverTime"`
}

type scheduleResponse struct {
	TargetTime int64 `json:"targetTime"`
}

type ackResponse struct {
	Status string         `json:"status"`
	Action command.Action `json:"action,omitempty"`
}

type chordResponse struct {
	Chord any  `json:"chord"`
	Found bool `json:"found"`
}

type clearResponse struct {
	Deleted int `json:"deleted"`
}

type uploadResponse struct {
	URL      string                     `json:"url"`
	Artifact *model.CapturedArtifact    `json:"artifact,omitempty"`
	Backing  *model.BackingTrackVersion `json:"backing,omitempty"`
}

// handleTime handles GET /api/time, the authority clock satellites sync to.
func (s *Server) handleTime(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, timeResponse{ServerTime: s.deps.Now()})
}

// handleWebSocket attaches a remote peer to the room bus.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.ws == nil {
		http.NotFound(w, r)
		return
	}
	id := mux.Vars(r)["room"]
	if _, err := s.deps.Room(r.Context(), id); err != nil {
		s.writeUpstream(w, r, "api.ws", err)
		return
	}
	s.ws.Serve(w, r, id)
}

func (s *Server) room(w http.ResponseWriter, r *http.Request, op string) (Room, string, bool) {
	id := mux.Vars(r)["room"]
	if strings.TrimSpace(id) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return nil, "", false
	}
	rm, err := s.deps.Room(r.Context(), id)
	if err != nil {
		s.writeUpstream(w, r, op, err)
		return nil, "", false
	}
	return rm, id, true
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	rm, _, ok := s.room(w, r, "api.state")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rm.View())
}

func (s *Server) handleSatellites(w http.ResponseWriter, r *http.Request) {
	rm, _, ok := s.room(w, r, "api.satellites")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rm.Satellites())
}

func (s *Server) handleChord(w http.ResponseWriter, r *http.Request) {
	rm, _, ok := s.room(w, r, "api.chord")
	if !ok {
		return
	}
	chord, found := rm.Chord()
	resp := chordResponse{Found: found}
	if found {
		resp.Chord = chord
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCommand handles POST /api/rooms/{room}/commands with a wire-shaped
// command body.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	const op = "api.command"
	rm, _, ok := s.room(w, r, op)
	if !ok {
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	cmd, err := rm.IssueRaw(r.Context(), body)
	switch {
	case errors.Is(err, command.ErrUnknownAction):
		writeError(w, http.StatusBadRequest, "unknown_action", WrapKind(op, ErrBadRequest, err))
		return
	case errors.Is(err, command.ErrMalformed):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	case err != nil:
		s.writeUpstream(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", Action: cmd.Action()})
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	const op = "api.schedule"
	rm, _, ok := s.room(w, r, op)
	if !ok {
		return
	}
	target, err := rm.ScheduleRecording(r.Context())
	if err != nil {
		s.writeUpstream(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, scheduleResponse{TargetTime: target})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	const op = "api.stop"
	rm, _, ok := s.room(w, r, op)
	if !ok {
		return
	}
	if err := rm.StopRecording(r.Context()); err != nil {
		s.writeUpstream(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: "stopped", Action: command.ActionStopRecord})
}

func (s *Server) handleClearRoom(w http.ResponseWriter, r *http.Request) {
	const op = "api.clear_room"
	rm, _, ok := s.room(w, r, op)
	if !ok {
		return
	}
	n, err := rm.ClearRoom(r.Context())
	if err != nil {
		s.writeUpstream(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, clearResponse{Deleted: n})
}

// handleUploadBacking handles POST /api/rooms/{room}/backing-tracks?name=
// with the raw audio as the body.
func (s *Server) handleUploadBacking(w http.ResponseWriter, r *http.Request) {
	const op = "api.upload_backing"
	rm, _, ok := s.room(w, r, op)
	if !ok {
		return
	}
	data, ok := readUpload(w, r, op)
	if !ok {
		return
	}
	v, err := rm.UploadBacking(r.Context(), r.URL.Query().Get("name"), data, contentType(r))
	if err != nil {
		s.writeUpstream(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, uploadResponse{URL: v.URL, Backing: &v})
}

func (s *Server) handleUploadScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.upload_score"
	_, id, ok := s.room(w, r, op)
	if !ok {
		return
	}
	data, ok := readUpload(w, r, op)
	if !ok {
		return
	}
	url, err := s.deps.UploadScore(r.Context(), id, r.URL.Query().Get("name"), data, contentType(r))
	if err != nil {
		s.writeUpstream(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, uploadResponse{URL: url})
}

// handleUploadArtifact handles
// POST /api/rooms/{room}/artifacts?part=&captured=&offset=&ext=.
func (s *Server) handleUploadArtifact(w http.ResponseWriter, r *http.Request) {
	const op = "api.upload_artifact"
	q := r.URL.Query()
	part := strings.TrimSpace(q.Get("part"))
	captured, err := strconv.ParseInt(q.Get("captured"), 10, 64)
	if part == "" || err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("part and captured are required")))
		return
	}
	offset, err := strconv.ParseInt(q.Get("offset"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, fmt.Errorf("invalid offset: %w", err)))
		return
	}
	ext := q.Get("ext")
	if ext == "" {
		ext = "wav"
	}
	data, ok := readUpload(w, r, op)
	if !ok {
		return
	}
	a, url, err := s.deps.UploadArtifact(r.Context(), mux.Vars(r)["room"], part, captured, offset, ext, data)
	if err != nil {
		s.writeUpstream(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, uploadResponse{URL: url, Artifact: &a})
}

func readUpload(w http.ResponseWriter, r *http.Request, op string) ([]byte, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUpload))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", WrapKind(op, ErrBadRequest, err))
		return nil, false
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("empty body")))
		return nil, false
	}
	return data, true
}

func contentType(r *http.Request) string {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
