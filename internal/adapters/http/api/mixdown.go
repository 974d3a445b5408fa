package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/okian/chorus/internal/domain/mixdown"
)

// handleTakes lists a room's takes, newest first.
func (s *Server) handleTakes(w http.ResponseWriter, r *http.Request) {
	const op = "api.takes"
	takes, err := s.deps.Takes(r.Context(), mux.Vars(r)["room"])
	if err != nil {
		s.writeUpstream(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, takes)
}

// handleMixdown handles POST /api/rooms/{room}/takes/{take}/mixdown. The
// optional body is the mixer Settings.
func (s *Server) handleMixdown(w http.ResponseWriter, r *http.Request) {
	const op = "api.mixdown"
	vars := mux.Vars(r)
	take, err := strconv.ParseInt(vars["take"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	var settings mixdown.Settings
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&settings); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	st, err := s.deps.EnqueueMixdown(r.Context(), vars["room"], take, settings)
	if err != nil {
		s.writeUpstream(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusAccepted, st)
}

// handleJob handles GET /api/jobs/{id}.
func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	st, ok := s.deps.Job(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", NewKind("api.job", ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, st)
}
