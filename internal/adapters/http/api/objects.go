package api

import (
	"net/http"
	"strconv"
	"strings"
)

// handleObject serves stored blobs at the URLs the store hands out.
func (s *Server) handleObject(w http.ResponseWriter, r *http.Request) {
	const op = "api.object"
	p := strings.TrimPrefix(r.URL.Path, "/objects/")
	if p == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	obj, err := s.deps.Object(r.Context(), p)
	if err != nil {
		s.writeUpstream(w, r, op, err)
		return
	}
	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(obj.Data)
}
