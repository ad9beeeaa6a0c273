package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/roadsight-data/roadsight/internal/config"
	"github.com/roadsight-data/roadsight/internal/monitoring"
	"github.com/roadsight-data/roadsight/internal/session"
	"github.com/roadsight-data/roadsight/internal/vision/pipeline"
)

// handleSessions serves the session collection: list and create.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		s.listSessions(w, r)
	case http.MethodPost:
		s.createSession(w, r)
	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	infos := s.sessions.List()
	if infos == nil {
		infos = []session.Info{}
	}
	if err := json.NewEncoder(w).Encode(infos); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "failed to write sessions")
	}
}

// createSession starts a session from the posted tuning document. An
// empty body starts one on the compiled-in defaults.
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	cfg := config.EmptySessionConfig()
	if err := json.NewDecoder(r.Body).Decode(cfg); err != nil && err != io.EOF {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid session config: %v", err))
		return
	}

	sess, err := s.sessions.Create(cfg)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid session config: %v", err))
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"session_id": sess.ID})
}

// handleSessionByID routes /api/sessions/{id} and
// /api/sessions/{id}/frames.
func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/sessions/"), "/")
	id := strings.TrimSpace(parts[0])
	if id == "" {
		s.writeJSONError(w, http.StatusBadRequest, "session id is required")
		return
	}

	if len(parts) == 2 && parts[1] == "frames" {
		if r.Method != http.MethodPost {
			s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.processFrame(w, r, id)
		return
	}
	if len(parts) > 1 {
		s.writeJSONError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.showSession(w, r, id)
	case http.MethodDelete:
		s.closeSession(w, r, id)
	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) showSession(w http.ResponseWriter, r *http.Request, id string) {
	sess, err := s.sessions.Get(id)
	if err != nil {
		s.writeJSONError(w, http.StatusNotFound, "session not found")
		return
	}
	if err := json.NewEncoder(w).Encode(sess.Info()); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "failed to write session")
	}
}

func (s *Server) closeSession(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.sessions.Close(id); err != nil {
		s.writeJSONError(w, http.StatusNotFound, "session not found")
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "closed", "session_id": id})
}

// processFrame applies one frame synchronously and returns its records.
func (s *Server) processFrame(w http.ResponseWriter, r *http.Request, id string) {
	sess, err := s.sessions.Get(id)
	if err != nil {
		s.writeJSONError(w, http.StatusNotFound, "session not found")
		return
	}

	var in pipeline.FrameInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid frame: %v", err))
		return
	}
	if bad := in.DecodeCrops(); bad > 0 {
		monitoring.Logf("[api] session %s frame %d: %d undecodable crops", id, in.Index, bad)
	}

	records, err := sess.ProcessFrame(r.Context(), in)
	switch {
	case errors.Is(err, pipeline.ErrStaleFrame):
		s.writeJSONError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, session.ErrSessionClosed):
		s.writeJSONError(w, http.StatusGone, err.Error())
		return
	case err != nil:
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to process frame: %v", err))
		return
	}

	if records == nil {
		records = []pipeline.Record{}
	}
	if err := json.NewEncoder(w).Encode(records); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "failed to write records")
	}
}
