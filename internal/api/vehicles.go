package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/roadsight-data/roadsight/internal/db"
	"github.com/roadsight-data/roadsight/internal/units"
)

// listVehicles returns stored crossings, newest first. skip and limit
// page through them; session_id, class, and direction narrow the set.
func (s *Server) listVehicles(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	opts := db.ListOptions{
		SessionID: r.URL.Query().Get("session_id"),
		Class:     r.URL.Query().Get("class"),
		Direction: r.URL.Query().Get("direction"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "invalid 'limit' parameter")
			return
		}
		opts.Limit = parsed
	}
	if v := r.URL.Query().Get("skip"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			s.writeJSONError(w, http.StatusBadRequest, "invalid 'skip' parameter")
			return
		}
		opts.Offset = parsed
	}

	records, err := s.store.ListRecords(r.Context(), opts)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to retrieve vehicles: %v", err))
		return
	}
	if records == nil {
		records = []db.VehicleRecord{}
	}
	if err := json.NewEncoder(w).Encode(records); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "failed to write vehicles")
	}
}

// handleVehicleByID routes /api/vehicles/{id}.
func (s *Server) handleVehicleByID(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	idStr := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/api/vehicles/"))
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id < 1 {
		s.writeJSONError(w, http.StatusBadRequest, "invalid vehicle id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.showVehicle(w, r, id)
	case http.MethodDelete:
		s.deleteVehicle(w, r, id)
	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) showVehicle(w http.ResponseWriter, r *http.Request, id int64) {
	rec, err := s.store.GetRecord(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		s.writeJSONError(w, http.StatusNotFound, "vehicle not found")
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to retrieve vehicle: %v", err))
		return
	}
	json.NewEncoder(w).Encode(rec)
}

func (s *Server) deleteVehicle(w http.ResponseWriter, r *http.Request, id int64) {
	err := s.store.DeleteRecord(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		s.writeJSONError(w, http.StatusNotFound, "vehicle not found")
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to delete vehicle: %v", err))
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{"status": "deleted", "id": id})
}

// showStats returns totals and per-class, per-color, and per-direction
// distributions, optionally narrowed to one session.
func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	stats, err := s.store.Stats(r.Context(), r.URL.Query().Get("session_id"))
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to retrieve stats: %v", err))
		return
	}
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "failed to write stats")
	}
}

// speedStatsResponse reshapes the stored km/h rollup into the requested
// units, so the field names stay unit-neutral.
type speedStatsResponse struct {
	Units string  `json:"units"`
	Count int64   `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P85   float64 `json:"p85"`
	P98   float64 `json:"p98"`
}

func (s *Server) showSpeedStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	target := r.URL.Query().Get("units")
	if target == "" {
		target = units.KMPH
	}
	if !units.IsValid(target) {
		s.writeJSONError(w, http.StatusBadRequest,
			fmt.Sprintf("invalid 'units' parameter, valid units are: %s", units.GetValidUnitsString()))
		return
	}

	rollup, err := s.store.SpeedRollup(r.Context(), r.URL.Query().Get("session_id"))
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to retrieve speed stats: %v", err))
		return
	}

	resp := speedStatsResponse{
		Units: target,
		Count: rollup.Count,
		Min:   units.ConvertSpeed(rollup.MinKMH, target),
		Max:   units.ConvertSpeed(rollup.MaxKMH, target),
		Avg:   units.ConvertSpeed(rollup.AvgKMH, target),
		P50:   units.ConvertSpeed(rollup.P50KMH, target),
		P85:   units.ConvertSpeed(rollup.P85KMH, target),
		P98:   units.ConvertSpeed(rollup.P98KMH, target),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "failed to write speed stats")
	}
}

// clearData removes stored crossings, optionally narrowed to one
// session. Destructive, so it sits behind the admin token when one is
// configured.
func (s *Server) clearData(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodDelete {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.authorized(r) {
		s.writeJSONError(w, http.StatusUnauthorized, "admin token required")
		return
	}

	deleted, err := s.store.ClearRecords(r.Context(), r.URL.Query().Get("session_id"))
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to clear records: %v", err))
		return
	}
	json.NewEncoder(w).Encode(map[string]int64{"deleted": deleted})
}
