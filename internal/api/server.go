// Package api exposes the HTTP surface of the service: session
// management, synchronous frame ingest, stored vehicle queries, stats,
// and reports.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/roadsight-data/roadsight/internal/db"
	"github.com/roadsight-data/roadsight/internal/monitoring"
	"github.com/roadsight-data/roadsight/internal/session"
	"github.com/roadsight-data/roadsight/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	sessions   *session.Manager
	store      *db.DB
	adminToken string
}

// NewServer wires the API against a session manager and record store.
// An empty adminToken leaves the destructive endpoints open, matching a
// single-operator deployment on a trusted network.
func NewServer(sessions *session.Manager, store *db.DB, adminToken string) *Server {
	return &Server{
		sessions:   sessions,
		store:      store,
		adminToken: adminToken,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/sessions/", s.handleSessionByID)
	mux.HandleFunc("/api/vehicles", s.listVehicles)
	mux.HandleFunc("/api/vehicles/", s.handleVehicleByID)
	mux.HandleFunc("/api/stats", s.showStats)
	mux.HandleFunc("/api/stats/speeds", s.showSpeedStats)
	mux.HandleFunc("/api/data", s.clearData)
	mux.HandleFunc("/api/reports/speeds", s.speedReport)
	mux.HandleFunc("/healthz", s.healthz)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// authorized reports whether the request may hit a destructive endpoint.
func (s *Server) authorized(r *http.Request) bool {
	if s.adminToken == "" {
		return true
	}
	return bearerMatches(s.adminToken, r)
}

func bearerMatches(token string, r *http.Request) bool {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(parts[1]), []byte(token)) == 1
}

// RequireToken wraps next with a bearer token check. The server mounts
// the SQL console and backup routes behind this.
func RequireToken(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !bearerMatches(token, r) {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "admin token required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   "ok",
		"version":  version.Version,
		"sessions": s.sessions.Count(),
	})
}
