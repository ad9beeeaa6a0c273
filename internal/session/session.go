package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roadsight-data/roadsight/internal/config"
	"github.com/roadsight-data/roadsight/internal/monitoring"
	"github.com/roadsight-data/roadsight/internal/vision/pipeline"
)

// Session failures surfaced to the API layer.
var (
	ErrSessionNotFound = errors.New("session: not found")
	ErrSessionClosed   = errors.New("session: closed")
)

// Session binds one video feed's pipeline to a stable ID. Frame
// submission is serialized; concurrent submitters queue on the session
// mutex rather than interleaving frames.
type Session struct {
	ID        string
	CreatedAt time.Time

	cfg  *config.SessionConfig
	pipe *pipeline.Pipeline
	logf func(format string, v ...interface{})

	mu     sync.Mutex
	closed bool
}

func newSession(cfg *config.SessionConfig, persist pipeline.PersistenceSink, publish pipeline.PublishSink) *Session {
	id := uuid.NewString()
	return &Session{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		cfg:       cfg,
		pipe:      pipeline.New(id, cfg, persist, publish),
		logf:      monitoring.Prefixed("session " + id),
	}
}

// ProcessFrame forwards one frame to the session's pipeline. Frames for
// a closed session are rejected with ErrSessionClosed.
func (s *Session) ProcessFrame(ctx context.Context, in pipeline.FrameInput) ([]pipeline.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	return s.pipe.ProcessFrame(ctx, in)
}

// Close marks the session closed. Live tracks are discarded without a
// final record; only rows already stored at crossings survive. Close is
// idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	c := s.pipe.Counters()
	total, _, _ := s.pipe.TrackCounts()
	s.logf("closed after %d frames: %d crossings, %d live tracks discarded",
		c.FramesProcessed, c.Crossings, total)
}

// Closed reports whether Close has run.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Config returns the session's configuration. It is immutable after
// creation.
func (s *Session) Config() *config.SessionConfig { return s.cfg }

// Snapshot returns records for the live tracks as of the last processed
// frame.
func (s *Session) Snapshot() []pipeline.Record { return s.pipe.Snapshot() }

// Counters returns the pipeline's lifetime counters.
func (s *Session) Counters() pipeline.Counters { return s.pipe.Counters() }

// LastFrame returns the last processed frame index, -1 before the
// first frame.
func (s *Session) LastFrame() int64 { return s.pipe.LastFrame() }

// Info is the API-facing session summary.
type Info struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	LastFrame     int64     `json:"last_frame"`
	LiveTracks    int       `json:"live_tracks"`
	ActiveTracks  int       `json:"active_tracks"`
	CrossedTracks int       `json:"crossed_tracks"`
}

// Info returns the session summary used by the list and detail
// endpoints.
func (s *Session) Info() Info {
	total, active, crossed := s.pipe.TrackCounts()
	return Info{
		ID:            s.ID,
		CreatedAt:     s.CreatedAt,
		LastFrame:     s.pipe.LastFrame(),
		LiveTracks:    total,
		ActiveTracks:  active,
		CrossedTracks: crossed,
	}
}
