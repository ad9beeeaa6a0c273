package session

import (
	"sort"
	"sync"

	"github.com/roadsight-data/roadsight/internal/config"
	"github.com/roadsight-data/roadsight/internal/monitoring"
	"github.com/roadsight-data/roadsight/internal/vision/pipeline"
)

// Manager owns the live session registry. The persistence and publish
// sinks are shared by every session it creates.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	defaults *config.SessionConfig

	persist pipeline.PersistenceSink
	publish pipeline.PublishSink
}

// NewManager creates an empty registry. Either sink may be nil.
func NewManager(persist pipeline.PersistenceSink, publish pipeline.PublishSink) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		persist:  persist,
		publish:  publish,
	}
}

// SetDefaults installs a base config for sessions created from partial
// requests. Fields a request leaves nil are filled from the base, so
// site-wide calibration (camera scale, counting line) lives in one place.
func (m *Manager) SetDefaults(base *config.SessionConfig) {
	m.mu.Lock()
	m.defaults = base
	m.mu.Unlock()
}

// Create validates the config and registers a new session. A nil config
// runs on the manager defaults, or the compiled-in ones without any.
func (m *Manager) Create(cfg *config.SessionConfig) (*Session, error) {
	if cfg == nil {
		cfg = config.EmptySessionConfig()
	}
	m.mu.RLock()
	base := m.defaults
	m.mu.RUnlock()
	cfg = cfg.MergeDefaults(base)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := newSession(cfg, m.persist, m.publish)
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	monitoring.Logf("session %s created (%s line at %.0f, gate %.0fpx, max misses %d)",
		s.ID, cfg.GetROIOrientation(), cfg.GetROILine(),
		cfg.GetTrackingThreshold(), cfg.GetMaxMissedFrames())
	return s, nil
}

// Get returns a live session by ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close ends a session and removes it from the registry.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.Close()
	return nil
}

// CloseAll ends every live session. Used at shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// List returns summaries of the live sessions ordered by creation time.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Info())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
