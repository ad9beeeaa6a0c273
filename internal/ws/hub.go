// Package ws streams per-frame track records to WebSocket subscribers
// and accepts frame pushes from detector clients.
package ws

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/roadsight-data/roadsight/internal/monitoring"
	"github.com/roadsight-data/roadsight/internal/vision/pipeline"
)

// sendBuffer is the per-subscriber queue depth in frames. A subscriber
// that falls this far behind is dropped rather than allowed to stall the
// frame loop.
const sendBuffer = 64

// subscriber is one WebSocket client listening for a session's records.
type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// RecordHub fans each processed frame's records out to per-session
// subscribers. It implements pipeline.PublishSink, so a session manager
// can publish through it directly.
type RecordHub struct {
	mu sync.RWMutex
	// sessions maps session ID -> set of subscribers
	sessions map[string]map[*subscriber]bool
}

var _ pipeline.PublishSink = (*RecordHub)(nil)

// NewRecordHub creates an empty hub.
func NewRecordHub() *RecordHub {
	return &RecordHub{
		sessions: make(map[string]map[*subscriber]bool),
	}
}

// register adds a subscriber for a session.
func (h *RecordHub) register(sessionID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[*subscriber]bool)
	}
	h.sessions[sessionID][sub] = true
	monitoring.Logf("[ws] subscriber joined session %s (total: %d)", sessionID, len(h.sessions[sessionID]))
}

// unregister removes a subscriber and closes its queue. Safe to call
// more than once; only the call that removes the subscriber closes it.
func (h *RecordHub) unregister(sessionID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sessionID, sub)
}

func (h *RecordHub) removeLocked(sessionID string, sub *subscriber) {
	subs, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	if _, present := subs[sub]; !present {
		return
	}

	delete(subs, sub)
	close(sub.send)
	if len(subs) == 0 {
		delete(h.sessions, sessionID)
	}
	monitoring.Logf("[ws] subscriber left session %s", sessionID)
}

// HasSubscribers reports whether any client listens to the session.
func (h *RecordHub) HasSubscribers(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID]) > 0
}

// SubscriberCount returns the total number of connected subscribers.
func (h *RecordHub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, subs := range h.sessions {
		count += len(subs)
	}
	return count
}

// PublishRecords implements pipeline.PublishSink. Every record in one
// call belongs to the same frame of the same session.
func (h *RecordHub) PublishRecords(records []pipeline.Record) {
	if len(records) == 0 {
		return
	}
	sessionID := records[0].SessionID
	if !h.HasSubscribers(sessionID) {
		return
	}

	data, err := json.Marshal(newRecordsMessage(sessionID, records))
	if err != nil {
		monitoring.Logf("[ws] failed to marshal records for session %s: %v", sessionID, err)
		return
	}
	h.broadcast(sessionID, data)
}

// broadcast queues data for every subscriber of the session. Queues are
// only written under the lock that guards their close, so a send can
// never hit a closed channel.
func (h *RecordHub) broadcast(sessionID string, data []byte) {
	dropped := 0

	h.mu.Lock()
	for sub := range h.sessions[sessionID] {
		select {
		case sub.send <- data:
		default:
			h.removeLocked(sessionID, sub)
			dropped++
		}
	}
	h.mu.Unlock()

	if dropped > 0 {
		monitoring.Logf("[ws] dropped %d slow subscribers for session %s", dropped, sessionID)
	}
}
