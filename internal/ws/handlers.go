package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roadsight-data/roadsight/internal/monitoring"
	"github.com/roadsight-data/roadsight/internal/session"
	"github.com/roadsight-data/roadsight/internal/vision/pipeline"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second

	// maxFrameBytes bounds one ingest message. Crops ride along as
	// base64, so a frame can run to several megabytes.
	maxFrameBytes = 8 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 64 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins; deployments front this with their own
		// origin policy.
		return true
	},
}

// SubscribeHandler upgrades GET /ws/records?session_id= and streams each
// processed frame's records until the client goes away.
type SubscribeHandler struct {
	hub      *RecordHub
	sessions *session.Manager
}

// NewSubscribeHandler creates a handler backed by the given hub and
// session manager.
func NewSubscribeHandler(hub *RecordHub, sessions *session.Manager) *SubscribeHandler {
	return &SubscribeHandler{hub: hub, sessions: sessions}
}

func (h *SubscribeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id required", http.StatusBadRequest)
		return
	}
	if _, err := h.sessions.Get(sessionID); err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("[ws] upgrade failed: %v", err)
		return
	}

	sub := &subscriber{conn: conn, send: make(chan []byte, sendBuffer)}
	h.hub.register(sessionID, sub)

	go h.writePump(sub)
	go h.readPump(sessionID, sub)
}

// writePump is the only writer on the connection. It drains the queue
// and keeps the client alive with pings until the queue closes.
func (h *SubscribeHandler) writePump(sub *subscriber) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		sub.conn.Close()
	}()

	for {
		select {
		case data, ok := <-sub.send:
			sub.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				sub.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			sub.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump exists to notice disconnects; subscribers are not expected to
// send anything.
func (h *SubscribeHandler) readPump(sessionID string, sub *subscriber) {
	defer h.hub.unregister(sessionID, sub)

	sub.conn.SetReadLimit(512)
	sub.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				monitoring.Logf("[ws] subscriber read failed for session %s: %v", sessionID, err)
			}
			return
		}
	}
}

// IngestHandler upgrades GET /ws/ingest?session_id= for a detector
// client that streams frame payloads. Each frame is run through the
// session and the resulting records (or the rejection) are written back
// on the same connection, so the pusher sees every outcome in order.
type IngestHandler struct {
	sessions *session.Manager
}

// NewIngestHandler creates a handler backed by the given session
// manager.
func NewIngestHandler(sessions *session.Manager) *IngestHandler {
	return &IngestHandler{sessions: sessions}
}

func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id required", http.StatusBadRequest)
		return
	}
	s, err := h.sessions.Get(sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("[ws] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxFrameBytes)
	logf := monitoring.Prefixed("ws ingest " + sessionID)
	logf("connected from %s", r.RemoteAddr)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logf("read failed: %v", err)
			}
			return
		}

		reply, fatal := h.applyFrame(r.Context(), s, data, logf)

		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(reply); err != nil {
			logf("write failed: %v", err)
			return
		}
		if fatal {
			return
		}
	}
}

// applyFrame decodes and processes one pushed frame. fatal is true when
// the connection has no reason to stay open, i.e. the session is gone.
func (h *IngestHandler) applyFrame(ctx context.Context, s *session.Session, data []byte, logf func(string, ...interface{})) (IngestReply, bool) {
	var in pipeline.FrameInput
	if err := json.Unmarshal(data, &in); err != nil {
		return IngestReply{Type: MessageTypeError, Error: "malformed frame: " + err.Error()}, false
	}

	if bad := in.DecodeCrops(); bad > 0 {
		logf("frame %d: %d undecodable crops", in.Index, bad)
	}

	records, err := s.ProcessFrame(ctx, in)
	if err != nil {
		reply := IngestReply{Type: MessageTypeError, FrameIndex: in.Index, Error: err.Error()}
		return reply, errors.Is(err, session.ErrSessionClosed)
	}
	return IngestReply{Type: MessageTypeRecords, FrameIndex: in.Index, Records: records}, false
}
