package ws

import (
	"time"

	"github.com/roadsight-data/roadsight/internal/vision/pipeline"
)

// Message type tags used on both sockets.
const (
	MessageTypeRecords = "records"
	MessageTypeError   = "error"
)

// RecordsMessage carries one frame's records to session subscribers.
type RecordsMessage struct {
	Type       string            `json:"type"`
	SessionID  string            `json:"session_id"`
	FrameIndex int64             `json:"frame_index"`
	Timestamp  time.Time         `json:"timestamp"`
	Records    []pipeline.Record `json:"records"`
}

func newRecordsMessage(sessionID string, records []pipeline.Record) *RecordsMessage {
	return &RecordsMessage{
		Type:       MessageTypeRecords,
		SessionID:  sessionID,
		FrameIndex: records[0].FrameIndex,
		Timestamp:  time.Now(),
		Records:    records,
	}
}

// IngestReply answers one frame pushed on the ingest socket. Type is
// "records" on success and "error" when the frame was rejected.
type IngestReply struct {
	Type       string            `json:"type"`
	FrameIndex int64             `json:"frame_index"`
	Records    []pipeline.Record `json:"records,omitempty"`
	Error      string            `json:"error,omitempty"`
}
