package pipeline

import (
	"github.com/roadsight-data/roadsight/internal/vision"
	"github.com/roadsight-data/roadsight/internal/vision/track"
)

// FrameInput is one frame of external detector output. Width and Height
// are optional; zero skips the in-frame bound check on detections.
type FrameInput struct {
	Index      int64              `json:"frame_index"`
	Width      float64            `json:"width,omitempty"`
	Height     float64            `json:"height,omitempty"`
	Detections []vision.Detection `json:"detections"`
}

// DecodeCrops turns wire crop payloads into images for every detection.
// Undecodable payloads clear the crop and are counted, never fatal; color
// stays unread for those detections.
func (in *FrameInput) DecodeCrops() (bad int) {
	for i := range in.Detections {
		if err := in.Detections[i].DecodeCrop(); err != nil {
			in.Detections[i].Crop = nil
			bad++
		}
	}
	return bad
}

// Record is an immutable snapshot of one track at one frame. A frame
// yields one record per live track plus a final record for every track
// that expired on that frame. The same shape is stored at crossings and
// pushed to live subscribers.
type Record struct {
	SessionID  string      `json:"session_id"`
	FrameIndex int64       `json:"frame_index"`
	TrackID    int64       `json:"track_id"`
	State      string      `json:"state"`
	Class      string      `json:"class"`
	Size       string      `json:"size"`
	BBox       vision.BBox `json:"bbox"`
	Confidence float64     `json:"confidence"`
	// Matched reports whether the track was updated by a detection on
	// this frame, as opposed to coasting on misses.
	Matched bool `json:"matched"`

	Color           string   `json:"color,omitempty"`
	SpeedKMH        *float64 `json:"speed_kmh,omitempty"`
	Direction       string   `json:"direction,omitempty"`
	PlateText       string   `json:"plate_text,omitempty"`
	PlateConfidence *float64 `json:"plate_confidence,omitempty"`
}

// newRecord snapshots a track's current values. Pointer fields are
// copied so later track updates can never reach an already published
// record.
func newRecord(sessionID string, frameIndex int64, tk *track.Track, matched bool) Record {
	r := Record{
		SessionID:  sessionID,
		FrameIndex: frameIndex,
		TrackID:    tk.ID,
		State:      string(tk.State),
		Class:      string(tk.Class),
		Size:       string(vision.SizeFromArea(tk.LastBBox.Area())),
		BBox:       tk.LastBBox,
		Confidence: tk.LastConfidence,
		Matched:    matched,
		Color:      tk.Color,
		Direction:  string(tk.Direction),
		PlateText:  tk.PlateText,
	}
	if tk.SpeedKMH != nil {
		v := *tk.SpeedKMH
		r.SpeedKMH = &v
	}
	if tk.PlateConfidence != nil {
		v := *tk.PlateConfidence
		r.PlateConfidence = &v
	}
	return r
}
