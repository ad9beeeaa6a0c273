package track

import (
	"github.com/roadsight-data/roadsight/internal/vision"
)

// TrackState represents the lifecycle state of a track.
type TrackState string

const (
	TrackActive  TrackState = "active"  // Live track, not yet past the counting line
	TrackCrossed TrackState = "crossed" // Past the counting line, speed and direction frozen
	TrackExpired TrackState = "expired" // Out of the miss budget, dropped after one final report
)

// Track represents a single vehicle followed across frames.
type Track struct {
	// Identity
	ID    int64
	Class vision.Class // Sticky from the first detection, never re-voted
	State TrackState

	// Lifecycle counters
	CreatedFrame  int64
	LastSeenFrame int64
	Misses        int // Consecutive missed associations

	// Bounded centroid history, oldest evicted first
	History *History

	// Most recent matched detection. Kept so missed and expiring tracks
	// can still be reported with their last known geometry.
	LastBBox       vision.BBox
	LastConfidence float64

	// One-shot estimates, written when the track crosses the counting
	// line and immutable afterwards. SpeedKMH stays nil on a degenerate
	// crossing (zero displacement or zero elapsed time).
	SpeedKMH  *float64
	Direction vision.Direction

	// Color is frozen after the first successful classification.
	Color string

	// Best plate reading so far. Replaced only by strictly better ones.
	PlateText       string
	PlateConfidence *float64

	// plateDistance is the match distance of the stored reading, used to
	// rank readings that carry no confidence.
	plateDistance int
}

// LastCentroid returns the most recently recorded centroid.
func (tk *Track) LastCentroid() (vision.Point, bool) {
	o, ok := tk.History.Previous(1)
	if !ok {
		return vision.Point{}, false
	}
	return o.Centroid, true
}

// MarkCrossed records the one-shot crossing estimates and advances the
// track to TrackCrossed. It returns false if the track already crossed
// or expired; the stored estimates are never overwritten.
func (tk *Track) MarkCrossed(speedKMH *float64, dir vision.Direction) bool {
	if tk.State != TrackActive {
		return false
	}
	tk.State = TrackCrossed
	tk.SpeedKMH = speedKMH
	tk.Direction = dir
	return true
}

// SetColor freezes the track color on the first successful
// classification. Later calls are ignored.
func (tk *Track) SetColor(color string) bool {
	if color == "" || tk.Color != "" {
		return false
	}
	tk.Color = color
	return true
}

// ApplyPlate applies the improve-only plate rule: a new reading replaces
// the stored one only if it is strictly better. When both readings carry
// a confidence the higher confidence wins; otherwise the lower match
// distance wins.
func (tk *Track) ApplyPlate(text string, confidence *float64, distance int) bool {
	if text == "" {
		return false
	}
	if tk.PlateText != "" {
		if confidence != nil && tk.PlateConfidence != nil {
			if *confidence <= *tk.PlateConfidence {
				return false
			}
		} else if distance >= tk.plateDistance {
			return false
		}
	}
	tk.PlateText = text
	tk.PlateConfidence = confidence
	tk.plateDistance = distance
	return true
}
