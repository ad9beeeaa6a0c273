package kinematics

import (
	"math"

	"github.com/roadsight-data/roadsight/internal/vision"
	"github.com/roadsight-data/roadsight/internal/vision/track"
)

// Params holds the calibration used for crossing detection and speed
// estimation. All values are immutable for a session's lifetime.
type Params struct {
	PixelsPerMeter float64            // Pixels per real-world meter at the counting line
	FPS            float64            // Frames per second of the source video
	ROILine        float64            // Counting line coordinate (y or x, per orientation)
	Orientation    vision.Orientation // Axis the counting line spans
}

// Estimate is the one-shot result computed at a counting-line crossing.
// SpeedKMH is nil on a degenerate crossing (zero displacement or zero
// elapsed time) so the caller never divides by zero.
type Estimate struct {
	SpeedKMH  *float64
	Direction vision.Direction
}

// Crossed reports whether the move from prev to curr passes the counting
// line. Landing exactly on the line counts as a crossing; starting on it
// does not.
func Crossed(prev, curr vision.Point, p Params) bool {
	a, b := prev.Y, curr.Y
	if p.Orientation == vision.OrientationVertical {
		a, b = prev.X, curr.X
	}
	return (a < p.ROILine && b >= p.ROILine) || (a > p.ROILine && b <= p.ROILine)
}

// EstimateCrossing computes speed and direction from the two bracketing
// observations. The observations are the consecutive recorded history
// entries around the crossing, so their frame gap can exceed one when
// the track coasted through missed frames.
func EstimateCrossing(prev, curr track.Observation, p Params) Estimate {
	dx := curr.Centroid.X - prev.Centroid.X
	dy := curr.Centroid.Y - prev.Centroid.Y

	est := Estimate{Direction: dominantDirection(dx, dy)}

	pixels := math.Hypot(dx, dy)
	frames := curr.FrameIndex - prev.FrameIndex
	if pixels == 0 || frames <= 0 || p.FPS <= 0 || p.PixelsPerMeter <= 0 {
		return est
	}

	meters := pixels / p.PixelsPerMeter
	seconds := float64(frames) / p.FPS
	speed := meters / seconds * 3.6
	est.SpeedKMH = &speed
	return est
}

// Apply evaluates a just-updated track against the counting line and
// freezes its estimates on the first crossing. Only TrackActive tracks
// are tested, so a crossing fires at most once per track. Returns true
// when the track crossed this step.
func Apply(tk *track.Track, p Params) bool {
	if tk.State != track.TrackActive {
		return false
	}
	curr, ok := tk.History.Previous(1)
	if !ok {
		return false
	}
	prev, ok := tk.History.Previous(2)
	if !ok {
		return false
	}
	if !Crossed(prev.Centroid, curr.Centroid, p) {
		return false
	}
	est := EstimateCrossing(prev, curr, p)
	return tk.MarkCrossed(est.SpeedKMH, est.Direction)
}

// dominantDirection maps a displacement to its dominant axis. The
// vertical axis wins exact diagonal ties.
func dominantDirection(dx, dy float64) vision.Direction {
	if math.Abs(dy) >= math.Abs(dx) {
		if dy > 0 {
			return vision.DirectionDown
		}
		return vision.DirectionUp
	}
	if dx > 0 {
		return vision.DirectionRight
	}
	return vision.DirectionLeft
}
