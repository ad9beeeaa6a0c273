package track

import (
	"sort"
	"sync"

	"github.com/roadsight-data/roadsight/internal/vision"
)

// Config holds configuration parameters for the tracker.
type Config struct {
	GateDistance    float64 // Maximum centroid distance in pixels for a match
	MaxMissedFrames int     // Consecutive misses tolerated before expiry
	HistorySize     int     // Centroid ring capacity per track
}

// DefaultConfig returns default tracker configuration.
func DefaultConfig() Config {
	return Config{
		GateDistance:    50.0,
		MaxMissedFrames: 30,
		HistorySize:     DefaultHistorySize,
	}
}

// Tracker manages vehicle tracks with greedy gated nearest-centroid
// association. Track IDs increase monotonically and are never reused.
type Tracker struct {
	Tracks      map[int64]*Track
	NextTrackID int64
	Config      Config

	mu sync.RWMutex
}

// NewTracker creates a new tracker with the specified configuration.
func NewTracker(config Config) *Tracker {
	return &Tracker{
		Tracks:      make(map[int64]*Track),
		NextTrackID: 1,
		Config:      config,
	}
}

// StepResult reports what changed during one tracker step.
type StepResult struct {
	// Matched maps track ID to the index of its detection this frame.
	// Freshly spawned tracks are included.
	Matched map[int64]int
	// Spawned lists track IDs created this frame, in detection order.
	Spawned []int64
	// Expired lists tracks that ran out of the miss budget this frame.
	// They are already removed from the live set; callers get exactly
	// one chance to report their final values.
	Expired []*Track
}

// Step processes one frame of detections and updates the live track set.
// Detections must already be validated and confidence-filtered.
func (t *Tracker) Step(frameIndex int64, detections []vision.Detection) StepResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	res := StepResult{Matched: make(map[int64]int)}

	// Step 1: Associate detections to live tracks by ascending distance
	assignments := t.associate(detections)

	// Step 2: Update matched tracks
	for di, trackID := range assignments {
		if trackID == 0 {
			continue
		}
		tk := t.Tracks[trackID]
		d := detections[di]
		tk.History.Add(Observation{FrameIndex: frameIndex, Centroid: d.Centroid()})
		tk.LastSeenFrame = frameIndex
		tk.Misses = 0
		tk.LastBBox = d.BBox
		tk.LastConfidence = d.Confidence
		res.Matched[trackID] = di
	}

	// Step 3: Age unmatched tracks, expire the ones out of budget
	for _, id := range t.sortedTrackIDs() {
		if _, ok := res.Matched[id]; ok {
			continue
		}
		tk := t.Tracks[id]
		tk.Misses++
		if tk.Misses > t.Config.MaxMissedFrames {
			tk.State = TrackExpired
			res.Expired = append(res.Expired, tk)
			delete(t.Tracks, id)
		}
	}

	// Step 4: Spawn tracks for unmatched detections
	for di, d := range detections {
		if assignments[di] != 0 {
			continue
		}
		tk := t.initTrack(d, frameIndex)
		res.Spawned = append(res.Spawned, tk.ID)
		res.Matched[tk.ID] = di
	}

	return res
}

// associate assigns detections to tracks greedily. Candidate pairs are
// every (track, detection) pair with centroid distance strictly below
// the gate, swept in ascending distance order with ties going to the
// lower track ID. Returns a detection-indexed slice of track IDs, zero
// for unassigned.
func (t *Tracker) associate(detections []vision.Detection) []int64 {
	assignments := make([]int64, len(detections))
	if len(detections) == 0 || len(t.Tracks) == 0 {
		return assignments
	}

	type candidate struct {
		trackID int64
		det     int
		dist    float64
	}

	var candidates []candidate
	for _, id := range t.sortedTrackIDs() {
		tk := t.Tracks[id]
		last, ok := tk.LastCentroid()
		if !ok {
			continue
		}
		for di, d := range detections {
			dist := last.DistanceTo(d.Centroid())
			if dist < t.Config.GateDistance {
				candidates = append(candidates, candidate{trackID: id, det: di, dist: dist})
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		if candidates[i].trackID != candidates[j].trackID {
			return candidates[i].trackID < candidates[j].trackID
		}
		return candidates[i].det < candidates[j].det
	})

	trackUsed := make(map[int64]bool, len(t.Tracks))
	detUsed := make([]bool, len(detections))
	for _, c := range candidates {
		if trackUsed[c.trackID] || detUsed[c.det] {
			continue
		}
		trackUsed[c.trackID] = true
		detUsed[c.det] = true
		assignments[c.det] = c.trackID
	}

	return assignments
}

// initTrack creates a new track from an unmatched detection.
func (t *Tracker) initTrack(d vision.Detection, frameIndex int64) *Track {
	id := t.NextTrackID
	t.NextTrackID++

	tk := &Track{
		ID:            id,
		Class:         d.Class,
		State:         TrackActive,
		CreatedFrame:  frameIndex,
		LastSeenFrame: frameIndex,
		History:       NewHistory(t.Config.HistorySize),

		LastBBox:       d.BBox,
		LastConfidence: d.Confidence,

		plateDistance: -1,
	}
	tk.History.Add(Observation{FrameIndex: frameIndex, Centroid: d.Centroid()})

	t.Tracks[id] = tk
	return tk
}

// sortedTrackIDs returns live track IDs in ascending order so map
// iteration never affects association or expiry order.
func (t *Tracker) sortedTrackIDs() []int64 {
	ids := make([]int64, 0, len(t.Tracks))
	for id := range t.Tracks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// LiveTracks returns the live tracks ordered by ascending ID.
func (t *Tracker) LiveTracks() []*Track {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*Track, 0, len(t.Tracks))
	for _, id := range t.sortedTrackIDs() {
		out = append(out, t.Tracks[id])
	}
	return out
}

// GetTrack returns a live track by ID, or nil if it is not live.
func (t *Tracker) GetTrack(id int64) *Track {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Tracks[id]
}

// TrackCount returns counts of live tracks by state.
func (t *Tracker) TrackCount() (total, active, crossed int) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, tk := range t.Tracks {
		total++
		switch tk.State {
		case TrackActive:
			active++
		case TrackCrossed:
			crossed++
		}
	}
	return total, active, crossed
}
