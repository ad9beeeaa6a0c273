package track

import (
	"github.com/roadsight-data/roadsight/internal/vision"
)

// DefaultHistorySize is the centroid ring capacity used when none is
// configured.
const DefaultHistorySize = 30

// Observation is one recorded centroid with the frame it was seen in.
type Observation struct {
	FrameIndex int64
	Centroid   vision.Point
}

// History maintains a bounded ring of a track's recorded centroids.
// Adding beyond capacity overwrites the oldest entry.
type History struct {
	obs      []Observation
	capacity int
	head     int // Points to next write position
	size     int // Current number of observations stored
}

// NewHistory creates a centroid history with the specified capacity.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = DefaultHistorySize
	}
	return &History{
		obs:      make([]Observation, capacity),
		capacity: capacity,
		head:     0,
		size:     0,
	}
}

// Add stores a new observation, overwriting the oldest if at capacity.
func (h *History) Add(o Observation) {
	h.obs[h.head] = o
	h.head = (h.head + 1) % h.capacity
	if h.size < h.capacity {
		h.size++
	}
}

// Previous returns the observation N steps back from the most recent.
// Previous(1) returns the most recently added observation, Previous(2)
// the one before that. The second return is false if the requested
// observation does not exist.
func (h *History) Previous(n int) (Observation, bool) {
	if n < 1 || n > h.size {
		return Observation{}, false
	}

	idx := (h.head - n + h.capacity) % h.capacity
	return h.obs[idx], true
}

// Size returns the current number of observations in history.
func (h *History) Size() int {
	return h.size
}

// Capacity returns the maximum number of observations that can be stored.
func (h *History) Capacity() int {
	return h.capacity
}

// GetAll returns all observations from oldest to newest.
func (h *History) GetAll() []Observation {
	if h.size == 0 {
		return nil
	}

	result := make([]Observation, h.size)
	for i := 0; i < h.size; i++ {
		idx := (h.head - h.size + i + h.capacity) % h.capacity
		result[i] = h.obs[idx]
	}
	return result
}
