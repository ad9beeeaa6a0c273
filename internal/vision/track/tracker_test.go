package track

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roadsight-data/roadsight/internal/vision"
)

// det builds a car detection whose bbox is centered at (x, y).
func det(x, y float64) vision.Detection {
	return vision.Detection{
		BBox:       vision.BBox{X1: x - 10, Y1: y - 10, X2: x + 10, Y2: y + 10},
		Class:      vision.ClassCar,
		Confidence: 0.9,
	}
}

func detClass(x, y float64, class vision.Class) vision.Detection {
	d := det(x, y)
	d.Class = class
	return d
}

func TestStepSpawnsMonotonicIDs(t *testing.T) {
	t.Parallel()

	tr := NewTracker(DefaultConfig())

	res := tr.Step(0, []vision.Detection{det(100, 100), det(500, 100)})
	assert.Equal(t, []int64{1, 2}, res.Spawned)
	assert.Len(t, res.Matched, 2)

	// Expire everything, then spawn again: IDs must not be reused.
	for f := int64(1); f <= int64(DefaultConfig().MaxMissedFrames)+1; f++ {
		res = tr.Step(f, nil)
	}
	require.Len(t, res.Expired, 2)
	assert.Empty(t, tr.LiveTracks())

	res = tr.Step(100, []vision.Detection{det(100, 100)})
	assert.Equal(t, []int64{3}, res.Spawned)
}

func TestStepMatchesWithinGate(t *testing.T) {
	t.Parallel()

	tr := NewTracker(Config{GateDistance: 50, MaxMissedFrames: 30, HistorySize: 10})
	tr.Step(0, []vision.Detection{det(100, 100)})

	// 30px away: inside the gate, same track.
	res := tr.Step(1, []vision.Detection{det(100, 130)})
	assert.Empty(t, res.Spawned)
	di, ok := res.Matched[1]
	require.True(t, ok)
	assert.Equal(t, 0, di)

	tk := tr.GetTrack(1)
	require.NotNil(t, tk)
	assert.Equal(t, int64(1), tk.LastSeenFrame)
	assert.Equal(t, 0, tk.Misses)
	assert.Equal(t, 2, tk.History.Size())

	// 60px away: outside the gate, spawns a second track.
	res = tr.Step(2, []vision.Detection{det(100, 190)})
	assert.Equal(t, []int64{2}, res.Spawned)
	_, matched := res.Matched[1]
	assert.False(t, matched)
}

func TestStepGateIsStrict(t *testing.T) {
	t.Parallel()

	tr := NewTracker(Config{GateDistance: 50, MaxMissedFrames: 30, HistorySize: 10})
	tr.Step(0, []vision.Detection{det(100, 100)})

	// Exactly at the gate distance: not a candidate.
	res := tr.Step(1, []vision.Detection{det(100, 150)})
	assert.Equal(t, []int64{2}, res.Spawned)
}

func TestStepGreedyNearestWins(t *testing.T) {
	t.Parallel()

	tr := NewTracker(Config{GateDistance: 50, MaxMissedFrames: 30, HistorySize: 10})
	tr.Step(0, []vision.Detection{det(100, 100), det(140, 100)})

	// Both detections are within the gate of both tracks. The greedy
	// sweep must take the two nearest pairs, not cross-assign.
	res := tr.Step(1, []vision.Detection{det(110, 100), det(150, 100)})
	assert.Empty(t, res.Spawned)
	assert.Equal(t, 0, res.Matched[1])
	assert.Equal(t, 1, res.Matched[2])
}

func TestStepTieBreakLowerTrackID(t *testing.T) {
	t.Parallel()

	tr := NewTracker(Config{GateDistance: 50, MaxMissedFrames: 30, HistorySize: 10})
	tr.Step(0, []vision.Detection{det(80, 100), det(120, 100)})

	// One detection equidistant (20px) from both tracks: track 1 wins,
	// track 2 records a miss.
	res := tr.Step(1, []vision.Detection{det(100, 100)})
	assert.Empty(t, res.Spawned)
	assert.Equal(t, 0, res.Matched[1])
	_, matched := res.Matched[2]
	assert.False(t, matched)
	assert.Equal(t, 1, tr.GetTrack(2).Misses)
}

func TestStepEquidistantDetectionsSpawnSecondTrack(t *testing.T) {
	t.Parallel()

	tr := NewTracker(Config{GateDistance: 50, MaxMissedFrames: 30, HistorySize: 10})
	tr.Step(0, []vision.Detection{det(100, 100)})

	// Two detections equidistant from track 1: one matches, the other
	// becomes a new track.
	res := tr.Step(1, []vision.Detection{det(80, 100), det(120, 100)})
	require.Len(t, res.Spawned, 1)
	assert.Equal(t, int64(2), res.Spawned[0])
	assert.Equal(t, 0, res.Matched[1]) // earlier detection wins the tie
	assert.Equal(t, 1, res.Matched[2])
}

func TestStepExpiryAfterMissBudget(t *testing.T) {
	t.Parallel()

	tr := NewTracker(Config{GateDistance: 50, MaxMissedFrames: 3, HistorySize: 10})
	tr.Step(0, []vision.Detection{det(100, 100)})

	// Misses 1..3 keep the track live.
	for f := int64(1); f <= 3; f++ {
		res := tr.Step(f, nil)
		assert.Empty(t, res.Expired, "frame %d", f)
		require.NotNil(t, tr.GetTrack(1))
		assert.Equal(t, int(f), tr.GetTrack(1).Misses)
	}

	// Miss 4 exceeds the budget: expired and removed, reported once.
	res := tr.Step(4, nil)
	require.Len(t, res.Expired, 1)
	assert.Equal(t, int64(1), res.Expired[0].ID)
	assert.Equal(t, TrackExpired, res.Expired[0].State)
	assert.Nil(t, tr.GetTrack(1))

	res = tr.Step(5, nil)
	assert.Empty(t, res.Expired)
}

func TestStepMatchResetsMissCounter(t *testing.T) {
	t.Parallel()

	tr := NewTracker(Config{GateDistance: 50, MaxMissedFrames: 3, HistorySize: 10})
	tr.Step(0, []vision.Detection{det(100, 100)})

	tr.Step(1, nil)
	tr.Step(2, nil)
	assert.Equal(t, 2, tr.GetTrack(1).Misses)

	tr.Step(3, []vision.Detection{det(105, 100)})
	assert.Equal(t, 0, tr.GetTrack(1).Misses)

	// The budget starts over after the reset.
	for f := int64(4); f <= 6; f++ {
		res := tr.Step(f, nil)
		assert.Empty(t, res.Expired)
	}
	res := tr.Step(7, nil)
	assert.Len(t, res.Expired, 1)
}

func TestStepClassIsSticky(t *testing.T) {
	t.Parallel()

	tr := NewTracker(DefaultConfig())
	tr.Step(0, []vision.Detection{detClass(100, 100, vision.ClassCar)})

	// The detector flickers to truck; the track keeps its first class.
	tr.Step(1, []vision.Detection{detClass(100, 110, vision.ClassTruck)})
	assert.Equal(t, vision.ClassCar, tr.GetTrack(1).Class)
}

func TestStepHistoryIsBounded(t *testing.T) {
	t.Parallel()

	tr := NewTracker(Config{GateDistance: 50, MaxMissedFrames: 30, HistorySize: 5})
	for f := int64(0); f < 12; f++ {
		tr.Step(f, []vision.Detection{det(100, 100+float64(f))})
	}

	tk := tr.GetTrack(1)
	require.NotNil(t, tk)
	assert.Equal(t, 5, tk.History.Size())

	all := tk.History.GetAll()
	assert.Equal(t, int64(7), all[0].FrameIndex)
	assert.Equal(t, int64(11), all[4].FrameIndex)
}

func TestStepCrossedTracksStillMatch(t *testing.T) {
	t.Parallel()

	tr := NewTracker(DefaultConfig())
	tr.Step(0, []vision.Detection{det(100, 100)})

	tk := tr.GetTrack(1)
	require.True(t, tk.MarkCrossed(floatPtr(30), vision.DirectionDown))

	// A crossed track keeps following its detections until it expires.
	res := tr.Step(1, []vision.Detection{det(100, 120)})
	assert.Empty(t, res.Spawned)
	assert.Equal(t, 0, res.Matched[1])
	assert.Equal(t, TrackCrossed, tr.GetTrack(1).State)
}

func TestStepUpdatesLastDetection(t *testing.T) {
	t.Parallel()

	tr := NewTracker(DefaultConfig())
	tr.Step(0, []vision.Detection{det(100, 100)})

	d := det(100, 120)
	d.Confidence = 0.75
	tr.Step(1, []vision.Detection{d})

	tk := tr.GetTrack(1)
	assert.Equal(t, d.BBox, tk.LastBBox)
	assert.InDelta(t, 0.75, tk.LastConfidence, 1e-9)

	// Two misses later the last detection is still reported.
	tr.Step(2, nil)
	tr.Step(3, nil)
	assert.Equal(t, d.BBox, tr.GetTrack(1).LastBBox)
}

func TestLiveTracksSortedByID(t *testing.T) {
	t.Parallel()

	tr := NewTracker(DefaultConfig())
	tr.Step(0, []vision.Detection{det(100, 100), det(500, 100), det(900, 100)})

	live := tr.LiveTracks()
	require.Len(t, live, 3)
	assert.Equal(t, int64(1), live[0].ID)
	assert.Equal(t, int64(2), live[1].ID)
	assert.Equal(t, int64(3), live[2].ID)

	total, active, crossed := tr.TrackCount()
	assert.Equal(t, 3, total)
	assert.Equal(t, 3, active)
	assert.Equal(t, 0, crossed)
}
