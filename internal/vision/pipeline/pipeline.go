package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"reflect"
	"sort"
	"sync"

	"github.com/roadsight-data/roadsight/internal/config"
	"github.com/roadsight-data/roadsight/internal/vision"
	"github.com/roadsight-data/roadsight/internal/vision/color"
	"github.com/roadsight-data/roadsight/internal/vision/kinematics"
	"github.com/roadsight-data/roadsight/internal/vision/plate"
	"github.com/roadsight-data/roadsight/internal/vision/track"
)

// ErrStaleFrame reports a frame index at or below the last processed
// one. Frame indices must be strictly increasing within a session.
var ErrStaleFrame = errors.New("pipeline: frame index not newer than last processed")

// PersistenceSink stores a record at the moment its track crosses the
// counting line. It is an adapter, not a domain layer, so
// implementations live outside the vision packages.
type PersistenceSink interface {
	SaveCrossing(ctx context.Context, rec Record) error
}

// PublishSink delivers every processed frame's records to live
// subscribers.
type PublishSink interface {
	PublishRecords(records []Record)
}

// isNilInterface checks if an interface value is nil or contains a nil pointer.
// This handles the Go interface nil pitfall where interface{} != nil but the underlying value is nil.
func isNilInterface(i interface{}) bool {
	if i == nil {
		return true
	}
	v := reflect.ValueOf(i)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// Counters accumulate over a pipeline's lifetime and feed the session
// stats endpoint.
type Counters struct {
	FramesProcessed      int64 `json:"frames_processed"`
	StaleFramesDropped   int64 `json:"stale_frames_dropped"`
	MalformedDetections  int64 `json:"malformed_detections"`
	LowConfidenceDropped int64 `json:"low_confidence_dropped"`
	TracksSpawned        int64 `json:"tracks_spawned"`
	TracksExpired        int64 `json:"tracks_expired"`
	Crossings            int64 `json:"crossings"`
	ColorFailures        int64 `json:"color_failures"`
	RejectedPlates       int64 `json:"rejected_plates"`
	PersistFailures      int64 `json:"persist_failures"`
}

// Pipeline runs one session's frames through validation, association,
// enrichment, and crossing detection. ProcessFrame is serialized by an
// internal mutex so concurrent submissions cannot interleave stages.
type Pipeline struct {
	sessionID string

	tracker    *track.Tracker
	params     kinematics.Params
	classifier *color.Classifier
	matcher    *plate.Matcher

	minConfidence float64
	workers       int

	persist PersistenceSink
	publish PublishSink

	mu        sync.Mutex
	lastFrame int64
	counters  Counters
}

// New builds a pipeline from a validated session config. Either sink
// may be nil.
func New(sessionID string, cfg *config.SessionConfig, persist PersistenceSink, publish PublishSink) *Pipeline {
	return &Pipeline{
		sessionID: sessionID,
		tracker: track.NewTracker(track.Config{
			GateDistance:    cfg.GetTrackingThreshold(),
			MaxMissedFrames: cfg.GetMaxMissedFrames(),
			HistorySize:     cfg.GetHistorySize(),
		}),
		params: kinematics.Params{
			PixelsPerMeter: cfg.GetPixelsPerMeter(),
			FPS:            cfg.GetFPS(),
			ROILine:        cfg.GetROILine(),
			Orientation:    cfg.GetROIOrientation(),
		},
		classifier: color.NewClassifier(cfg.GetColorPalette(), cfg.GetMinColorCropArea()),
		matcher: plate.NewMatcher(plate.MatcherConfig{
			KnownPlates:   cfg.KnownPlates,
			Threshold:     cfg.GetPlateMatchThreshold(),
			ConfusionCost: cfg.GetPlateConfusionCost(),
			Format:        cfg.GetPlateFormat(),
		}),
		minConfidence: cfg.GetMinConfidence(),
		workers:       cfg.GetWorkers(),
		persist:       persist,
		publish:       publish,
		lastFrame:     -1,
	}
}

// ProcessFrame runs one frame through the full flow and returns the
// frame's records: one per live track plus the final record of every
// track that expired this frame, sorted by track ID.
func (p *Pipeline) ProcessFrame(ctx context.Context, in FrameInput) ([]Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Stage 1: Reject stale or replayed frames.
	if in.Index <= p.lastFrame {
		p.counters.StaleFramesDropped++
		diagf("[Frames] session %s dropped frame %d (last processed %d)",
			p.sessionID, in.Index, p.lastFrame)
		return nil, fmt.Errorf("%w: got %d, last %d", ErrStaleFrame, in.Index, p.lastFrame)
	}

	// Stage 2: Validate detections and apply the confidence floor.
	kept := make([]vision.Detection, 0, len(in.Detections))
	for i, d := range in.Detections {
		if err := d.Validate(in.Width, in.Height); err != nil {
			p.counters.MalformedDetections++
			diagf("[Frames] session %s frame %d detection %d rejected: %v",
				p.sessionID, in.Index, i, err)
			continue
		}
		if d.Confidence < p.minConfidence {
			p.counters.LowConfidenceDropped++
			continue
		}
		kept = append(kept, d)
	}

	// Stage 3: Associate detections with live tracks.
	res := p.tracker.Step(in.Index, kept)
	p.counters.TracksSpawned += int64(len(res.Spawned))
	p.counters.TracksExpired += int64(len(res.Expired))

	// Stage 4: Color and plate enrichment across the worker pool. Runs
	// before the crossing sweep so a record stored at the line carries
	// this frame's readings.
	p.enrich(res.Matched, kept)

	// Stage 5: Counting-line sweep over this frame's matched tracks.
	// Only active tracks can cross; the estimates freeze on first
	// crossing and the record is stored at that moment.
	for _, id := range sortedIDs(res.Matched) {
		tk := p.tracker.GetTrack(id)
		if tk == nil {
			continue
		}
		if !kinematics.Apply(tk, p.params) {
			continue
		}
		p.counters.Crossings++
		speed := "speed n/a"
		if tk.SpeedKMH != nil {
			speed = fmt.Sprintf("%.1f km/h", *tk.SpeedKMH)
		}
		opsf("[Crossing] session %s track %d crossed %s line %.0f going %s (%s)",
			p.sessionID, id, p.params.Orientation, p.params.ROILine, tk.Direction, speed)
		if !isNilInterface(p.persist) {
			if err := p.persist.SaveCrossing(ctx, newRecord(p.sessionID, in.Index, tk, true)); err != nil {
				p.counters.PersistFailures++
				opsf("[Crossing] session %s failed to persist track %d: %v", p.sessionID, id, err)
			}
		}
	}

	// Stage 6: Snapshot records for every live track plus this frame's
	// expirations.
	records := p.buildRecords(in.Index, res)

	// Stage 7: Publish to live subscribers (if configured).
	if !isNilInterface(p.publish) {
		p.publish.PublishRecords(records)
	}

	p.lastFrame = in.Index
	p.counters.FramesProcessed++
	tracef("[Frames] session %s frame %d: %d detections in, %d tracked, %d spawned, %d expired",
		p.sessionID, in.Index, len(in.Detections), len(res.Matched), len(res.Spawned), len(res.Expired))

	return records, nil
}

// Snapshot returns current records for every live track as of the last
// processed frame. Matched reflects whether the track was updated by
// that frame.
func (p *Pipeline) Snapshot() []Record {
	p.mu.Lock()
	defer p.mu.Unlock()

	live := p.tracker.LiveTracks()
	records := make([]Record, 0, len(live))
	for _, tk := range live {
		records = append(records, newRecord(p.sessionID, p.lastFrame, tk, tk.LastSeenFrame == p.lastFrame))
	}
	return records
}

// Counters returns a copy of the lifetime counters.
func (p *Pipeline) Counters() Counters {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counters
}

// LastFrame returns the index of the last processed frame, -1 before
// the first.
func (p *Pipeline) LastFrame() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastFrame
}

// TrackCounts returns live track counts by state.
func (p *Pipeline) TrackCounts() (total, active, crossed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tracker.TrackCount()
}

type jobKind int

const (
	jobColor jobKind = iota
	jobPlate
)

type enrichJob struct {
	trackID int64
	kind    jobKind
	crop    image.Image
	reading vision.PlateReading
}

type enrichResult struct {
	label string
	match plate.Result
	err   error
}

// enrich runs color classification and plate matching for this frame's
// matched tracks across a bounded worker pool. Jobs are pure lookups
// against immutable classifier and matcher state; results are applied
// serially in job order so track values never depend on goroutine
// scheduling.
func (p *Pipeline) enrich(matched map[int64]int, detections []vision.Detection) {
	var queue []enrichJob
	for _, id := range sortedIDs(matched) {
		tk := p.tracker.GetTrack(id)
		if tk == nil {
			continue
		}
		d := detections[matched[id]]
		if tk.Color == "" && d.Crop != nil {
			queue = append(queue, enrichJob{trackID: id, kind: jobColor, crop: d.Crop})
		}
		if d.Plate != nil {
			queue = append(queue, enrichJob{trackID: id, kind: jobPlate, reading: *d.Plate})
		}
	}
	if len(queue) == 0 {
		return
	}

	results := make([]enrichResult, len(queue))
	jobs := make(chan int)
	var wg sync.WaitGroup
	workers := p.workers
	if workers > len(queue) {
		workers = len(queue)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = p.runJob(queue[i])
			}
		}()
	}
	for i := range queue {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for i, job := range queue {
		res := results[i]
		tk := p.tracker.GetTrack(job.trackID)
		if tk == nil {
			continue
		}
		switch job.kind {
		case jobColor:
			if res.err != nil {
				p.counters.ColorFailures++
				diagf("[Color] session %s track %d: %v", p.sessionID, job.trackID, res.err)
				continue
			}
			tk.SetColor(res.label)
		case jobPlate:
			if res.err != nil {
				p.counters.RejectedPlates++
				diagf("[Plate] session %s track %d reading %q rejected: %v",
					p.sessionID, job.trackID, job.reading.Text, res.err)
				continue
			}
			tk.ApplyPlate(res.match.Text, job.reading.Confidence, res.match.Distance)
		}
	}
}

func (p *Pipeline) runJob(job enrichJob) enrichResult {
	switch job.kind {
	case jobColor:
		label, err := p.classifier.Classify(job.crop)
		return enrichResult{label: label, err: err}
	default:
		m, err := p.matcher.Match(job.reading.Text)
		return enrichResult{match: m, err: err}
	}
}

// buildRecords snapshots the live set plus this frame's expirations,
// sorted by track ID.
func (p *Pipeline) buildRecords(frameIndex int64, res track.StepResult) []Record {
	live := p.tracker.LiveTracks()
	records := make([]Record, 0, len(live)+len(res.Expired))
	for _, tk := range live {
		_, matched := res.Matched[tk.ID]
		records = append(records, newRecord(p.sessionID, frameIndex, tk, matched))
	}
	for _, tk := range res.Expired {
		records = append(records, newRecord(p.sessionID, frameIndex, tk, false))
	}
	sort.Slice(records, func(i, j int) bool { return records[i].TrackID < records[j].TrackID })
	return records
}

func sortedIDs(m map[int64]int) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
