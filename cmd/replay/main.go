// Command replay drives one tracking session from a recorded detection
// log. Input is JSONL, one frame per line in the POST /frames shape; the
// full record stream comes out as JSONL and a run summary lands on
// stderr. With -db the crossing records are also persisted, so a
// detector log can backfill a live database.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"gonum.org/v1/gonum/stat"

	"github.com/roadsight-data/roadsight/internal/config"
	"github.com/roadsight-data/roadsight/internal/db"
	"github.com/roadsight-data/roadsight/internal/session"
	"github.com/roadsight-data/roadsight/internal/vision"
	"github.com/roadsight-data/roadsight/internal/vision/pipeline"
	"github.com/roadsight-data/roadsight/internal/vision/track"
)

var (
	configFile = flag.String("config", "", "Session config JSON file (default: compiled-in defaults)")
	plates     = flag.String("plates", "", "Comma separated known plates, appended to the config")
	dbPath     = flag.String("db", "", "Persist crossing records into this SQLite database as well")
	outPath    = flag.String("out", "", "Record JSONL output file (default: stdout)")
)

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: replay [flags] <detections.jsonl>  (- reads stdin)")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg := config.EmptySessionConfig()
	if *configFile != "" {
		var err error
		cfg, err = config.LoadSessionConfig(*configFile)
		if err != nil {
			log.Fatalf("failed to load session config: %v", err)
		}
	}
	if *plates != "" {
		for _, p := range strings.Split(*plates, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.KnownPlates = append(cfg.KnownPlates, p)
			}
		}
	}

	var persist pipeline.PersistenceSink
	if *dbPath != "" {
		store, err := db.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("failed to open record store: %v", err)
		}
		defer store.Close()
		persist = store
	}

	var in io.Reader = os.Stdin
	if name := flag.Arg(0); name != "-" {
		f, err := os.Open(name)
		if err != nil {
			log.Fatalf("failed to open detection log: %v", err)
		}
		defer f.Close()
		in = f
	}

	var out io.Writer = os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			log.Fatalf("failed to create output file: %v", err)
		}
		defer f.Close()
		out = f
	}

	mgr := session.NewManager(persist, nil)
	sess, err := mgr.Create(cfg)
	if err != nil {
		log.Fatalf("failed to create session: %v", err)
	}
	defer mgr.Close(sess.ID)

	summary, err := replay(context.Background(), sess, in, out)
	if err != nil {
		log.Fatalf("replay failed: %v", err)
	}
	fmt.Fprintln(os.Stderr, summary)
}

// tally accumulates the run summary while records stream out.
type tally struct {
	frames     int64
	detections int64
	badCrops   int64
	records    int64
	// crossed maps track IDs that passed the counting line to their class.
	crossed map[int64]string
	speeds  []float64
}

func replay(ctx context.Context, sess *session.Session, in io.Reader, out io.Writer) (string, error) {
	scanner := bufio.NewScanner(in)
	// Crops ride along base64 encoded, so frame lines can get large.
	const bufSize = 10 << 20
	scanner.Buffer(make([]byte, bufSize), bufSize)

	w := bufio.NewWriter(out)
	defer w.Flush()
	enc := json.NewEncoder(w)

	t := tally{crossed: make(map[int64]string)}
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		frame, err := parseFrame(line)
		if err != nil {
			return "", fmt.Errorf("line %d: %w", lineNo, err)
		}
		t.frames++
		t.detections += int64(len(frame.Detections))
		t.badCrops += int64(frame.DecodeCrops())

		records, err := sess.ProcessFrame(ctx, frame)
		if err != nil {
			return "", fmt.Errorf("frame %d (line %d): %w", frame.Index, lineNo, err)
		}
		for _, rec := range records {
			if err := enc.Encode(rec); err != nil {
				return "", fmt.Errorf("write record: %w", err)
			}
			t.note(rec)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read detection log: %w", err)
	}
	return t.summaryJSON(), nil
}

func (t *tally) note(rec pipeline.Record) {
	t.records++
	if rec.State != string(track.TrackCrossed) {
		return
	}
	if _, seen := t.crossed[rec.TrackID]; seen {
		return
	}
	t.crossed[rec.TrackID] = rec.Class
	if rec.SpeedKMH != nil {
		t.speeds = append(t.speeds, *rec.SpeedKMH)
	}
}

func (t *tally) summaryJSON() string {
	s, _ := sjson.Set("{}", "frames", t.frames)
	s, _ = sjson.Set(s, "detections", t.detections)
	s, _ = sjson.Set(s, "bad_crops", t.badCrops)
	s, _ = sjson.Set(s, "records", t.records)
	s, _ = sjson.Set(s, "crossings", len(t.crossed))

	byClass := make(map[string]int64)
	for _, class := range t.crossed {
		byClass[class]++
	}
	classes := make([]string, 0, len(byClass))
	for class := range byClass {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	for _, class := range classes {
		s, _ = sjson.Set(s, "by_class."+class, byClass[class])
	}

	if len(t.speeds) > 0 {
		s, _ = sjson.Set(s, "avg_speed_kmh", stat.Mean(t.speeds, nil))
	}
	return s
}

// parseFrame reads one JSONL frame. gjson tolerates extra fields, so
// detector logs carrying camera metadata replay unmodified.
func parseFrame(line []byte) (pipeline.FrameInput, error) {
	if !gjson.ValidBytes(line) {
		return pipeline.FrameInput{}, fmt.Errorf("malformed JSON")
	}
	parsed := gjson.ParseBytes(line)
	idx := parsed.Get("frame_index")
	if !idx.Exists() {
		return pipeline.FrameInput{}, fmt.Errorf("missing frame_index")
	}

	frame := pipeline.FrameInput{
		Index:  idx.Int(),
		Width:  parsed.Get("width").Float(),
		Height: parsed.Get("height").Float(),
	}
	parsed.Get("detections").ForEach(func(_, det gjson.Result) bool {
		d := vision.Detection{
			BBox: vision.BBox{
				X1: det.Get("bbox.x1").Float(),
				Y1: det.Get("bbox.y1").Float(),
				X2: det.Get("bbox.x2").Float(),
				Y2: det.Get("bbox.y2").Float(),
			},
			Class:      vision.Class(det.Get("class").String()),
			Confidence: det.Get("confidence").Float(),
			CropB64:    det.Get("crop_b64").String(),
		}
		if plate := det.Get("plate"); plate.Exists() {
			reading := vision.PlateReading{Text: plate.Get("text").String()}
			if conf := plate.Get("confidence"); conf.Exists() {
				v := conf.Float()
				reading.Confidence = &v
			}
			d.Plate = &reading
		}
		frame.Detections = append(frame.Detections, d)
		return true
	})
	return frame, nil
}
