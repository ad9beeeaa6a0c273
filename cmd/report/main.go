// Command report renders a PNG speed histogram from the crossing records
// in a SQLite database, with the p50/p85/p98 percentiles marked. The p85
// is the usual basis for posted speed review, so it gets a line of its
// own rather than a footnote in JSON.
package main

import (
	"context"
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/roadsight-data/roadsight/internal/db"
	"github.com/roadsight-data/roadsight/internal/units"
)

var (
	dbPath    = flag.String("db", "roadsight.db", "SQLite record database")
	sessionID = flag.String("session", "", "Narrow the report to one session")
	outPath   = flag.String("out", "speed_histogram.png", "Output PNG path")
	unitsFlag = flag.String("units", units.KMPH, "Display units: mps, mph, kmph or kph")
	binWidth  = flag.Float64("bin", 10, "Histogram bin width in display units")
)

// percentileMarks are the rollup percentiles in display units.
type percentileMarks struct {
	p50, p85, p98 float64
}

func main() {
	flag.Parse()

	if !units.IsValid(*unitsFlag) {
		log.Fatalf("invalid units %q (valid units: %s)", *unitsFlag, units.GetValidUnitsString())
	}
	if *binWidth <= 0 {
		log.Fatalf("bin width must be positive, got %v", *binWidth)
	}

	store, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("failed to open record store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	speeds, err := store.CrossingSpeeds(ctx, *sessionID)
	if err != nil {
		log.Fatalf("failed to load crossing speeds: %v", err)
	}
	if len(speeds) == 0 {
		fmt.Fprintln(os.Stderr, "no measured crossings to plot")
		os.Exit(1)
	}
	rollup, err := store.SpeedRollup(ctx, *sessionID)
	if err != nil {
		log.Fatalf("failed to compute speed rollup: %v", err)
	}

	converted := make([]float64, len(speeds))
	for i, v := range speeds {
		converted[i] = units.ConvertSpeed(v, *unitsFlag)
	}
	marks := percentileMarks{
		p50: units.ConvertSpeed(rollup.P50KMH, *unitsFlag),
		p85: units.ConvertSpeed(rollup.P85KMH, *unitsFlag),
		p98: units.ConvertSpeed(rollup.P98KMH, *unitsFlag),
	}

	if err := renderHistogram(converted, marks, *unitsFlag, *binWidth, *outPath); err != nil {
		log.Fatalf("failed to render histogram: %v", err)
	}
	fmt.Printf("wrote %s: %d crossings, avg %.1f %s, p85 %.1f %s\n",
		*outPath, rollup.Count, units.ConvertSpeed(rollup.AvgKMH, *unitsFlag), *unitsFlag,
		marks.p85, *unitsFlag)
}

// binSpeeds buckets speeds, sorted ascending, into fixed width bins.
func binSpeeds(speeds []float64, width float64) ([]string, []float64) {
	bins := 1
	if n := len(speeds); n > 0 {
		bins = int(speeds[n-1]/width) + 1
	}

	counts := make([]float64, bins)
	for _, v := range speeds {
		idx := int(v / width)
		if idx >= bins {
			idx = bins - 1
		}
		counts[idx]++
	}

	labels := make([]string, bins)
	for i := range labels {
		labels[i] = fmt.Sprintf("%g-%g", float64(i)*width, float64(i+1)*width)
	}
	return labels, counts
}

func renderHistogram(speeds []float64, marks percentileMarks, unit string, width float64, outPath string) error {
	labels, counts := binSpeeds(speeds, width)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Crossing speeds (%d measured)", len(speeds))
	p.X.Label.Text = fmt.Sprintf("Speed (%s)", unit)
	p.Y.Label.Text = "Crossings"

	bars, err := plotter.NewBarChart(plotter.Values(counts), vg.Points(24))
	if err != nil {
		return fmt.Errorf("bar chart: %w", err)
	}
	bars.LineStyle.Width = vg.Length(0)
	bars.Color = color.RGBA{R: 70, G: 130, B: 200, A: 255}
	p.Add(bars)
	p.NominalX(labels...)

	maxCount := 0.0
	for _, c := range counts {
		if c > maxCount {
			maxCount = c
		}
	}

	overlays := []struct {
		label string
		value float64
		col   color.Color
	}{
		{"p50", marks.p50, color.RGBA{R: 60, G: 160, B: 60, A: 255}},
		{"p85", marks.p85, color.RGBA{R: 230, G: 140, B: 20, A: 255}},
		{"p98", marks.p98, color.RGBA{R: 200, G: 40, B: 40, A: 255}},
	}
	for _, o := range overlays {
		// Bars sit at nominal positions 0..n-1, each covering one width,
		// so a speed v lands at v/width - 0.5 on the continuous axis.
		x := o.value/width - 0.5
		line, err := plotter.NewLine(plotter.XYs{
			{X: x, Y: 0},
			{X: x, Y: maxCount},
		})
		if err != nil {
			return fmt.Errorf("%s overlay: %w", o.label, err)
		}
		line.Color = o.col
		line.Width = vg.Points(2)
		line.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("%s: %.1f %s", o.label, o.value, unit), line)
	}
	p.Legend.Top = true

	return p.Save(10*vg.Inch, 5*vg.Inch, outPath)
}
