package api

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// speedBinWidth is the histogram bucket width in km/h.
const speedBinWidth = 10.0

// speedReport renders an HTML page with the speed histogram and the
// vehicle class distribution. A session_id query param narrows the
// report to one session.
func (s *Server) speedReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	sessionID := r.URL.Query().Get("session_id")

	speeds, err := s.store.CrossingSpeeds(r.Context(), sessionID)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to retrieve speeds: %v", err))
		return
	}
	stats, err := s.store.Stats(r.Context(), sessionID)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to retrieve stats: %v", err))
		return
	}

	page := components.NewPage()
	page.AddCharts(speedHistogram(speeds), classDistribution(stats.ByClass))

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render report: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// binSpeeds buckets measured speeds into fixed km/h bins. Speeds arrive
// sorted ascending, so the last value bounds the bins.
func binSpeeds(speeds []float64) ([]string, []int) {
	bins := 1
	if n := len(speeds); n > 0 {
		bins = int(speeds[n-1]/speedBinWidth) + 1
	}

	counts := make([]int, bins)
	for _, v := range speeds {
		idx := int(v / speedBinWidth)
		if idx >= bins {
			idx = bins - 1
		}
		counts[idx]++
	}

	labels := make([]string, bins)
	for i := range counts {
		labels[i] = fmt.Sprintf("%d-%d", i*int(speedBinWidth), (i+1)*int(speedBinWidth))
	}
	return labels, counts
}

func speedHistogram(speeds []float64) *charts.Bar {
	labels, counts := binSpeeds(speeds)
	data := make([]opts.BarData, len(counts))
	for i, c := range counts {
		data[i] = opts.BarData{Value: c}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Crossing speeds",
			Subtitle: fmt.Sprintf("%d measured crossings, km/h bins", len(speeds)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(labels).
		AddSeries("crossings", data,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

// classDistribution renders stored counts per vehicle class.
func classDistribution(byClass map[string]int64) *charts.Bar {
	classes := make([]string, 0, len(byClass))
	for class := range byClass {
		classes = append(classes, class)
	}
	sort.Strings(classes)

	data := make([]opts.BarData, len(classes))
	for i, class := range classes {
		data[i] = opts.BarData{Value: byClass[class]}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Vehicle classes"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(classes).
		AddSeries("vehicles", data,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}
