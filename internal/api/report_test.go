package api

import (
	"net/http"
	"reflect"
	"strings"
	"testing"
)

func TestSpeedReport(t *testing.T) {
	server, _, store := setupTestServer(t)

	seedCrossing(t, store, "s1", 1, "car", "red", fptr(28), "down")
	seedCrossing(t, store, "s1", 2, "car", "blue", fptr(42), "down")
	seedCrossing(t, store, "s1", 3, "truck", "white", fptr(55), "up")

	w := serve(t, server, http.MethodGet, "/api/reports/speeds", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Errorf("Expected HTML content type, got %q", ct)
	}

	body := w.Body.String()
	for _, want := range []string{"Crossing speeds", "Vehicle classes", "echarts"} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected report to contain %q", want)
		}
	}
}

func TestSpeedReport_Empty(t *testing.T) {
	server, _, _ := setupTestServer(t)

	w := serve(t, server, http.MethodGet, "/api/reports/speeds", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 for empty store, got %d. Body: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "0 measured crossings") {
		t.Errorf("Expected empty report to state zero crossings")
	}
}

func TestSpeedReport_MethodNotAllowed(t *testing.T) {
	server, _, _ := setupTestServer(t)

	w := serve(t, server, http.MethodPost, "/api/reports/speeds", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}

func TestBinSpeeds(t *testing.T) {
	tests := []struct {
		name       string
		speeds     []float64
		wantLabels []string
		wantCounts []int
	}{
		{
			name:       "empty",
			speeds:     nil,
			wantLabels: []string{"0-10"},
			wantCounts: []int{0},
		},
		{
			name:       "spread across bins",
			speeds:     []float64{5, 15, 15, 25},
			wantLabels: []string{"0-10", "10-20", "20-30"},
			wantCounts: []int{1, 2, 1},
		},
		{
			name:       "bin edge lands in the upper bin",
			speeds:     []float64{9.9, 10},
			wantLabels: []string{"0-10", "10-20"},
			wantCounts: []int{1, 1},
		},
		{
			name:       "single slow crossing",
			speeds:     []float64{3},
			wantLabels: []string{"0-10"},
			wantCounts: []int{1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			labels, counts := binSpeeds(tt.speeds)
			if !reflect.DeepEqual(labels, tt.wantLabels) {
				t.Errorf("labels = %v, want %v", labels, tt.wantLabels)
			}
			if !reflect.DeepEqual(counts, tt.wantCounts) {
				t.Errorf("counts = %v, want %v", counts, tt.wantCounts)
			}
		})
	}
}
