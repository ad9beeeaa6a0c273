package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/roadsight-data/roadsight/internal/vision"
	"github.com/roadsight-data/roadsight/internal/vision/pipeline"
)

func testCrossing(sessionID string, trackID int64) pipeline.Record {
	speed := 27.0
	plateConf := 0.82
	return pipeline.Record{
		SessionID:       sessionID,
		FrameIndex:      120,
		TrackID:         trackID,
		State:           "active",
		Class:           "car",
		Size:            "medium",
		BBox:            vision.BBox{X1: 100, Y1: 380, X2: 220, Y2: 500},
		Confidence:      0.9,
		Matched:         true,
		Color:           "red",
		SpeedKMH:        &speed,
		Direction:       "down",
		PlateText:       "AB123CD",
		PlateConfidence: &plateConf,
	}
}

func mustSave(t *testing.T, db *DB, rec pipeline.Record) {
	t.Helper()
	if err := db.SaveCrossing(context.Background(), rec); err != nil {
		t.Fatalf("SaveCrossing failed: %v", err)
	}
}

func TestSaveCrossingAndGet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rec := testCrossing("s1", 7)
	mustSave(t, db, rec)

	records, err := db.ListRecords(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	if records[0].CreatedAt <= 0 {
		t.Errorf("Expected positive created_at, got %v", records[0].CreatedAt)
	}

	got, err := db.GetRecord(ctx, records[0].ID)
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}

	want := VehicleRecord{
		SessionID:       "s1",
		TrackID:         7,
		FrameIndex:      120,
		Class:           "car",
		Size:            "medium",
		BBox:            rec.BBox,
		Confidence:      0.9,
		Color:           "red",
		SpeedKMH:        rec.SpeedKMH,
		Direction:       "down",
		PlateText:       "AB123CD",
		PlateConfidence: rec.PlateConfidence,
	}
	got.ID = 0
	got.CreatedAt = 0
	if diff := cmp.Diff(want, *got); diff != "" {
		t.Errorf("Stored record mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveCrossingNullableFields(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rec := testCrossing("s1", 1)
	rec.Color = ""
	rec.SpeedKMH = nil
	rec.Direction = ""
	rec.PlateText = ""
	rec.PlateConfidence = nil
	mustSave(t, db, rec)

	records, err := db.ListRecords(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}

	got := records[0]
	if got.Color != "" || got.Direction != "" || got.PlateText != "" {
		t.Errorf("Expected empty readings, got color=%q direction=%q plate=%q",
			got.Color, got.Direction, got.PlateText)
	}
	if got.SpeedKMH != nil || got.PlateConfidence != nil {
		t.Error("Expected nil speed and plate confidence")
	}
}

// TestSaveCrossingUpsert re-saves the same session/track pair and expects
// one row carrying the latest readings.
func TestSaveCrossingUpsert(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	mustSave(t, db, testCrossing("s1", 3))

	updated := testCrossing("s1", 3)
	newSpeed := 54.0
	updated.SpeedKMH = &newSpeed
	updated.Color = "blue"
	mustSave(t, db, updated)

	records, err := db.ListRecords(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record after upsert, got %d", len(records))
	}
	if records[0].SpeedKMH == nil || *records[0].SpeedKMH != 54.0 {
		t.Errorf("Expected speed 54.0 after upsert, got %v", records[0].SpeedKMH)
	}
	if records[0].Color != "blue" {
		t.Errorf("Expected color blue after upsert, got %q", records[0].Color)
	}
}

func TestListRecordsNewestFirstWithPagination(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		mustSave(t, db, testCrossing("s1", i))
	}

	page, err := db.ListRecords(ctx, ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(page))
	}
	if page[0].TrackID != 5 || page[1].TrackID != 4 {
		t.Errorf("Expected tracks [5 4], got [%d %d]", page[0].TrackID, page[1].TrackID)
	}

	page, err = db.ListRecords(ctx, ListOptions{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(page) != 2 || page[0].TrackID != 3 || page[1].TrackID != 2 {
		t.Errorf("Expected tracks [3 2] on second page, got %v", page)
	}

	page, err = db.ListRecords(ctx, ListOptions{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(page) != 1 || page[0].TrackID != 1 {
		t.Errorf("Expected track [1] on last page, got %v", page)
	}
}

func TestListRecordsFilters(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	car := testCrossing("s1", 1)
	mustSave(t, db, car)

	truck := testCrossing("s1", 2)
	truck.Class = "truck"
	truck.Direction = "up"
	mustSave(t, db, truck)

	other := testCrossing("s2", 1)
	mustSave(t, db, other)

	bySession, err := db.ListRecords(ctx, ListOptions{SessionID: "s1"})
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(bySession) != 2 {
		t.Errorf("Expected 2 records for s1, got %d", len(bySession))
	}

	byClass, err := db.ListRecords(ctx, ListOptions{Class: "truck"})
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(byClass) != 1 || byClass[0].TrackID != 2 {
		t.Errorf("Expected one truck record for track 2, got %v", byClass)
	}

	byBoth, err := db.ListRecords(ctx, ListOptions{SessionID: "s2", Direction: "down"})
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(byBoth) != 1 || byBoth[0].SessionID != "s2" {
		t.Errorf("Expected one s2 record going down, got %v", byBoth)
	}
}

func TestGetRecordNotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetRecord(context.Background(), 9999)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestDeleteRecord(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	mustSave(t, db, testCrossing("s1", 1))

	records, err := db.ListRecords(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}

	if err := db.DeleteRecord(ctx, records[0].ID); err != nil {
		t.Fatalf("DeleteRecord failed: %v", err)
	}

	if _, err := db.GetRecord(ctx, records[0].ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}

	if err := db.DeleteRecord(ctx, records[0].ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestClearRecords(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		mustSave(t, db, testCrossing("s1", i))
	}
	mustSave(t, db, testCrossing("s2", 1))

	deleted, err := db.ClearRecords(ctx, "s1")
	if err != nil {
		t.Fatalf("ClearRecords failed: %v", err)
	}
	if deleted != 3 {
		t.Errorf("Expected 3 deleted for s1, got %d", deleted)
	}

	deleted, err = db.ClearRecords(ctx, "")
	if err != nil {
		t.Fatalf("ClearRecords failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 deleted for remaining records, got %d", deleted)
	}

	records, err := db.ListRecords(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Expected empty table, got %d records", len(records))
	}
}

func TestStats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// Two red cars with measured speeds, one colorless car without, one
	// blue truck going up.
	reds := []float64{20, 30}
	for i := range reds {
		rec := testCrossing("s1", int64(i+1))
		rec.SpeedKMH = &reds[i]
		mustSave(t, db, rec)
	}

	plain := testCrossing("s1", 3)
	plain.Color = ""
	plain.SpeedKMH = nil
	plain.Direction = ""
	mustSave(t, db, plain)

	truck := testCrossing("s1", 4)
	truck.Class = "truck"
	truck.Color = "blue"
	truck.SpeedKMH = nil
	truck.Direction = "up"
	mustSave(t, db, truck)

	stats, err := db.Stats(ctx, "s1")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}

	if stats.Total != 4 {
		t.Errorf("Expected total 4, got %d", stats.Total)
	}
	if stats.ByClass["car"] != 3 || stats.ByClass["truck"] != 1 {
		t.Errorf("Unexpected class distribution: %v", stats.ByClass)
	}
	if stats.ByColor["red"] != 2 || stats.ByColor["blue"] != 1 {
		t.Errorf("Unexpected color distribution: %v", stats.ByColor)
	}
	if len(stats.ByColor) != 2 {
		t.Errorf("Expected colorless rows to be skipped, got %v", stats.ByColor)
	}
	if stats.ByDirection["down"] != 2 || stats.ByDirection["up"] != 1 {
		t.Errorf("Unexpected direction distribution: %v", stats.ByDirection)
	}
	if stats.AvgSpeedKMH == nil || *stats.AvgSpeedKMH != 25.0 {
		t.Errorf("Expected average speed 25.0, got %v", stats.AvgSpeedKMH)
	}
}

func TestStatsEmpty(t *testing.T) {
	db := newTestDB(t)

	stats, err := db.Stats(context.Background(), "")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 0 {
		t.Errorf("Expected total 0, got %d", stats.Total)
	}
	if stats.AvgSpeedKMH != nil {
		t.Errorf("Expected nil average for empty table, got %v", *stats.AvgSpeedKMH)
	}
}

func TestSpeedRollup(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	speeds := []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	for i := range speeds {
		rec := testCrossing("s1", int64(i+1))
		rec.SpeedKMH = &speeds[i]
		mustSave(t, db, rec)
	}

	// One crossing without a measured speed must not skew the rollup.
	unmeasured := testCrossing("s1", 11)
	unmeasured.SpeedKMH = nil
	mustSave(t, db, unmeasured)

	rollup, err := db.SpeedRollup(ctx, "s1")
	if err != nil {
		t.Fatalf("SpeedRollup failed: %v", err)
	}

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"min", rollup.MinKMH, 10},
		{"max", rollup.MaxKMH, 100},
		{"avg", rollup.AvgKMH, 55},
		{"p50", rollup.P50KMH, 50},
		{"p85", rollup.P85KMH, 90},
		{"p98", rollup.P98KMH, 100},
	}
	if rollup.Count != 10 {
		t.Errorf("Expected count 10, got %d", rollup.Count)
	}
	for _, check := range checks {
		if check.got != check.want {
			t.Errorf("Expected %s %v, got %v", check.name, check.want, check.got)
		}
	}
}

func TestSpeedRollupEmpty(t *testing.T) {
	db := newTestDB(t)

	rollup, err := db.SpeedRollup(context.Background(), "")
	if err != nil {
		t.Fatalf("SpeedRollup failed: %v", err)
	}
	if rollup.Count != 0 || rollup.MaxKMH != 0 || rollup.P85KMH != 0 {
		t.Errorf("Expected zero rollup for empty table, got %+v", rollup)
	}
}

func TestCrossingSpeedsSorted(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	unsorted := []float64{42, 13, 88}
	for i := range unsorted {
		rec := testCrossing("s1", int64(i+1))
		rec.SpeedKMH = &unsorted[i]
		mustSave(t, db, rec)
	}

	speeds, err := db.CrossingSpeeds(ctx, "")
	if err != nil {
		t.Fatalf("CrossingSpeeds failed: %v", err)
	}

	want := []float64{13, 42, 88}
	if fmt.Sprint(speeds) != fmt.Sprint(want) {
		t.Errorf("Expected sorted speeds %v, got %v", want, speeds)
	}
}
