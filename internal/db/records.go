package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/roadsight-data/roadsight/internal/vision"
	"github.com/roadsight-data/roadsight/internal/vision/pipeline"
)

// ErrNotFound reports a lookup for a record that does not exist.
var ErrNotFound = errors.New("record not found")

// VehicleRecord is one stored crossing row. A vehicle is written exactly
// once, on the frame its track crosses the counting line, so SessionID
// plus TrackID is unique.
type VehicleRecord struct {
	ID              int64       `json:"id"`
	SessionID       string      `json:"session_id"`
	TrackID         int64       `json:"track_id"`
	FrameIndex      int64       `json:"frame_index"`
	Class           string      `json:"class"`
	Size            string      `json:"size"`
	BBox            vision.BBox `json:"bbox"`
	Confidence      float64     `json:"confidence"`
	Color           string      `json:"color,omitempty"`
	SpeedKMH        *float64    `json:"speed_kmh,omitempty"`
	Direction       string      `json:"direction,omitempty"`
	PlateText       string      `json:"plate_text,omitempty"`
	PlateConfidence *float64    `json:"plate_confidence,omitempty"`
	CreatedAt       float64     `json:"created_at"`
}

// SaveCrossing persists the record emitted when a track crosses the
// counting line. Re-feeding the same session (replays, backfills) keeps
// the latest readings for the session/track pair instead of failing.
func (db *DB) SaveCrossing(ctx context.Context, rec pipeline.Record) error {
	query := `
		INSERT INTO vehicle_records (
			session_id, track_id, frame_index, class, size,
			bbox_x1, bbox_y1, bbox_x2, bbox_y2, confidence,
			color, speed_kmh, direction, plate_text, plate_confidence,
			created_at
		) VALUES (
			?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, UNIXEPOCH('subsec')
		)
		ON CONFLICT(session_id, track_id) DO UPDATE SET
			frame_index = excluded.frame_index,
			class = excluded.class,
			size = excluded.size,
			bbox_x1 = excluded.bbox_x1,
			bbox_y1 = excluded.bbox_y1,
			bbox_x2 = excluded.bbox_x2,
			bbox_y2 = excluded.bbox_y2,
			confidence = excluded.confidence,
			color = excluded.color,
			speed_kmh = excluded.speed_kmh,
			direction = excluded.direction,
			plate_text = excluded.plate_text,
			plate_confidence = excluded.plate_confidence
	`

	_, err := db.ExecContext(ctx, query,
		rec.SessionID, rec.TrackID, rec.FrameIndex, rec.Class, rec.Size,
		rec.BBox.X1, rec.BBox.Y1, rec.BBox.X2, rec.BBox.Y2, rec.Confidence,
		nullString(rec.Color), rec.SpeedKMH, nullString(rec.Direction),
		nullString(rec.PlateText), rec.PlateConfidence,
	)
	if err != nil {
		return fmt.Errorf("failed to save crossing record: %w", err)
	}
	return nil
}

// ListOptions filters and pages record listings. Zero values mean no
// filter and the default page size.
type ListOptions struct {
	SessionID string
	Class     string
	Direction string
	Limit     int
	Offset    int
}

const defaultListLimit = 100

const recordColumns = `id, session_id, track_id, frame_index, class, size,
	bbox_x1, bbox_y1, bbox_x2, bbox_y2, confidence,
	color, speed_kmh, direction, plate_text, plate_confidence, created_at`

// ListRecords returns stored crossings, newest first.
func (db *DB) ListRecords(ctx context.Context, opts ListOptions) ([]VehicleRecord, error) {
	where, args := buildRecordFilter(opts.SessionID, opts.Class, opts.Direction)

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `SELECT ` + recordColumns + ` FROM vehicle_records` + where +
		` ORDER BY id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, opts.Offset)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vehicle records: %w", err)
	}
	defer rows.Close()

	var records []VehicleRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vehicle record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

// GetRecord retrieves one stored crossing by row ID.
func (db *DB) GetRecord(ctx context.Context, id int64) (*VehicleRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM vehicle_records WHERE id = ?`

	rec, err := scanRecord(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vehicle record: %w", err)
	}

	return &rec, nil
}

// DeleteRecord removes one stored crossing by row ID.
func (db *DB) DeleteRecord(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM vehicle_records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete vehicle record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// ClearRecords deletes stored crossings and returns how many were removed.
// A sessionID narrows the delete to one session; empty clears everything.
func (db *DB) ClearRecords(ctx context.Context, sessionID string) (int64, error) {
	where, args := buildRecordFilter(sessionID, "", "")

	result, err := db.ExecContext(ctx, `DELETE FROM vehicle_records`+where, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to clear vehicle records: %w", err)
	}

	return result.RowsAffected()
}

// RecordStats summarises stored crossings for the stats surface.
type RecordStats struct {
	Total       int64            `json:"total"`
	ByClass     map[string]int64 `json:"by_class"`
	ByColor     map[string]int64 `json:"by_color"`
	ByDirection map[string]int64 `json:"by_direction"`
	AvgSpeedKMH *float64         `json:"avg_speed_kmh,omitempty"`
}

// Stats aggregates counts and distributions over stored crossings.
// Unreadable colors and directionless rows are left out of their maps.
func (db *DB) Stats(ctx context.Context, sessionID string) (*RecordStats, error) {
	where, args := buildRecordFilter(sessionID, "", "")

	stats := &RecordStats{
		ByClass:     make(map[string]int64),
		ByColor:     make(map[string]int64),
		ByDirection: make(map[string]int64),
	}

	var avg sql.NullFloat64
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*), AVG(speed_kmh) FROM vehicle_records`+where, args...,
	).Scan(&stats.Total, &avg)
	if err != nil {
		return nil, fmt.Errorf("failed to count vehicle records: %w", err)
	}
	if avg.Valid {
		stats.AvgSpeedKMH = &avg.Float64
	}

	for column, dest := range map[string]map[string]int64{
		"class":     stats.ByClass,
		"color":     stats.ByColor,
		"direction": stats.ByDirection,
	} {
		if err := db.groupCounts(ctx, column, where, args, dest); err != nil {
			return nil, fmt.Errorf("failed to group by %s: %w", column, err)
		}
	}

	return stats, nil
}

func (db *DB) groupCounts(ctx context.Context, column, where string, args []interface{}, dest map[string]int64) error {
	query := `SELECT ` + column + `, COUNT(*) FROM vehicle_records` + where +
		` GROUP BY ` + column

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key sql.NullString
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		if !key.Valid || key.String == "" {
			continue
		}
		dest[key.String] = count
	}
	return rows.Err()
}

// CrossingSpeeds returns the measured speeds (km/h) of stored crossings,
// sorted ascending. Rows without a speed are skipped.
func (db *DB) CrossingSpeeds(ctx context.Context, sessionID string) ([]float64, error) {
	where, args := buildRecordFilter(sessionID, "", "")
	if where == "" {
		where = ` WHERE speed_kmh IS NOT NULL`
	} else {
		where += ` AND speed_kmh IS NOT NULL`
	}

	rows, err := db.QueryContext(ctx, `SELECT speed_kmh FROM vehicle_records`+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query crossing speeds: %w", err)
	}
	defer rows.Close()

	var speeds []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		speeds = append(speeds, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Float64s(speeds)
	return speeds, nil
}

// SpeedRollup aggregates the measured crossing speeds in km/h.
type SpeedRollup struct {
	Count  int64   `json:"count"`
	MinKMH float64 `json:"min_kmh"`
	MaxKMH float64 `json:"max_kmh"`
	AvgKMH float64 `json:"avg_kmh"`
	P50KMH float64 `json:"p50_kmh"`
	P85KMH float64 `json:"p85_kmh"`
	P98KMH float64 `json:"p98_kmh"`
}

// SpeedRollup computes the speed distribution over stored crossings with
// a measured speed. A sessionID narrows to one session; empty means all.
func (db *DB) SpeedRollup(ctx context.Context, sessionID string) (*SpeedRollup, error) {
	speeds, err := db.CrossingSpeeds(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	rollup := &SpeedRollup{Count: int64(len(speeds))}
	if len(speeds) == 0 {
		return rollup, nil
	}

	rollup.MinKMH = speeds[0]
	rollup.MaxKMH = speeds[len(speeds)-1]
	rollup.AvgKMH = stat.Mean(speeds, nil)
	rollup.P50KMH = stat.Quantile(0.50, stat.Empirical, speeds, nil)
	rollup.P85KMH = stat.Quantile(0.85, stat.Empirical, speeds, nil)
	rollup.P98KMH = stat.Quantile(0.98, stat.Empirical, speeds, nil)

	return rollup, nil
}

func buildRecordFilter(sessionID, class, direction string) (string, []interface{}) {
	var conds []string
	var args []interface{}

	if sessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, sessionID)
	}
	if class != "" {
		conds = append(conds, "class = ?")
		args = append(args, class)
	}
	if direction != "" {
		conds = append(conds, "direction = ?")
		args = append(args, direction)
	}
	if len(conds) == 0 {
		return "", nil
	}

	return " WHERE " + strings.Join(conds, " AND "), args
}

// nullString maps empty strings to NULL so unset readings never collide
// with real values in GROUP BY queries.
func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (VehicleRecord, error) {
	var (
		rec       VehicleRecord
		color     sql.NullString
		speed     sql.NullFloat64
		direction sql.NullString
		plate     sql.NullString
		plateConf sql.NullFloat64
	)

	err := row.Scan(
		&rec.ID, &rec.SessionID, &rec.TrackID, &rec.FrameIndex, &rec.Class, &rec.Size,
		&rec.BBox.X1, &rec.BBox.Y1, &rec.BBox.X2, &rec.BBox.Y2, &rec.Confidence,
		&color, &speed, &direction, &plate, &plateConf, &rec.CreatedAt,
	)
	if err != nil {
		return VehicleRecord{}, err
	}

	rec.Color = color.String
	rec.Direction = direction.String
	rec.PlateText = plate.String
	if speed.Valid {
		v := speed.Float64
		rec.SpeedKMH = &v
	}
	if plateConf.Valid {
		v := plateConf.Float64
		rec.PlateConfidence = &v
	}

	return rec, nil
}
