package db

import (
	"context"
	"fmt"
	"time"

	"github.com/roadsight-data/roadsight/internal/monitoring"
	"github.com/roadsight-data/roadsight/internal/timeutil"
)

// RetentionWorker periodically deletes vehicle records older than MaxAge.
// A MaxAge of zero disables the sweep entirely.
type RetentionWorker struct {
	DB       *DB
	MaxAge   time.Duration
	Interval time.Duration // how often to sweep (e.g., 1h)
	Clock    timeutil.Clock
	StopChan chan struct{}
}

func NewRetentionWorker(db *DB, retentionDays int) *RetentionWorker {
	return &RetentionWorker{
		DB:       db,
		MaxAge:   time.Duration(retentionDays) * 24 * time.Hour,
		Interval: time.Hour,
		Clock:    timeutil.RealClock{},
		StopChan: make(chan struct{}),
	}
}

// Start runs the periodic sweep loop in a goroutine.
func (w *RetentionWorker) Start() {
	if w.MaxAge <= 0 {
		monitoring.Logf("record retention disabled, keeping records forever")
		return
	}

	go func() {
		ticker := w.Clock.NewTicker(w.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C():
				if err := w.RunOnce(context.Background()); err != nil {
					monitoring.Logf("retention sweep error: %v", err)
				}
			case <-w.StopChan:
				return
			}
		}
	}()
}

// Stop requests the worker to stop.
func (w *RetentionWorker) Stop() {
	close(w.StopChan)
}

// RunOnce deletes all records older than MaxAge.
func (w *RetentionWorker) RunOnce(ctx context.Context) error {
	cutoff := float64(w.Clock.Now().Add(-w.MaxAge).Unix())

	result, err := w.DB.ExecContext(ctx,
		`DELETE FROM vehicle_records WHERE created_at < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("failed to sweep old records: %w", err)
	}

	deleted, _ := result.RowsAffected()
	if deleted > 0 {
		monitoring.Logf("retention sweep removed %d records older than %s", deleted, w.MaxAge)
	}

	return nil
}
