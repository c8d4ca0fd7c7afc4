// Package activity is the best-effort audit sink. It is not invariant-bearing:
// failures are logged and never block the caller.
package activity

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Log describes one audited action.
type Log struct {
	Module      string
	EntityID    int64
	Action      string
	OldValue    map[string]any
	NewValue    map[string]any
	Amount      *decimal.Decimal
	PerformedBy int64
	At          time.Time
}

// Sink accepts activity records.
type Sink interface {
	Record(ctx context.Context, log Log) error
	DeleteForEntity(ctx context.Context, module string, entityID int64) error
}

// Recorder writes records into activity_logs.
type Recorder struct {
	pool *pgxpool.Pool
}

// NewRecorder returns a new Recorder.
func NewRecorder(pool *pgxpool.Pool) *Recorder {
	return &Recorder{pool: pool}
}

// Record persists the log entry.
func (r *Recorder) Record(ctx context.Context, log Log) error {
	if r == nil || r.pool == nil {
		return errors.New("activity recorder not initialised")
	}
	if log.Module == "" || log.Action == "" || log.EntityID == 0 {
		return errors.New("activity log requires module/action/entity_id")
	}
	oldJSON, err := json.Marshal(log.OldValue)
	if err != nil {
		return err
	}
	newJSON, err := json.Marshal(log.NewValue)
	if err != nil {
		return err
	}
	at := log.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO activity_logs (module, entity_id, action, old_value, new_value, amount, performed_by, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		log.Module, log.EntityID, log.Action, oldJSON, newJSON, log.Amount, log.PerformedBy, at)
	return err
}

// DeleteForEntity removes an entity's trail; only the draft hard-delete path
// calls this.
func (r *Recorder) DeleteForEntity(ctx context.Context, module string, entityID int64) error {
	if r == nil || r.pool == nil {
		return errors.New("activity recorder not initialised")
	}
	_, err := r.pool.Exec(ctx, `DELETE FROM activity_logs WHERE module=$1 AND entity_id=$2`, module, entityID)
	return err
}

// Cleanup removes records older than retention. Run from the worker.
func (r *Recorder) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if r == nil || r.pool == nil {
		return 0, errors.New("activity recorder not initialised")
	}
	cutoff := time.Now().Add(-olderThan)
	tag, err := r.pool.Exec(ctx, `DELETE FROM activity_logs WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// BestEffort wraps a Sink so callers fire and forget: errors are logged,
// never returned.
type BestEffort struct {
	sink   Sink
	logger *slog.Logger
}

// NewBestEffort wraps sink with logging-only failure handling.
func NewBestEffort(sink Sink, logger *slog.Logger) *BestEffort {
	return &BestEffort{sink: sink, logger: logger}
}

// DeleteForEntity passes through to the sink. The caller decides whether the
// error matters; on the draft delete path it is logged and swallowed.
func (b *BestEffort) DeleteForEntity(ctx context.Context, module string, entityID int64) error {
	if b == nil || b.sink == nil {
		return nil
	}
	return b.sink.DeleteForEntity(ctx, module, entityID)
}

// Record never fails; sink errors degrade to a warning.
func (b *BestEffort) Record(ctx context.Context, log Log) {
	if b == nil || b.sink == nil {
		return
	}
	if err := b.sink.Record(ctx, log); err != nil && b.logger != nil {
		b.logger.Warn("activity log write failed",
			slog.String("module", log.Module),
			slog.Int64("entity_id", log.EntityID),
			slog.String("action", log.Action),
			slog.Any("error", err))
	}
}
