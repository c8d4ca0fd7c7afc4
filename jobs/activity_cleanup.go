package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/activity"
)

// ActivityCleaner prunes activity log rows past the retention window.
type ActivityCleaner struct {
	recorder *activity.Recorder
	logger   *slog.Logger
}

// NewActivityCleaner constructs ActivityCleaner.
func NewActivityCleaner(recorder *activity.Recorder, logger *slog.Logger) *ActivityCleaner {
	return &ActivityCleaner{recorder: recorder, logger: logger}
}

// HandleActivityCleanupTask processes TaskActivityCleanup tasks.
func (c *ActivityCleaner) HandleActivityCleanupTask(ctx context.Context, t *asynq.Task) error {
	var payload ActivityCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Retention <= 0 {
		return asynq.SkipRetry
	}
	removed, err := c.recorder.Cleanup(ctx, payload.Retention)
	if err != nil {
		return err
	}
	c.logger.Info("activity cleanup done",
		slog.Int64("removed", removed),
		slog.Duration("retention", payload.Retention))
	return nil
}
