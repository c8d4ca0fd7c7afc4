package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskIntegrityScan sweeps derived records for drift.
	TaskIntegrityScan = "integrity:scan"
	// TaskActivityCleanup prunes old activity log rows.
	TaskActivityCleanup = "activity:cleanup"
)

// IntegrityScanPayload carries scheduling metadata for the sweep.
type IntegrityScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewIntegrityScanTask constructs an Asynq task for the integrity sweep.
func NewIntegrityScanTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(IntegrityScanPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIntegrityScan, body, asynq.Queue(QueueDefault)), nil
}

// ActivityCleanupPayload bounds the retention sweep.
type ActivityCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewActivityCleanupTask constructs an Asynq task that prunes activity logs
// older than the retention window.
func NewActivityCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(ActivityCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskActivityCleanup, body, asynq.Queue(QueueDefault)), nil
}
