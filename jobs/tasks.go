package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuthzExpiryScan flags role assignments that expire soon.
	TaskAuthzExpiryScan = "authz:expiry_scan"
	// TaskActivityPrune trims old activity rows.
	TaskActivityPrune = "activity:prune"
)

// ExpiryScanPayload tunes the expiry scan window.
type ExpiryScanPayload struct {
	WindowDays int `json:"window_days"`
}

// NewExpiryScanTask constructs an expiry scan task.
func NewExpiryScanTask(payload ExpiryScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuthzExpiryScan, data), nil
}

// ActivityPrunePayload bounds the activity retention window.
type ActivityPrunePayload struct {
	RetainDays int `json:"retain_days"`
}

// NewActivityPruneTask constructs an activity prune task.
func NewActivityPruneTask(payload ActivityPrunePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskActivityPrune, data), nil
}
