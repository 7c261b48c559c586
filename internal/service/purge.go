package service

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const TaskTypePurge = "reel:purge"

// PurgePayload selects which videos a purge task removes.
type PurgePayload struct {
	RetentionSeconds int64 `json:"retentionSeconds"`
}

// Retention returns the payload as a duration.
func (p PurgePayload) Retention() time.Duration {
	return time.Duration(p.RetentionSeconds) * time.Second
}

// NewPurgeTask builds the scheduled task deleting videos older than
// retention.
func NewPurgeTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(PurgePayload{RetentionSeconds: int64(retention / time.Second)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypePurge, data), nil
}
