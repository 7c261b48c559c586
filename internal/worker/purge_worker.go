package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/facelessreel/api/internal/service"
	"github.com/facelessreel/api/internal/storage"
)

// PurgeWorker deletes finished videos past their retention
type PurgeWorker struct {
	store storage.VideoStore
	now   func() time.Time
}

// NewPurgeWorker creates a new purge worker
func NewPurgeWorker(store storage.VideoStore) *PurgeWorker {
	return &PurgeWorker{store: store, now: time.Now}
}

// ProcessTask handles purge task processing
func (w *PurgeWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload service.PurgePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal purge payload: %v: %w", err, asynq.SkipRetry)
	}

	retention := payload.Retention()
	if retention <= 0 {
		return fmt.Errorf("invalid retention %s: %w", retention, asynq.SkipRetry)
	}

	cutoff := w.now().Add(-retention)
	removed, err := w.store.Purge(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to purge videos: %w", err)
	}

	log.Printf("Purged %d video(s) older than %s", removed, cutoff.Format(time.RFC3339))
	return nil
}
