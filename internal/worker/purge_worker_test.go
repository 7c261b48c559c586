package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/facelessreel/api/internal/service"
	"github.com/facelessreel/api/internal/storage"
)

type purgeStore struct {
	storage.VideoStore
	before  time.Time
	removed int
	err     error
}

func (p *purgeStore) Purge(ctx context.Context, before time.Time) (int, error) {
	p.before = before
	return p.removed, p.err
}

func TestPurgeWorker_ProcessTask(t *testing.T) {
	store := &purgeStore{removed: 3}
	w := NewPurgeWorker(store)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	task, err := service.NewPurgeTask(24 * time.Hour)
	if err != nil {
		t.Fatalf("NewPurgeTask: %v", err)
	}
	if err := w.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask: %v", err)
	}
	if want := now.Add(-24 * time.Hour); !store.before.Equal(want) {
		t.Errorf("cutoff = %v, want %v", store.before, want)
	}
}

func TestPurgeWorker_BadPayloadSkipsRetry(t *testing.T) {
	w := NewPurgeWorker(&purgeStore{})

	tests := []struct {
		name    string
		payload string
	}{
		{"not json", "{"},
		{"zero retention", `{"retentionSeconds":0}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := w.ProcessTask(context.Background(), asynq.NewTask(service.TaskTypePurge, []byte(tt.payload)))
			if !errors.Is(err, asynq.SkipRetry) {
				t.Fatalf("err = %v, want SkipRetry", err)
			}
		})
	}
}

func TestPurgeWorker_StoreError(t *testing.T) {
	w := NewPurgeWorker(&purgeStore{err: errors.New("bucket unavailable")})
	task, _ := service.NewPurgeTask(time.Hour)
	if err := w.ProcessTask(context.Background(), task); err == nil {
		t.Fatal("expected error")
	}
}
