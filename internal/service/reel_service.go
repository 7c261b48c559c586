package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/facelessreel/api/internal/model"
	"github.com/facelessreel/api/internal/registry"
	"github.com/facelessreel/api/internal/storage"
)

// ErrVideoNotReady is returned when a download is requested before the job
// completed.
var ErrVideoNotReady = errors.New("video not ready")

// ValidationError rejects a request before any job is created.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Dispatcher runs a created job in the background.
type Dispatcher interface {
	Start(job model.Job) error
}

// ReelService handles reel job submission, status and download
type ReelService struct {
	registry        *registry.Registry
	dispatcher      Dispatcher
	store           storage.VideoStore
	defaultDuration int
	maxDuration     int
}

// NewReelService creates a new reel service
func NewReelService(reg *registry.Registry, dispatcher Dispatcher, store storage.VideoStore, defaultDuration, maxDuration int) *ReelService {
	return &ReelService{
		registry:        reg,
		dispatcher:      dispatcher,
		store:           store,
		defaultDuration: defaultDuration,
		maxDuration:     maxDuration,
	}
}

// Submit validates the request, records a queued job and starts it without
// waiting. A nil duration takes the configured default.
func (s *ReelService) Submit(ctx context.Context, prompt string, duration *int) (model.Job, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return model.Job{}, &ValidationError{Field: "prompt", Message: "prompt is required"}
	}

	seconds := s.defaultDuration
	if duration != nil {
		seconds = *duration
	}
	if seconds < 1 || seconds > s.maxDuration {
		return model.Job{}, &ValidationError{
			Field:   "duration",
			Message: fmt.Sprintf("duration must be between 1 and %d seconds", s.maxDuration),
		}
	}

	job := s.registry.Create(prompt, seconds)
	if err := s.dispatcher.Start(job); err != nil {
		if _, ferr := s.registry.Update(job.ID, registry.Fail("Error: "+err.Error())); ferr != nil {
			log.Printf("Job %s: failed to record start error: %v", job.ID, ferr)
		}
		return model.Job{}, fmt.Errorf("failed to start job: %w", err)
	}

	log.Printf("Job %s: queued (%ds)", job.ID, seconds)
	return job, nil
}

// Status returns the current snapshot of a job.
func (s *ReelService) Status(ctx context.Context, jobID string) (model.Job, error) {
	return s.registry.Get(jobID)
}

// Download opens the final video of a completed job. Callers close the body.
func (s *ReelService) Download(ctx context.Context, jobID string) (*storage.Video, error) {
	job, err := s.registry.Get(jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusCompleted {
		return nil, ErrVideoNotReady
	}

	video, err := s.store.Open(ctx, jobID)
	if err != nil {
		if errors.Is(err, storage.ErrArtifactMissing) {
			log.Printf("Job %s: completed but video is missing from storage", jobID)
		}
		return nil, err
	}
	return video, nil
}

// Stats counts jobs per status.
func (s *ReelService) Stats() map[model.JobStatus]int {
	return s.registry.Stats()
}
