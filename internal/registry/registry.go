// Package registry holds the in-process table of reel jobs.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/facelessreel/api/internal/model"
)

var (
	// ErrJobNotFound is returned for unknown job ids.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobFinalized is returned when a completed or failed job is updated.
	ErrJobFinalized = errors.New("job already finalized")

	// ErrProgressRegression is returned when a patch lowers progress outside
	// the failed transition.
	ErrProgressRegression = errors.New("progress cannot decrease")

	// ErrInvalidTransition is returned for status edges the state machine
	// does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrVideoRefMismatch is returned when a video reference is set outside
	// the completed transition, or completed is reached without one.
	ErrVideoRefMismatch = errors.New("video reference must be set exactly on completion")
)

// Patch lists the fields to merge into a job. Nil fields are left unchanged.
type Patch struct {
	Status   *model.JobStatus
	Progress *int
	Message  *string
	VideoRef *string
}

// Registry is a concurrency-safe map of job id to record.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*model.Job
	now  func() time.Time
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		jobs: make(map[string]*model.Job),
		now:  time.Now,
	}
}

// Create inserts a queued job with a fresh id and returns its snapshot.
func (r *Registry) Create(prompt string, duration int) model.Job {
	job := &model.Job{
		ID:        uuid.New().String(),
		Status:    model.JobStatusQueued,
		Progress:  0,
		Message:   "Job queued",
		Prompt:    prompt,
		Duration:  duration,
		CreatedAt: r.now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for r.jobs[job.ID] != nil {
		job.ID = uuid.New().String()
	}
	r.jobs[job.ID] = job
	return snapshot(job)
}

// Get returns a copy of the job.
func (r *Registry) Get(id string) (model.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return model.Job{}, ErrJobNotFound
	}
	return snapshot(job), nil
}

// Update validates the patch against the current record and applies all of
// its fields at once. Readers see either the old or the new record.
func (r *Registry) Update(id string, p Patch) (model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return model.Job{}, ErrJobNotFound
	}
	if job.Status.IsTerminal() {
		return model.Job{}, fmt.Errorf("%w: %s is %s", ErrJobFinalized, id, job.Status)
	}

	next := *job
	if p.Status != nil {
		if *p.Status != job.Status && !isValidTransition(job.Status, *p.Status) {
			return model.Job{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, *p.Status)
		}
		next.Status = *p.Status
	}
	if p.Progress != nil {
		progress := *p.Progress
		if progress < 0 || progress > 100 {
			return model.Job{}, fmt.Errorf("progress %d out of range", progress)
		}
		if progress < job.Progress && next.Status != model.JobStatusFailed {
			return model.Job{}, fmt.Errorf("%w: %d -> %d", ErrProgressRegression, job.Progress, progress)
		}
		next.Progress = progress
	}
	if p.Message != nil {
		next.Message = *p.Message
	}
	if p.VideoRef != nil {
		next.VideoRef = *p.VideoRef
	}
	if (next.VideoRef != "") != (next.Status == model.JobStatusCompleted) {
		return model.Job{}, ErrVideoRefMismatch
	}

	now := r.now()
	if next.Status == model.JobStatusProcessing && next.StartedAt == nil {
		next.StartedAt = &now
	}
	if next.Status.IsTerminal() {
		next.FinishedAt = &now
	}

	*job = next
	return snapshot(job), nil
}

// Stats counts jobs per status.
func (r *Registry) Stats() map[model.JobStatus]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := map[model.JobStatus]int{
		model.JobStatusQueued:     0,
		model.JobStatusProcessing: 0,
		model.JobStatusCompleted:  0,
		model.JobStatusFailed:     0,
	}
	for _, job := range r.jobs {
		stats[job.Status]++
	}
	return stats
}

// snapshot copies the record including its pointer fields.
func snapshot(job *model.Job) model.Job {
	out := *job
	if job.StartedAt != nil {
		t := *job.StartedAt
		out.StartedAt = &t
	}
	if job.FinishedAt != nil {
		t := *job.FinishedAt
		out.FinishedAt = &t
	}
	return out
}

// isValidTransition enforces the allowed job state machine edges.
func isValidTransition(from, to model.JobStatus) bool {
	switch from {
	case model.JobStatusQueued:
		return to == model.JobStatusProcessing || to == model.JobStatusFailed
	case model.JobStatusProcessing:
		return to == model.JobStatusCompleted || to == model.JobStatusFailed
	default:
		return false
	}
}
