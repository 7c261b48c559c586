package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sync"

	"github.com/facelessreel/api/internal/model"
	"github.com/facelessreel/api/internal/registry"
	"github.com/facelessreel/api/pkg/response"
)

var (
	ErrJobAlreadyRunning = errors.New("job already running")
	ErrRunnerClosed      = errors.New("runner is shutting down")
)

// Processor runs one job to a terminal state.
type Processor interface {
	Process(ctx context.Context, job model.Job) (*Outcome, error)
}

// Runner starts one supervised goroutine per job.
type Runner struct {
	processor Processor
	registry  *registry.Registry
	notifier  Notifier

	ctx    context.Context
	cancel context.CancelCauseFunc

	mu      sync.Mutex
	running map[string]struct{}
	closed  bool
	wg      sync.WaitGroup
}

// NewRunner creates a runner. Jobs are cancelled when Shutdown is called.
func NewRunner(processor Processor, reg *registry.Registry, notifier Notifier) *Runner {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	ctx, cancel := context.WithCancelCause(context.Background())
	return &Runner{
		processor: processor,
		registry:  reg,
		notifier:  notifier,
		ctx:       ctx,
		cancel:    cancel,
		running:   make(map[string]struct{}),
	}
}

// Start runs job in the background and returns immediately.
func (r *Runner) Start(job model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRunnerClosed
	}
	if _, ok := r.running[job.ID]; ok {
		return ErrJobAlreadyRunning
	}
	r.running[job.ID] = struct{}{}

	r.wg.Add(1)
	go r.run(job)
	return nil
}

// Running reports how many jobs are in flight.
func (r *Runner) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.running)
}

func (r *Runner) run(job model.Job) {
	defer r.wg.Done()
	defer func() {
		r.mu.Lock()
		delete(r.running, job.ID)
		r.mu.Unlock()
	}()
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("Job %s: panic: %v\n%s", job.ID, rec, debug.Stack())
			msg := fmt.Sprintf("Internal error: %v", rec)
			if _, err := r.registry.Update(job.ID, registry.Fail(msg)); err != nil {
				log.Printf("Job %s: failed to record panic: %v", job.ID, err)
				return
			}
			r.notifier.BroadcastError(job.ID, response.CodeJobFailed, msg)
		}
	}()

	if _, err := r.processor.Process(r.ctx, job); err != nil {
		log.Printf("Job %s: pipeline stopped: %v", job.ID, err)
	}
}

// Shutdown cancels in-flight jobs and waits for them to finish or for ctx
// to expire.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.cancel(errors.New("server shutting down"))

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
