package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/facelessreel/api/internal/config"
	"github.com/facelessreel/api/internal/media"
	"github.com/facelessreel/api/internal/model"
	"github.com/facelessreel/api/internal/registry"
	"github.com/facelessreel/api/internal/storage"
	"github.com/facelessreel/api/pkg/response"
)

// Stage identifies a pipeline step in failures
type Stage string

const (
	StageSetup   Stage = "setup"
	StageScript  Stage = "script"
	StageVoice   Stage = "voice"
	StageVisuals Stage = "visuals"
	StageCompose Stage = "compose"
	StageStore   Stage = "store"
)

var stageLabels = map[Stage]string{
	StageSetup:   "Job setup",
	StageScript:  "Script generation",
	StageVoice:   "Voiceover generation",
	StageVisuals: "Visual generation",
	StageCompose: "Video composition",
	StageStore:   "Video storage",
}

// Label returns the human-readable stage name used in job messages.
func (s Stage) Label() string {
	if label, ok := stageLabels[s]; ok {
		return label
	}
	return string(s)
}

// Progress checkpoints and messages, in pipeline order
const (
	progressScript  = 10
	progressVoice   = 30
	progressVisuals = 50
	progressCompose = 80

	msgScript   = "Generating script..."
	msgVoice    = "Generating voiceover..."
	msgVisuals  = "Generating visuals..."
	msgCompose  = "Composing final video..."
	msgComplete = "Video ready!"
)

const maxFailureMessage = 200

// defaultVisual replaces an empty scene description.
const defaultVisual = "inspiring background"

// StageError is a terminal pipeline failure.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage.Label(), e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// VisualFailure records a scene whose image was replaced by the fallback.
type VisualFailure struct {
	Index int
	Err   error
}

// Outcome summarizes one pipeline run.
type Outcome struct {
	JobID          string
	Images         int
	VisualFailures []VisualFailure
}

// ScriptGenerator writes the reel script
type ScriptGenerator interface {
	GenerateScript(ctx context.Context, prompt string, duration int) (*model.Script, error)
}

// VoiceSynthesizer speaks the narration into an audio file
type VoiceSynthesizer interface {
	Synthesize(ctx context.Context, text, dest string) error
}

// ImageSynthesizer renders one scene description into an image file
type ImageSynthesizer interface {
	RenderVisual(ctx context.Context, description, dest string) error
}

// FallbackImager draws the placeholder for a failed scene
type FallbackImager interface {
	RenderFallback(dest string, index int) error
}

// VideoComposer assembles audio and images into the final video
type VideoComposer interface {
	Compose(ctx context.Context, req media.ComposeRequest) error
}

// Notifier receives job state changes for live subscribers
type Notifier interface {
	BroadcastProgress(jobID string, progress int, status model.JobStatus, message string)
	BroadcastComplete(jobID, videoURL string)
	BroadcastError(jobID, code, message string)
}

// Stages bundles the collaborators called by the pipeline
type Stages struct {
	Script   ScriptGenerator
	Voice    VoiceSynthesizer
	Images   ImageSynthesizer
	Fallback FallbackImager
	Composer VideoComposer
}

// ReelWorker drives one job through script, voice, visuals and composition
type ReelWorker struct {
	registry *registry.Registry
	scratch  *storage.Scratch
	stages   Stages
	store    storage.VideoStore
	notifier Notifier
	cfg      config.PipelineConfig
}

// NewReelWorker creates a new reel worker
func NewReelWorker(reg *registry.Registry, scratch *storage.Scratch, stages Stages, store storage.VideoStore, notifier Notifier, cfg *config.PipelineConfig) *ReelWorker {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &ReelWorker{
		registry: reg,
		scratch:  scratch,
		stages:   stages,
		store:    store,
		notifier: notifier,
		cfg:      *cfg,
	}
}

// DownloadRef is the stable download reference of a job's video.
func DownloadRef(jobID string) string {
	return "/api/download/" + jobID
}

// Process runs the pipeline for job. Any terminal error is recorded on the
// job as failed and also returned.
func (w *ReelWorker) Process(ctx context.Context, job model.Job) (*Outcome, error) {
	outcome := &Outcome{JobID: job.ID}
	log.Printf("Job %s: Starting pipeline", job.ID)

	err := w.run(ctx, job, outcome)
	if err != nil {
		w.failJob(job.ID, failureMessage(ctx, err))
		return outcome, err
	}

	log.Printf("Job %s: Completed (%d images, %d fallbacks)", job.ID, outcome.Images, len(outcome.VisualFailures))
	return outcome, nil
}

func (w *ReelWorker) run(ctx context.Context, job model.Job, outcome *Outcome) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ws, err := w.scratch.Prepare(job.ID)
	if err != nil {
		return &StageError{Stage: StageSetup, Err: err}
	}
	defer func() {
		if err := ws.Clean(); err != nil {
			log.Printf("Job %s: cleanup failed: %v", job.ID, err)
		}
	}()

	// Step 1: Script
	if err := w.updateProgress(ctx, job.ID, progressScript, msgScript); err != nil {
		return err
	}
	log.Printf("Job %s: Generating script", job.ID)
	script, err := w.generateScript(ctx, job)
	if err != nil {
		return &StageError{Stage: StageScript, Err: err}
	}

	// Step 2: Voiceover
	if err := w.updateProgress(ctx, job.ID, progressVoice, msgVoice); err != nil {
		return err
	}
	log.Printf("Job %s: Generating voiceover", job.ID)
	if err := w.synthesize(ctx, script.Narration(), ws.AudioPath()); err != nil {
		return &StageError{Stage: StageVoice, Err: err}
	}

	// Step 3: Visuals
	if err := w.updateProgress(ctx, job.ID, progressVisuals, msgVisuals); err != nil {
		return err
	}
	scenes := script.VisualScenes(job.Duration)
	log.Printf("Job %s: Generating %d visuals", job.ID, len(scenes))
	images, err := w.renderVisuals(ctx, job.ID, ws, scenes, outcome)
	if err != nil {
		return err
	}
	outcome.Images = len(images)

	// Step 4: Composition
	if err := w.updateProgress(ctx, job.ID, progressCompose, msgCompose); err != nil {
		return err
	}
	log.Printf("Job %s: Composing video", job.ID)
	if err := w.compose(ctx, ws, images, script); err != nil {
		return &StageError{Stage: StageCompose, Err: err}
	}
	if err := w.store.Save(ctx, job.ID, ws.VideoPath()); err != nil {
		return &StageError{Stage: StageStore, Err: err}
	}

	// Step 5: Done
	ref := DownloadRef(job.ID)
	if _, err := w.registry.Update(job.ID, registry.Complete(msgComplete, ref)); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	w.notifier.BroadcastComplete(job.ID, ref)
	return nil
}

func (w *ReelWorker) generateScript(ctx context.Context, job model.Job) (*model.Script, error) {
	sctx, cancel := context.WithTimeout(ctx, w.cfg.ScriptTimeout)
	defer cancel()

	script, err := w.stages.Script.GenerateScript(sctx, job.Prompt, job.Duration)
	if err != nil {
		return nil, err
	}
	if script == nil {
		return nil, errors.New("empty script")
	}
	return script, nil
}

func (w *ReelWorker) synthesize(ctx context.Context, text, dest string) error {
	vctx, cancel := context.WithTimeout(ctx, w.cfg.VoiceTimeout)
	defer cancel()
	return w.stages.Voice.Synthesize(vctx, text, dest)
}

// renderVisuals produces one image per scene. A scene whose image cannot be
// generated gets the fallback image and is recorded in outcome.
func (w *ReelWorker) renderVisuals(ctx context.Context, jobID string, ws *storage.Workspace, scenes []model.Scene, outcome *Outcome) ([]string, error) {
	images := make([]string, 0, len(scenes))

	for i, scene := range scenes {
		if i > 0 && w.cfg.VisualDelay > 0 {
			if err := sleepContext(ctx, w.cfg.VisualDelay); err != nil {
				return nil, err
			}
		}

		description := strings.TrimSpace(scene.Visual)
		if description == "" {
			description = defaultVisual
		}

		path := ws.ImagePath(i)
		if err := w.renderVisual(ctx, description, path); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("Job %s: Scene %d image failed, using fallback: %v", jobID, i+1, err)
			outcome.VisualFailures = append(outcome.VisualFailures, VisualFailure{Index: i, Err: err})

			if err := w.stages.Fallback.RenderFallback(path, i); err != nil {
				return nil, &StageError{Stage: StageVisuals, Err: err}
			}
		}
		images = append(images, path)
	}

	return images, nil
}

func (w *ReelWorker) renderVisual(ctx context.Context, description, dest string) error {
	ictx, cancel := context.WithTimeout(ctx, w.cfg.ImageTimeout)
	defer cancel()
	return w.stages.Images.RenderVisual(ictx, description, dest)
}

func (w *ReelWorker) compose(ctx context.Context, ws *storage.Workspace, images []string, script *model.Script) error {
	cctx, cancel := context.WithTimeout(ctx, w.cfg.ComposeTimeout)
	defer cancel()

	return w.stages.Composer.Compose(cctx, media.ComposeRequest{
		AudioPath:  ws.AudioPath(),
		ImagePaths: images,
		Caption:    script.Narration(),
		OutputPath: ws.VideoPath(),
	})
}

// updateProgress records a checkpoint. The context is checked first so a
// cancelled job stops at the stage boundary.
func (w *ReelWorker) updateProgress(ctx context.Context, jobID string, progress int, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	job, err := w.registry.Update(jobID, registry.Progress(progress, message))
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	w.notifier.BroadcastProgress(jobID, job.Progress, job.Status, job.Message)
	return nil
}

func (w *ReelWorker) failJob(jobID, message string) {
	log.Printf("Job %s: %s", jobID, message)
	if _, err := w.registry.Update(jobID, registry.Fail(message)); err != nil {
		log.Printf("Job %s: failed to mark job as failed: %v", jobID, err)
		return
	}
	w.notifier.BroadcastError(jobID, response.CodeJobFailed, message)
}

// failureMessage turns a pipeline error into the job's terminal message.
func failureMessage(ctx context.Context, err error) string {
	var msg string
	if ctx.Err() != nil {
		msg = "Job cancelled: " + context.Cause(ctx).Error()
	} else {
		var stageErr *StageError
		if errors.As(err, &stageErr) {
			msg = stageErr.Error()
		} else {
			msg = "Error: " + err.Error()
		}
	}

	if len(msg) > maxFailureMessage {
		cut := maxFailureMessage
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut] + "..."
	}
	return msg
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type nopNotifier struct{}

func (nopNotifier) BroadcastProgress(string, int, model.JobStatus, string) {}
func (nopNotifier) BroadcastComplete(string, string) {}
func (nopNotifier) BroadcastError(string, string, string) {}
