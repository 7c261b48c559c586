package registry

import "github.com/facelessreel/api/internal/model"

// Progress builds a patch that moves a job to processing at the given
// checkpoint.
func Progress(progress int, message string) Patch {
	status := model.JobStatusProcessing
	return Patch{Status: &status, Progress: &progress, Message: &message}
}

// Complete builds the terminal success patch.
func Complete(message, videoRef string) Patch {
	status := model.JobStatusCompleted
	progress := 100
	return Patch{Status: &status, Progress: &progress, Message: &message, VideoRef: &videoRef}
}

// Fail builds the terminal failure patch. Progress is reset to 0.
func Fail(message string) Patch {
	status := model.JobStatusFailed
	progress := 0
	return Patch{Status: &status, Progress: &progress, Message: &message}
}
