package model

import "time"

// JobStatus is the lifecycle state of a reel job
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further mutation is allowed in this state.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job is the registry record of one reel generation request
type Job struct {
	ID         string     `json:"id"`
	Status     JobStatus  `json:"status"`
	Progress   int        `json:"progress"`
	Message    string     `json:"message"`
	VideoRef   string     `json:"videoRef,omitempty"`
	Prompt     string     `json:"prompt"`
	Duration   int        `json:"duration"`
	CreatedAt  time.Time  `json:"createdAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// View converts the record into its API representation.
func (j Job) View() JobView {
	view := JobView{
		JobID:     j.ID,
		Status:    j.Status,
		Progress:  j.Progress,
		Message:   j.Message,
		CreatedAt: j.CreatedAt,
	}
	if j.VideoRef != "" {
		ref := j.VideoRef
		view.VideoURL = &ref
	}
	return view
}

// ReelJobPayload contains the data the pipeline needs for one job
type ReelJobPayload struct {
	Prompt   string `json:"prompt"`
	Duration int    `json:"duration"`
}

// Payload extracts the pipeline input from the record.
func (j Job) Payload() ReelJobPayload {
	return ReelJobPayload{
		Prompt:   j.Prompt,
		Duration: j.Duration,
	}
}
