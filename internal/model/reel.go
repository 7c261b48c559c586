package model

import "time"

// GenerateRequest represents the request to start a reel job
type GenerateRequest struct {
	Prompt   string `json:"prompt" validate:"required,min=3,max=500"`
	Duration *int   `json:"duration" validate:"omitempty,min=1"`
}

// JobView is the status representation returned to clients
type JobView struct {
	JobID     string    `json:"job_id"`
	Status    JobStatus `json:"status"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message"`
	VideoURL  *string   `json:"video_url"`
	CreatedAt time.Time `json:"created_at"`
}
