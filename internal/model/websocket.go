package model

// WebSocket message types
const (
	WSMessageTypeStatus   = "status"
	WSMessageTypeProgress = "progress"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSStatusMessage carries the job snapshot sent when a client subscribes
type WSStatusMessage struct {
	Type string  `json:"type"`
	Job  JobView `json:"job"`
}

// WSProgressMessage represents a progress update
type WSProgressMessage struct {
	Type     string    `json:"type"`
	JobID    string    `json:"jobId"`
	Progress int       `json:"progress"`
	Status   JobStatus `json:"status"`
	Message  string    `json:"message,omitempty"`
}

// WSCompleteMessage represents job completion
type WSCompleteMessage struct {
	Type     string `json:"type"`
	JobID    string `json:"jobId"`
	VideoURL string `json:"videoUrl"`
}

// WSErrorMessage represents an error
type WSErrorMessage struct {
	Type  string  `json:"type"`
	JobID string  `json:"jobId"`
	Error WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
