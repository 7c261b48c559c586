package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrArtifactMissing is returned when no video exists for a job id.
var ErrArtifactMissing = errors.New("video file not found")

// Video is an open final video.
type Video struct {
	Body    io.ReadCloser
	Size    int64
	ModTime time.Time
}

// VideoStore keeps one final video per job id.
type VideoStore interface {
	// Save moves or copies the file at src into the store under jobID.
	Save(ctx context.Context, jobID, src string) error
	// Open returns the video for jobID or ErrArtifactMissing.
	Open(ctx context.Context, jobID string) (*Video, error)
	// Purge deletes videos last modified before the cutoff and reports how
	// many were removed.
	Purge(ctx context.Context, before time.Time) (int, error)
}

func videoName(jobID string) string {
	return jobID + ".mp4"
}
