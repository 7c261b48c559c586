// Package storage addresses the per-job scratch files and the completed
// videos, both keyed by job id.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// Scratch is the root of the per-job working directories.
type Scratch struct {
	root string
}

// NewScratch returns a scratch area rooted at dir.
func NewScratch(dir string) *Scratch {
	return &Scratch{root: dir}
}

// Workspace holds the intermediate artifacts of one job.
type Workspace struct {
	Dir string
}

// Prepare creates the working directory for a job.
func (s *Scratch) Prepare(jobID string) (*Workspace, error) {
	dir := filepath.Join(s.root, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	return &Workspace{Dir: dir}, nil
}

func (w *Workspace) AudioPath() string {
	return filepath.Join(w.Dir, "audio.mp3")
}

func (w *Workspace) ImagePath(index int) string {
	return filepath.Join(w.Dir, fmt.Sprintf("img_%d.jpg", index))
}

func (w *Workspace) VideoPath() string {
	return filepath.Join(w.Dir, "final.mp4")
}

// Clean removes the working directory and everything in it.
func (w *Workspace) Clean() error {
	return os.RemoveAll(w.Dir)
}
