package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalVideoStore keeps videos as <dir>/<jobID>.mp4.
type LocalVideoStore struct {
	dir string
}

// NewLocalVideoStore creates the output directory if needed.
func NewLocalVideoStore(dir string) (*LocalVideoStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	return &LocalVideoStore{dir: dir}, nil
}

// Path returns where the video for jobID lives.
func (s *LocalVideoStore) Path(jobID string) string {
	return filepath.Join(s.dir, videoName(jobID))
}

func (s *LocalVideoStore) Save(ctx context.Context, jobID, src string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dst := s.Path(jobID)
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	// Rename fails across filesystems. Copy through a temp file instead.
	tmp := dst + ".part"
	if err := copyFile(src, tmp); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to store video: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to store video: %w", err)
	}
	return nil
}

func (s *LocalVideoStore) Open(ctx context.Context, jobID string) (*Video, error) {
	f, err := os.Open(s.Path(jobID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrArtifactMissing
		}
		return nil, fmt.Errorf("failed to open video: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat video: %w", err)
	}

	return &Video{Body: f, Size: info.Size(), ModTime: info.ModTime()}, nil
}

func (s *LocalVideoStore) Purge(ctx context.Context, before time.Time) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list output dir: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".mp4") {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(before) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			log.Printf("[Storage] Failed to remove %s: %v", entry.Name(), err)
			continue
		}
		removed++
	}
	return removed, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
