package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"strings"
	"time"

	"github.com/facelessreel/api/internal/client"
)

// ObjectClient is the subset of the bucket client the store needs.
type ObjectClient interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	Download(ctx context.Context, key string) (*client.Object, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]client.ObjectInfo, error)
}

// ObjectVideoStore keeps videos in a bucket as <prefix>/<jobID>.mp4.
type ObjectVideoStore struct {
	client ObjectClient
	prefix string
}

// NewObjectVideoStore wraps a bucket client.
func NewObjectVideoStore(c ObjectClient, prefix string) *ObjectVideoStore {
	return &ObjectVideoStore{client: c, prefix: strings.Trim(prefix, "/")}
}

// Key returns the object key for jobID.
func (s *ObjectVideoStore) Key(jobID string) string {
	if s.prefix == "" {
		return videoName(jobID)
	}
	return path.Join(s.prefix, videoName(jobID))
}

// Save uploads the file and removes the local copy.
func (s *ObjectVideoStore) Save(ctx context.Context, jobID, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open video: %w", err)
	}
	defer f.Close()

	if _, err := s.client.Upload(ctx, s.Key(jobID), f, "video/mp4"); err != nil {
		return err
	}

	f.Close()
	if err := os.Remove(src); err != nil {
		log.Printf("[Storage] Failed to remove uploaded file %s: %v", src, err)
	}
	return nil
}

func (s *ObjectVideoStore) Open(ctx context.Context, jobID string) (*Video, error) {
	obj, err := s.client.Download(ctx, s.Key(jobID))
	if err != nil {
		if errors.Is(err, client.ErrObjectNotFound) {
			return nil, ErrArtifactMissing
		}
		return nil, err
	}
	return &Video{Body: obj.Body, Size: obj.Size, ModTime: obj.LastModified}, nil
}

func (s *ObjectVideoStore) Purge(ctx context.Context, before time.Time) (int, error) {
	listPrefix := ""
	if s.prefix != "" {
		listPrefix = s.prefix + "/"
	}

	objects, err := s.client.List(ctx, listPrefix)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, obj := range objects {
		if !strings.HasSuffix(obj.Key, ".mp4") || !obj.LastModified.Before(before) {
			continue
		}
		if err := s.client.Delete(ctx, obj.Key); err != nil {
			log.Printf("[Storage] Failed to delete %s: %v", obj.Key, err)
			continue
		}
		removed++
	}
	return removed, nil
}
