package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/enph353/labeller/internal/labels"
)

// DefaultSuffix is appended to the video path to name its label file.
const DefaultSuffix = ".json"

// FileStore keeps labels in a JSON file next to the video.
type FileStore struct {
	suffix string
}

func NewFileStore(suffix string) *FileStore {
	if suffix == "" {
		suffix = DefaultSuffix
	}
	return &FileStore{suffix: suffix}
}

// Path is the label file of video.
func (s *FileStore) Path(video string) string {
	return video + s.suffix
}

func (s *FileStore) Load(ctx context.Context, video string) (*labels.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path(video))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read label file: %w", err)
	}
	doc, err := labels.ParseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Path(video), err)
	}
	return doc, nil
}

// Save replaces the label file atomically: the document is written to a
// temporary file in the same directory and renamed over the old one.
func (s *FileStore) Save(ctx context.Context, video string, doc *labels.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode labels: %w", err)
	}
	data = append(data, '\n')

	path := s.Path(video)
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp label file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write label file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync label file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close label file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("chmod label file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace label file: %w", err)
	}
	return nil
}
