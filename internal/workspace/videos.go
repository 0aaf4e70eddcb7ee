package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// VideoExtensions are the recording formats offered by ListVideos.
var VideoExtensions = map[string]bool{
	".avi": true,
	".mp4": true,
	".mov": true,
	".mkv": true,
}

func IsVideoFile(filename string) bool {
	return VideoExtensions[strings.ToLower(filepath.Ext(filename))]
}

// VideoInfo is one recording under the video directory.
type VideoInfo struct {
	// Path is relative to the video directory and can be passed to OpenVideo.
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
	Labelled bool      `json:"labelled"`
}

// ListVideos walks the video directory for recordings, skipping hidden
// directories. Labelled is set when the store already holds labels for a
// recording, or holds a label file it cannot read.
func (s *Service) ListVideos(ctx context.Context) ([]VideoInfo, error) {
	if s.videoDir == "" {
		return nil, fmt.Errorf("%w: no video directory configured", ErrVideoNotFound)
	}
	root, err := filepath.Abs(s.videoDir)
	if err != nil {
		return nil, err
	}

	var videos []VideoInfo
	err = filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if p != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !IsVideoFile(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		doc, loadErr := s.store.Load(ctx, p)
		videos = append(videos, VideoInfo{
			Path:     rel,
			Size:     info.Size(),
			Modified: info.ModTime().UTC(),
			Labelled: doc != nil || loadErr != nil,
		})
		return nil
	})
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrVideoNotFound, s.videoDir)
	}
	if err != nil {
		return nil, err
	}

	sort.Slice(videos, func(i, j int) bool { return videos[i].Path < videos[j].Path })
	s.logger.Debug("listed videos", "dir", root, "count", len(videos))
	return videos, nil
}
