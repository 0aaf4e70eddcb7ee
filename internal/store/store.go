// Package store persists label documents and scan history.
package store

import (
	"context"
	"time"

	"github.com/enph353/labeller/internal/labels"
)

// Store loads and saves the label document of a video.
type Store interface {
	// Load returns the stored document, or nil with no error when the video
	// has never been labelled.
	Load(ctx context.Context, video string) (*labels.Document, error)
	Save(ctx context.Context, video string, doc *labels.Document) error
}

// Scan statuses.
const (
	ScanRunning   = "running"
	ScanCompleted = "completed"
	ScanCancelled = "cancelled"
	ScanFailed    = "failed"
)

// Scan is one run of the keyframe selector over a video.
type Scan struct {
	ID        string    `json:"id"`
	VideoPath string    `json:"video_path"`
	Threshold float64   `json:"threshold"`
	Status    string    `json:"status"`
	Frames    int       `json:"frames"`
	Total     int       `json:"total"`
	Keyframes []int     `json:"keyframes,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScanLog records scan history.
type ScanLog interface {
	CreateScan(ctx context.Context, scan *Scan) error
	FinishScan(ctx context.Context, scan *Scan) error
	GetScan(ctx context.Context, id string) (*Scan, error)
	ListScans(ctx context.Context, limit int) ([]*Scan, error)
}
