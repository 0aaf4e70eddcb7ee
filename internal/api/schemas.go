package api

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/enph353/labeller/internal/labels"
	"github.com/enph353/labeller/internal/store"
	"github.com/enph353/labeller/internal/workspace"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type VideosResponse struct {
	Videos []workspace.VideoInfo `json:"videos"`
}

type OpenVideoRequest struct {
	Path string `json:"path"`
}

type OpenVideoResponse struct {
	JobID string `json:"job_id"`
}

// LabelRequest carries the label on screen. An absent "label" means the
// operator changed nothing; an explicit null means no plate visible.
type LabelRequest struct {
	Label json.RawMessage `json:"label"`
}

type PlateRequest struct {
	Text string `json:"text"`
}

type ViewResponse struct {
	Video      string            `json:"video"`
	Policy     string            `json:"policy"`
	Slots      int               `json:"slots"`
	Cursor     int               `json:"cursor"`
	Total      int               `json:"total"`
	Frame      int               `json:"frame"`
	Label      json.RawMessage   `json:"label"`
	Labeled    bool              `json:"labeled"`
	CanAdvance bool              `json:"can_advance"`
	CanRetreat bool              `json:"can_retreat"`
	Plates     map[string]string `json:"plates"`
}

type ScanResponse struct {
	ID        string  `json:"id"`
	VideoPath string  `json:"video_path"`
	Threshold float64 `json:"threshold"`
	Status    string  `json:"status"`
	Frames    int     `json:"frames"`
	Total     int     `json:"total"`
	Keyframes []int   `json:"keyframes,omitempty"`
	Error     string  `json:"error,omitempty"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

type ScansResponse struct {
	Scans []ScanResponse `json:"scans"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func ViewToResponse(video string, policy labels.Policy, v labels.View) (ViewResponse, error) {
	label, err := policy.Encode(v.Label)
	if err != nil {
		return ViewResponse{}, err
	}
	if !v.Labeled {
		label = json.RawMessage("null")
	}
	plates := make(map[string]string, len(v.Plates))
	for slot, text := range v.Plates {
		plates[strconv.Itoa(slot)] = text
	}
	return ViewResponse{
		Video:      video,
		Policy:     string(policy.Kind()),
		Slots:      policy.Slots(),
		Cursor:     v.Cursor,
		Total:      v.Total,
		Frame:      v.Frame,
		Label:      label,
		Labeled:    v.Labeled,
		CanAdvance: v.CanAdvance,
		CanRetreat: v.CanRetreat,
		Plates:     plates,
	}, nil
}

func ScanToResponse(s *store.Scan) ScanResponse {
	return ScanResponse{
		ID:        s.ID,
		VideoPath: s.VideoPath,
		Threshold: s.Threshold,
		Status:    s.Status,
		Frames:    s.Frames,
		Total:     s.Total,
		Keyframes: s.Keyframes,
		Error:     s.Error,
		CreatedAt: s.CreatedAt.Format(time.RFC3339),
		UpdatedAt: s.UpdatedAt.Format(time.RFC3339),
	}
}
