package workspace

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/enph353/labeller/internal/keyframe"
)

// Scan states. A completed or cancelled scan leaves a session open.
const (
	StateIdle      = "idle"
	StateRunning   = "running"
	StateCompleted = "completed"
	StateCancelled = "cancelled"
	StateFailed    = "failed"
)

// ScanStatus describes the most recent scan.
type ScanStatus struct {
	JobID      string     `json:"job_id,omitempty"`
	Video      string     `json:"video,omitempty"`
	State      string     `json:"state"`
	Position   int        `json:"position"`
	Total      int        `json:"total"`
	Keyframes  int        `json:"keyframes"`
	Percent    int        `json:"percent"`
	Error      string     `json:"error,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// scanJob tracks one scan goroutine. Progress counters are atomics so the
// status can be read without blocking the scan.
type scanJob struct {
	id        string
	video     string
	threshold float64
	cancel    context.CancelFunc
	done      chan struct{}
	started   time.Time

	position  atomic.Int64
	total     atomic.Int64
	keyframes atomic.Int64

	mu       sync.Mutex
	state    string
	errMsg   string
	finished time.Time
}

func newScanJob(id, video string, threshold float64, cancel context.CancelFunc) *scanJob {
	return &scanJob{
		id:        id,
		video:     video,
		threshold: threshold,
		cancel:    cancel,
		done:      make(chan struct{}),
		started:   time.Now(),
		state:     StateRunning,
	}
}

func (j *scanJob) progress(p keyframe.Progress) {
	j.position.Store(int64(p.Position))
	j.total.Store(int64(p.Total))
	j.keyframes.Store(int64(p.Keyframes))
}

func (j *scanJob) finish(state, errMsg string) {
	j.mu.Lock()
	j.state = state
	j.errMsg = errMsg
	j.finished = time.Now()
	j.mu.Unlock()
	close(j.done)
}

func (j *scanJob) running() bool {
	select {
	case <-j.done:
		return false
	default:
		return true
	}
}

func (j *scanJob) status() ScanStatus {
	j.mu.Lock()
	defer j.mu.Unlock()

	p := keyframe.Progress{
		Position:  int(j.position.Load()),
		Total:     int(j.total.Load()),
		Keyframes: int(j.keyframes.Load()),
	}
	started := j.started
	st := ScanStatus{
		JobID:     j.id,
		Video:     j.video,
		State:     j.state,
		Position:  p.Position,
		Total:     p.Total,
		Keyframes: p.Keyframes,
		Percent:   p.Percent(),
		Error:     j.errMsg,
		StartedAt: &started,
	}
	if !j.finished.IsZero() {
		finished := j.finished
		st.FinishedAt = &finished
	}
	if j.state == StateCompleted {
		st.Percent = 100
	}
	return st
}
