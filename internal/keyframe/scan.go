package keyframe

import (
	"context"
	"time"
)

// Progress is reported after every step of a scan.
type Progress struct {
	Position  int `json:"position"`
	Total     int `json:"total"`
	Keyframes int `json:"keyframes"`
}

// Percent is the scan progress in [0, 100]. An unknown total reports 0.
func (p Progress) Percent() int {
	if p.Total <= 0 {
		return 0
	}
	pct := p.Position * 100 / p.Total
	if pct > 100 {
		pct = 100
	}
	return pct
}

// Result is the outcome of a scan.
type Result struct {
	Keyframes []int
	// Cancelled is set when the context ended the scan; Keyframes is then
	// the valid prefix found before cancellation.
	Cancelled bool
	// ReadErr is the stream failure that ended the scan early, if any.
	ReadErr  error
	Frames   int
	Duration time.Duration
}

// Scan drives sel to completion, calling onProgress after every step and
// checking ctx between steps. Cancellation is not an error: the keyframes
// found so far are returned with Cancelled set. The only error is
// ErrNoFrames when the source has no frame at all.
func Scan(ctx context.Context, sel *Selector, onProgress func(Progress)) (*Result, error) {
	start := time.Now()

	for {
		if err := ctx.Err(); err != nil {
			return &Result{
				Keyframes: sel.Keyframes(),
				Cancelled: true,
				Frames:    sel.Position(),
				Duration:  time.Since(start),
			}, nil
		}

		res, err := sel.Step()
		if err != nil {
			return nil, err
		}

		if onProgress != nil {
			onProgress(Progress{
				Position:  res.Position,
				Total:     sel.Total(),
				Keyframes: len(sel.keyframes),
			})
		}

		if res.Kind == StepFinished {
			return &Result{
				Keyframes: sel.Keyframes(),
				ReadErr:   sel.Err(),
				Frames:    sel.Position(),
				Duration:  time.Since(start),
			}, nil
		}
	}
}
