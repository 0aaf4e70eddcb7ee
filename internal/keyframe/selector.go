package keyframe

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/enph353/labeller/internal/frames"
)

// DefaultThreshold is the similarity at or below which a frame is picked.
const DefaultThreshold = 0.95

var (
	ErrNoFrames         = errors.New("couldn't read any frames")
	ErrInvalidThreshold = errors.New("threshold must be in (0, 1)")
)

// StepKind says what a single Step of the Selector did.
type StepKind int

const (
	// StepContinue means a candidate was compared and was too similar.
	StepContinue StepKind = iota
	// StepKeyframe means Index was picked as a keyframe.
	StepKeyframe
	// StepFinished means the source is exhausted; further Steps are no-ops.
	StepFinished
)

func (k StepKind) String() string {
	switch k {
	case StepContinue:
		return "continue"
	case StepKeyframe:
		return "keyframe"
	case StepFinished:
		return "finished"
	default:
		return fmt.Sprintf("StepKind(%d)", int(k))
	}
}

// StepResult reports the outcome of one Step.
type StepResult struct {
	Kind StepKind
	// Index of the picked keyframe when Kind is StepKeyframe.
	Index int
	// Position is the number of frames read so far.
	Position int
	// Similarity between the last keyframe and the candidate, when one was compared.
	Similarity float64
}

// Observer is notified as the Selector scans. Implementations must be cheap.
type Observer interface {
	FrameCompared(similarity float64)
	KeyframeFound(index int)
}

// Option configures a Selector.
type Option func(*Selector)

func WithThreshold(t float64) Option {
	return func(s *Selector) { s.threshold = t }
}

func WithComparator(c Comparator) Option {
	return func(s *Selector) { s.cmp = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Selector) { s.logger = l }
}

func WithObserver(o Observer) Option {
	return func(s *Selector) { s.observer = o }
}

// Selector performs a greedy forward scan of a frame source. Starting from
// frame 0, each candidate is compared with the last picked keyframe and the
// first one whose similarity is at or below the threshold is picked next.
// The scan is driven one frame at a time with Step, so the caller decides
// when to report progress and when to stop.
type Selector struct {
	src       frames.Source
	cmp       Comparator
	threshold float64
	logger    *slog.Logger
	observer  Observer

	ref       *frames.Frame
	keyframes []int
	position  int
	finished  bool
	endErr    error
}

// NewSelector creates a Selector reading from src.
func NewSelector(src frames.Source, opts ...Option) (*Selector, error) {
	s := &Selector{
		src:       src,
		cmp:       ErosionComparator{},
		threshold: DefaultThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.threshold <= 0 || s.threshold >= 1 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidThreshold, s.threshold)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s, nil
}

// Step reads and classifies one frame. The first Step reads frame 0 and
// fails with ErrNoFrames if the source is empty; that is the only error Step
// returns. A read or compare failure later in the stream ends the scan like
// end of stream does, keeping the keyframes found so far.
func (s *Selector) Step() (StepResult, error) {
	if s.finished {
		return StepResult{Kind: StepFinished, Position: s.position}, nil
	}

	if s.ref == nil {
		first, err := s.src.ReadNext()
		if err != nil {
			s.finished = true
			if !errors.Is(err, io.EOF) {
				return StepResult{}, fmt.Errorf("%w: %v", ErrNoFrames, err)
			}
			return StepResult{}, ErrNoFrames
		}
		s.ref = first
		s.position = 1
		s.keyframes = []int{first.Index}
		s.notifyKeyframe(first.Index)
		return StepResult{Kind: StepKeyframe, Index: first.Index, Position: s.position, Similarity: 1}, nil
	}

	if !s.src.IsOpen() {
		return s.finish(io.EOF), nil
	}
	candidate, err := s.src.ReadNext()
	if err != nil {
		return s.finish(err), nil
	}
	s.position++

	sim, err := s.cmp.Similarity(s.ref, candidate)
	if err != nil {
		return s.finish(fmt.Errorf("compare frame %d: %w", candidate.Index, err)), nil
	}
	if s.observer != nil {
		s.observer.FrameCompared(sim)
	}

	if sim > s.threshold {
		return StepResult{Kind: StepContinue, Position: s.position, Similarity: sim}, nil
	}

	s.ref = candidate
	s.keyframes = append(s.keyframes, candidate.Index)
	s.notifyKeyframe(candidate.Index)
	s.logger.Debug("keyframe picked", "index", candidate.Index, "similarity", sim)
	return StepResult{Kind: StepKeyframe, Index: candidate.Index, Position: s.position, Similarity: sim}, nil
}

func (s *Selector) finish(err error) StepResult {
	s.finished = true
	if !errors.Is(err, io.EOF) {
		s.endErr = err
		s.logger.Warn("frame read failed, treating as end of stream",
			"position", s.position,
			"keyframes", len(s.keyframes),
			"error", err,
		)
	}
	return StepResult{Kind: StepFinished, Position: s.position}
}

func (s *Selector) notifyKeyframe(index int) {
	if s.observer != nil {
		s.observer.KeyframeFound(index)
	}
}

// Keyframes returns a copy of the keyframe indices picked so far. The
// sequence starts at the first frame and is strictly increasing.
func (s *Selector) Keyframes() []int {
	out := make([]int, len(s.keyframes))
	copy(out, s.keyframes)
	return out
}

// Total is the frame count reported by the source.
func (s *Selector) Total() int {
	return s.src.Len()
}

// Position is the number of frames read so far.
func (s *Selector) Position() int {
	return s.position
}

func (s *Selector) Finished() bool {
	return s.finished
}

// Err returns the read failure that ended the scan early, if any.
func (s *Selector) Err() error {
	return s.endErr
}

func (s *Selector) Threshold() float64 {
	return s.threshold
}
