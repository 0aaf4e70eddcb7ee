package labels

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

var (
	ErrNoSession        = errors.New("no video open")
	ErrEmptyKeyframes   = errors.New("keyframe sequence is empty")
	ErrInvalidKeyframes = errors.New("keyframes must start at 0 and strictly increase")
	ErrOutOfBounds      = errors.New("no keyframe in that direction")
	ErrAtLastFrame      = fmt.Errorf("%w: already at the last keyframe", ErrOutOfBounds)
	ErrAtFirstFrame     = fmt.Errorf("%w: already at the first keyframe", ErrOutOfBounds)
)

// View is what a host surface shows for the current keyframe.
type View struct {
	Cursor     int
	Total      int
	Frame      int
	Label      Value
	Labeled    bool
	CanAdvance bool
	CanRetreat bool
	Plates     map[int]string
}

// Session is the labelling state of one open video. It is not safe for
// concurrent use; callers serialise access.
//
// Invariants while open: 0 <= cursor < len(keyframes); every LabelMap key is
// a keyframe index; every stored Value is normalised by the policy.
type Session struct {
	policy Policy

	open      bool
	keyframes []int
	members   map[int]bool
	cursor    int
	labels    map[int]Value
	plates    map[int]string
	// detached holds frame labels loaded from disk for frames that are not
	// keyframes of this session. They are written back on save untouched.
	detached map[int]json.RawMessage
}

// NewSession creates a closed session using policy.
func NewSession(policy Policy) *Session {
	return &Session{policy: policy}
}

func (s *Session) Policy() Policy {
	return s.policy
}

func (s *Session) IsOpen() bool {
	return s.open
}

// Open starts labelling keyframes. Any previous state is discarded and the
// cursor starts on the first keyframe.
func (s *Session) Open(keyframes []int) error {
	if len(keyframes) == 0 {
		return ErrEmptyKeyframes
	}
	if keyframes[0] != 0 {
		return fmt.Errorf("%w: first keyframe is %d", ErrInvalidKeyframes, keyframes[0])
	}
	members := make(map[int]bool, len(keyframes))
	for i, k := range keyframes {
		if i > 0 && k <= keyframes[i-1] {
			return fmt.Errorf("%w: %d follows %d", ErrInvalidKeyframes, k, keyframes[i-1])
		}
		members[k] = true
	}

	s.keyframes = append([]int(nil), keyframes...)
	s.members = members
	s.cursor = 0
	s.labels = map[int]Value{}
	s.plates = map[int]string{}
	s.detached = map[int]json.RawMessage{}
	s.open = true
	return nil
}

// Close discards all state.
func (s *Session) Close() {
	*s = Session{policy: s.policy}
}

// Keyframes returns a copy of the keyframe sequence.
func (s *Session) Keyframes() []int {
	return append([]int(nil), s.keyframes...)
}

func (s *Session) Cursor() int {
	return s.cursor
}

// Current is the keyframe index under the cursor.
func (s *Session) Current() (int, error) {
	if !s.open {
		return 0, ErrNoSession
	}
	return s.keyframes[s.cursor], nil
}

// Advance records onScreen for the current keyframe and moves to the next
// one. At the last keyframe it fails with ErrAtLastFrame and changes nothing.
func (s *Session) Advance(onScreen Value) (View, error) {
	return s.move(+1, onScreen)
}

// Retreat records onScreen for the current keyframe and moves to the
// previous one. At the first keyframe it fails with ErrAtFirstFrame and
// changes nothing.
func (s *Session) Retreat(onScreen Value) (View, error) {
	return s.move(-1, onScreen)
}

func (s *Session) move(delta int, onScreen Value) (View, error) {
	if !s.open {
		return View{}, ErrNoSession
	}
	next := s.cursor + delta
	if next < 0 {
		return View{}, ErrAtFirstFrame
	}
	if next >= len(s.keyframes) {
		return View{}, ErrAtLastFrame
	}
	v, err := s.policy.Normalize(onScreen)
	if err != nil {
		return View{}, err
	}
	s.labels[s.keyframes[s.cursor]] = v
	s.cursor = next
	return s.view(), nil
}

// SetLabel records v for the current keyframe without moving.
func (s *Session) SetLabel(v Value) (View, error) {
	if !s.open {
		return View{}, ErrNoSession
	}
	norm, err := s.policy.Normalize(v)
	if err != nil {
		return View{}, err
	}
	s.labels[s.keyframes[s.cursor]] = norm
	return s.view(), nil
}

// Label returns the label of the current keyframe and whether it has one.
func (s *Session) Label() (Value, bool, error) {
	if !s.open {
		return Value{}, false, ErrNoSession
	}
	v, ok := s.labels[s.keyframes[s.cursor]]
	return v, ok, nil
}

// View returns the state of the current keyframe.
func (s *Session) View() (View, error) {
	if !s.open {
		return View{}, ErrNoSession
	}
	return s.view(), nil
}

func (s *Session) view() View {
	frame := s.keyframes[s.cursor]
	v, ok := s.labels[frame]
	return View{
		Cursor:     s.cursor,
		Total:      len(s.keyframes),
		Frame:      frame,
		Label:      v,
		Labeled:    ok,
		CanAdvance: s.cursor+1 < len(s.keyframes),
		CanRetreat: s.cursor > 0,
		Plates:     s.Plates(),
	}
}

// SetPlate stores the text of a plate slot. The registry is independent of
// the frame labels and takes effect immediately.
func (s *Session) SetPlate(slot int, text string) error {
	if !s.open {
		return ErrNoSession
	}
	if slot < 1 || slot > s.policy.Slots() {
		return fmt.Errorf("%w: %d not in 1..%d", ErrInvalidSlot, slot, s.policy.Slots())
	}
	s.plates[slot] = text
	return nil
}

// Plates returns a copy of the plate registry.
func (s *Session) Plates() map[int]string {
	out := make(map[int]string, len(s.plates))
	for k, v := range s.plates {
		out[k] = v
	}
	return out
}

// Labels returns a copy of the label map, keyed by keyframe index.
func (s *Session) Labels() map[int]Value {
	out := make(map[int]Value, len(s.labels))
	for k, v := range s.labels {
		out[k] = v
	}
	return out
}

// Labeled returns the keyframe indices that carry a label, ascending.
func (s *Session) Labeled() []int {
	out := make([]int, 0, len(s.labels))
	for k := range s.labels {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

// Document builds the persisted form of the session, including labels of
// frames that are not keyframes of this session.
func (s *Session) Document() (*Document, error) {
	if !s.open {
		return nil, ErrNoSession
	}
	doc := NewDocument()
	for k, v := range s.plates {
		doc.Plates[k] = v
	}
	for k, raw := range s.detached {
		doc.Frames[k] = raw
	}
	for k, v := range s.labels {
		raw, err := s.policy.Encode(v)
		if err != nil {
			return nil, fmt.Errorf("encode label of frame %d: %w", k, err)
		}
		doc.Frames[k] = raw
	}
	return doc, nil
}

// Merge overwrites plates and labels present in doc and leaves everything
// else alone. The whole document is validated first: if any entry is
// invalid for the policy nothing is applied.
func (s *Session) Merge(doc *Document) error {
	if !s.open {
		return ErrNoSession
	}
	if doc == nil {
		return nil
	}

	for slot := range doc.Plates {
		if slot < 1 || slot > s.policy.Slots() {
			return fmt.Errorf("%w: plate %w: %d not in 1..%d", ErrMalformedDocument, ErrInvalidSlot, slot, s.policy.Slots())
		}
	}
	decoded := make(map[int]Value, len(doc.Frames))
	detached := make(map[int]json.RawMessage)
	for k, raw := range doc.Frames {
		v, err := s.policy.Decode(raw)
		if err != nil {
			return fmt.Errorf("%w: frame %d: %w", ErrMalformedDocument, k, err)
		}
		if s.members[k] {
			decoded[k] = v
			continue
		}
		if k < 0 {
			return fmt.Errorf("%w: negative frame index %d", ErrMalformedDocument, k)
		}
		enc, err := s.policy.Encode(v)
		if err != nil {
			return fmt.Errorf("%w: frame %d: %w", ErrMalformedDocument, k, err)
		}
		detached[k] = enc
	}

	for slot, text := range doc.Plates {
		s.plates[slot] = text
	}
	for k, v := range decoded {
		s.labels[k] = v
	}
	for k, raw := range detached {
		s.detached[k] = raw
	}
	return nil
}

// Detached returns the frame indices whose labels were loaded but are not
// keyframes of this session.
func (s *Session) Detached() []int {
	out := make([]int, 0, len(s.detached))
	for k := range s.detached {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
