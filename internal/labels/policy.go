package labels

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrInvalidLabel  = errors.New("invalid label")
	ErrInvalidSlot   = errors.New("invalid plate slot")
	ErrUnknownPolicy = errors.New("unknown label policy")
)

// PolicyKind names one of the label shapes.
type PolicyKind string

const (
	// PolicySingle labels a frame with at most one plate slot.
	PolicySingle PolicyKind = "single"
	// PolicySet labels a frame with the set of visible plate slots.
	PolicySet PolicyKind = "set"
	// PolicyText labels a frame with the text read for each visible slot.
	PolicyText PolicyKind = "text"
)

// DefaultSlots is the number of plate slots an operator can choose from.
const DefaultSlots = 8

// Policy fixes the shape of every label in a session. A session uses
// exactly one policy for its whole life; policies are never mixed.
type Policy interface {
	Kind() PolicyKind
	// Slots is N: valid plate slots are 1..N.
	Slots() int
	// Normalize validates v and returns its canonical form. An empty
	// label always normalises to None.
	Normalize(v Value) (Value, error)
	// Encode renders a normalised value in its persisted JSON form.
	Encode(v Value) (json.RawMessage, error)
	// Decode parses a persisted JSON value and normalises it.
	Decode(raw json.RawMessage) (Value, error)
}

// NewPolicy returns the policy called kind with slots plate slots.
func NewPolicy(kind string, slots int) (Policy, error) {
	if slots < 1 {
		return nil, fmt.Errorf("%w: need at least one slot, got %d", ErrInvalidSlot, slots)
	}
	base := slotRange{n: slots}
	switch PolicyKind(strings.ToLower(kind)) {
	case PolicySingle:
		return singlePolicy{base}, nil
	case PolicySet:
		return setPolicy{base}, nil
	case PolicyText:
		return textPolicy{base}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, kind)
	}
}

var jsonNull = json.RawMessage("null")

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, jsonNull)
}

type slotRange struct {
	n int
}

func (r slotRange) Slots() int { return r.n }

func (r slotRange) check(slot int) error {
	if slot < 1 || slot > r.n {
		return fmt.Errorf("%w: %d not in 1..%d", ErrInvalidSlot, slot, r.n)
	}
	return nil
}

// singlePolicy persists a label as a slot number or null.
type singlePolicy struct{ slotRange }

func (singlePolicy) Kind() PolicyKind { return PolicySingle }

func (p singlePolicy) Normalize(v Value) (Value, error) {
	if len(v.text) > 0 {
		return Value{}, fmt.Errorf("%w: single-plate labels carry no text", ErrInvalidLabel)
	}
	switch len(v.plates) {
	case 0:
		return None(), nil
	case 1:
		if err := p.check(v.plates[0]); err != nil {
			return Value{}, err
		}
		return Plate(v.plates[0]), nil
	default:
		return Value{}, fmt.Errorf("%w: single-plate label has %d plates", ErrInvalidLabel, len(v.plates))
	}
}

func (p singlePolicy) Encode(v Value) (json.RawMessage, error) {
	if v.IsNone() {
		return jsonNull, nil
	}
	return json.Marshal(v.plates[0])
}

func (p singlePolicy) Decode(raw json.RawMessage) (Value, error) {
	if isNull(raw) {
		return None(), nil
	}
	var slot int
	if err := json.Unmarshal(raw, &slot); err != nil {
		return Value{}, fmt.Errorf("%w: want a plate number or null: %v", ErrInvalidLabel, err)
	}
	return p.Normalize(Plate(slot))
}

// setPolicy persists a label as an array of slots, or null when no plate is
// visible. An empty set is never stored: it becomes null so that "reviewed,
// nothing visible" differs from "not reviewed" only by key presence.
type setPolicy struct{ slotRange }

func (setPolicy) Kind() PolicyKind { return PolicySet }

func (p setPolicy) Normalize(v Value) (Value, error) {
	if len(v.text) > 0 {
		return Value{}, fmt.Errorf("%w: plate-set labels carry no text", ErrInvalidLabel)
	}
	if len(v.plates) == 0 {
		return None(), nil
	}
	seen := make(map[int]bool, len(v.plates))
	out := make([]int, 0, len(v.plates))
	for _, slot := range v.plates {
		if err := p.check(slot); err != nil {
			return Value{}, err
		}
		if !seen[slot] {
			seen[slot] = true
			out = append(out, slot)
		}
	}
	sort.Ints(out)
	return Value{plates: out}, nil
}

func (p setPolicy) Encode(v Value) (json.RawMessage, error) {
	if v.IsNone() {
		return jsonNull, nil
	}
	return json.Marshal(v.plates)
}

func (p setPolicy) Decode(raw json.RawMessage) (Value, error) {
	if isNull(raw) {
		return None(), nil
	}
	var slots []int
	if err := json.Unmarshal(raw, &slots); err != nil {
		return Value{}, fmt.Errorf("%w: want an array of plate numbers or null: %v", ErrInvalidLabel, err)
	}
	return p.Normalize(Plates(slots...))
}

// textPolicy persists a label as {"<slot>": "<text>"} or null. Blank texts
// are dropped; a label with no text left is None.
type textPolicy struct{ slotRange }

func (textPolicy) Kind() PolicyKind { return PolicyText }

func (p textPolicy) Normalize(v Value) (Value, error) {
	if len(v.plates) > 0 {
		return Value{}, fmt.Errorf("%w: text labels are keyed by slot, not a plate list", ErrInvalidLabel)
	}
	out := make(map[int]string, len(v.text))
	for slot, s := range v.text {
		if err := p.check(slot); err != nil {
			return Value{}, err
		}
		s = strings.TrimSpace(s)
		if s != "" {
			out[slot] = s
		}
	}
	if len(out) == 0 {
		return None(), nil
	}
	return Value{text: out}, nil
}

func (p textPolicy) Encode(v Value) (json.RawMessage, error) {
	if v.IsNone() {
		return jsonNull, nil
	}
	return json.Marshal(v.text)
}

func (p textPolicy) Decode(raw json.RawMessage) (Value, error) {
	if isNull(raw) {
		return None(), nil
	}
	var text map[int]string
	if err := json.Unmarshal(raw, &text); err != nil {
		return Value{}, fmt.Errorf("%w: want an object of slot to text or null: %v", ErrInvalidLabel, err)
	}
	return p.Normalize(Texts(text))
}
