// Package labels holds the labelling state of one video: the keyframes being
// reviewed, the operator's cursor into them, the label recorded for each
// keyframe and the registry of known plate texts.
package labels

import (
	"fmt"
	"sort"
	"strings"
)

// Value is the label of one keyframe. Its shape is governed by the Policy of
// the session it belongs to: a single plate slot, a set of plate slots, or
// free text per plate slot. The zero Value is None: labelled, with no plate
// visible. Values are immutable.
type Value struct {
	plates []int
	text   map[int]string
}

// None is the label of a frame that was reviewed and shows no plate.
func None() Value {
	return Value{}
}

// Plate is a single-slot label.
func Plate(slot int) Value {
	return Value{plates: []int{slot}}
}

// Plates is a set-of-slots label. Duplicates and ordering are normalised by
// the session policy.
func Plates(slots ...int) Value {
	if len(slots) == 0 {
		return Value{}
	}
	cp := make([]int, len(slots))
	copy(cp, slots)
	return Value{plates: cp}
}

// Texts is a per-slot text label.
func Texts(text map[int]string) Value {
	if len(text) == 0 {
		return Value{}
	}
	cp := make(map[int]string, len(text))
	for k, v := range text {
		cp[k] = v
	}
	return Value{text: cp}
}

// IsNone reports whether the value says "no plate visible".
func (v Value) IsNone() bool {
	return len(v.plates) == 0 && len(v.text) == 0
}

// Slots returns the plate slots of a single or set label, in order.
func (v Value) Slots() []int {
	out := make([]int, len(v.plates))
	copy(out, v.plates)
	return out
}

// Has reports whether slot is part of the label.
func (v Value) Has(slot int) bool {
	for _, p := range v.plates {
		if p == slot {
			return true
		}
	}
	_, ok := v.text[slot]
	return ok
}

// Text returns a copy of the per-slot text of a text label.
func (v Value) Text() map[int]string {
	out := make(map[int]string, len(v.text))
	for k, s := range v.text {
		out[k] = s
	}
	return out
}

// Equal compares two normalised values.
func (v Value) Equal(o Value) bool {
	if len(v.plates) != len(o.plates) || len(v.text) != len(o.text) {
		return false
	}
	for i := range v.plates {
		if v.plates[i] != o.plates[i] {
			return false
		}
	}
	for k, s := range v.text {
		if os, ok := o.text[k]; !ok || os != s {
			return false
		}
	}
	return true
}

func (v Value) String() string {
	switch {
	case v.IsNone():
		return "none"
	case len(v.text) > 0:
		keys := sortedKeys(v.text)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%d=%q", k, v.text[k])
		}
		return "{" + strings.Join(parts, " ") + "}"
	default:
		return fmt.Sprint(v.plates)
	}
}

func sortedKeys(m map[int]string) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
