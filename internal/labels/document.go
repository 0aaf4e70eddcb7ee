package labels

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrMalformedDocument = errors.New("malformed label document")

// Document is the persisted form of a video's labels:
//
//	{"plates": {"1": "ABC123"}, "frames": {"0": [1, 2], "14": null}}
//
// Keys are decimal strings on disk. Frame values are kept raw here and
// interpreted by the session's Policy on Merge.
type Document struct {
	Plates map[int]string
	Frames map[int]json.RawMessage
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{
		Plates: map[int]string{},
		Frames: map[int]json.RawMessage{},
	}
}

type documentJSON struct {
	Plates map[int]string          `json:"plates"`
	Frames map[int]json.RawMessage `json:"frames"`
}

// MarshalJSON always writes both top-level keys.
func (d *Document) MarshalJSON() ([]byte, error) {
	out := documentJSON{Plates: d.Plates, Frames: d.Frames}
	if out.Plates == nil {
		out.Plates = map[int]string{}
	}
	if out.Frames == nil {
		out.Frames = map[int]json.RawMessage{}
	}
	return json.Marshal(out)
}

// UnmarshalJSON treats absent top-level keys as empty.
func (d *Document) UnmarshalJSON(data []byte) error {
	var in documentJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	d.Plates = in.Plates
	d.Frames = in.Frames
	if d.Plates == nil {
		d.Plates = map[int]string{}
	}
	if d.Frames == nil {
		d.Frames = map[int]json.RawMessage{}
	}
	for k, raw := range d.Frames {
		if raw == nil {
			d.Frames[k] = jsonNull
		}
	}
	return nil
}

// ParseDocument decodes a persisted label document.
func ParseDocument(data []byte) (*Document, error) {
	doc := NewDocument()
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return doc, nil
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	out := NewDocument()
	for k, v := range d.Plates {
		out.Plates[k] = v
	}
	for k, v := range d.Frames {
		cp := make(json.RawMessage, len(v))
		copy(cp, v)
		out.Frames[k] = cp
	}
	return out
}
