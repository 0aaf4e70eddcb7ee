package frames

import (
	"fmt"
	"image"
	"io"
)

// MemorySource serves frames from a slice. It is used for image sequences
// already held in memory and by tests.
type MemorySource struct {
	images []*image.Gray
	next   int
	closed bool

	// FailAt makes ReadNext return an error instead of frame FailAt.
	// Negative disables failure injection.
	FailAt int
}

// NewMemorySource creates a source over the given images.
func NewMemorySource(images ...image.Image) *MemorySource {
	grays := make([]*image.Gray, len(images))
	for i, img := range images {
		grays[i] = Gray(img)
	}
	return &MemorySource{images: grays, FailAt: -1}
}

func (m *MemorySource) Len() int {
	return len(m.images)
}

func (m *MemorySource) ReadNext() (*Frame, error) {
	if m.closed {
		return nil, ErrClosed
	}
	if m.next == m.FailAt {
		return nil, fmt.Errorf("decode frame %d: corrupt packet", m.next)
	}
	if m.next >= len(m.images) {
		return nil, io.EOF
	}
	f := &Frame{Index: m.next, Image: m.images[m.next]}
	m.next++
	return f, nil
}

func (m *MemorySource) IsOpen() bool {
	return !m.closed && m.next < len(m.images)
}

func (m *MemorySource) Seek(index int) error {
	if m.closed {
		return ErrClosed
	}
	if index < 0 || index >= len(m.images) {
		return fmt.Errorf("%w: %d", ErrSeekOutOfRange, index)
	}
	m.next = index
	return nil
}

func (m *MemorySource) Close() error {
	m.closed = true
	return nil
}
