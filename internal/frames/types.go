// Package frames provides sequential access to the decoded frames of a video.
// Frames are delivered as single-channel intensity images in decode order.
package frames

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
)

// MaxIntensity is the largest value a pixel of a Frame can take.
const MaxIntensity = 255

var (
	ErrClosed         = errors.New("frame source is closed")
	ErrSeekOutOfRange = errors.New("seek index out of range")
)

// Frame is one decoded picture. Frames are never mutated after they are read.
type Frame struct {
	Index int
	Image *image.Gray
}

// Width returns the frame width in pixels.
func (f *Frame) Width() int { return f.Image.Bounds().Dx() }

// Height returns the frame height in pixels.
func (f *Frame) Height() int { return f.Image.Bounds().Dy() }

// Source is a stateful forward cursor over the frames of one video.
type Source interface {
	// Len is the number of frames the container reports. It may be an
	// estimate; readers must rely on ReadNext returning io.EOF.
	Len() int

	// ReadNext returns the next frame, or io.EOF at end of stream.
	ReadNext() (*Frame, error)

	// IsOpen reports whether more frames may be read.
	IsOpen() bool

	Close() error
}

// Seeker is implemented by sources that support random access. After a
// successful Seek(i) the next ReadNext returns frame i.
type Seeker interface {
	Seek(index int) error
}

// Gray converts any image to a single-channel intensity image.
func Gray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), img, b.Min, draw.Src)
	return g
}

// Uniform returns a w×h frame image filled with a single intensity.
func Uniform(w, h int, v uint8) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	draw.Draw(g, g.Bounds(), &image.Uniform{C: color.Gray{Y: v}}, image.Point{}, draw.Src)
	return g
}
