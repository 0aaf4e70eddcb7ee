// Package keyframe picks the "interesting" frames of a video: the frames that
// differ enough from the previously picked one to be worth labelling.
package keyframe

import (
	"errors"
	"fmt"
	"image"

	"github.com/enph353/labeller/internal/frames"
)

var ErrSizeMismatch = errors.New("frame sizes differ")

// Comparator scores how alike two frames are, in [0, 1] where 1 is identical.
type Comparator interface {
	Similarity(a, b *frames.Frame) (float64, error)
}

// ErosionComparator is the production Comparator. See Similarity.
type ErosionComparator struct{}

func (ErosionComparator) Similarity(a, b *frames.Frame) (float64, error) {
	return Similarity(a.Image, b.Image)
}

// Similarity compares two intensity images. The absolute per-pixel
// difference is grey-eroded with a 3×3 window so that isolated noisy pixels
// do not count, then summed and normalised by the largest possible sum.
func Similarity(a, b *image.Gray) (float64, error) {
	ab, bb := a.Bounds(), b.Bounds()
	if ab.Dx() != bb.Dx() || ab.Dy() != bb.Dy() {
		return 0, fmt.Errorf("%w: %dx%d vs %dx%d", ErrSizeMismatch, ab.Dx(), ab.Dy(), bb.Dx(), bb.Dy())
	}
	w, h := ab.Dx(), ab.Dy()
	if w == 0 || h == 0 {
		return 0, errors.New("empty frame")
	}

	diff := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		ra := a.Pix[a.PixOffset(ab.Min.X, ab.Min.Y+y):]
		rb := b.Pix[b.PixOffset(bb.Min.X, bb.Min.Y+y):]
		row := diff[y*w : (y+1)*w]
		for x := range row {
			if ra[x] > rb[x] {
				row[x] = ra[x] - rb[x]
			} else {
				row[x] = rb[x] - ra[x]
			}
		}
	}

	eroded := erode3x3(diff, w, h)

	var sum uint64
	for _, v := range eroded {
		sum += uint64(v)
	}
	return 1 - float64(sum)/(float64(frames.MaxIntensity)*float64(w)*float64(h)), nil
}

// erode3x3 applies a 3×3 minimum filter. Out-of-bounds neighbours are
// ignored, which for a 3-wide window matches mirroring the edge pixels.
// The window is separable, so rows and columns are filtered in two passes.
func erode3x3(src []uint8, w, h int) []uint8 {
	tmp := make([]uint8, len(src))
	for y := 0; y < h; y++ {
		row := src[y*w : (y+1)*w]
		out := tmp[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			m := row[x]
			if x > 0 && row[x-1] < m {
				m = row[x-1]
			}
			if x+1 < w && row[x+1] < m {
				m = row[x+1]
			}
			out[x] = m
		}
	}

	dst := make([]uint8, len(src))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			m := tmp[i]
			if y > 0 && tmp[i-w] < m {
				m = tmp[i-w]
			}
			if y+1 < h && tmp[i+w] < m {
				m = tmp[i+w]
			}
			dst[i] = m
		}
	}
	return dst
}
