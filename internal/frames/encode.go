package frames

import (
	"bytes"
	"fmt"
	"image/jpeg"
)

// EncodeJPEG encodes a frame for hand-off to a display host.
func EncodeJPEG(f *Frame, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, f.Image, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode frame %d: %w", f.Index, err)
	}
	return buf.Bytes(), nil
}
