package ui

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sync"
)

var (
	iconOnce sync.Once
	iconData []byte
)

// iconBytes is a 22x22 PNG of a licence plate outline.
func iconBytes() []byte {
	iconOnce.Do(func() {
		const size = 22
		img := image.NewNRGBA(image.Rect(0, 0, size, size))
		fg := color.NRGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xff}
		fill := color.NRGBA{R: 0xf2, G: 0xc2, B: 0x1b, A: 0xff}
		for y := 6; y < 16; y++ {
			for x := 1; x < size-1; x++ {
				c := fill
				if y == 6 || y == 15 || x == 1 || x == size-2 {
					c = fg
				}
				img.SetNRGBA(x, y, c)
			}
		}
		for x := 5; x < size-5; x += 3 {
			for y := 9; y < 13; y++ {
				img.SetNRGBA(x, y, fg)
			}
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err == nil {
			iconData = buf.Bytes()
		}
	})
	return iconData
}
