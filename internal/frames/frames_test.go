package frames

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySource_ReadsInOrder(t *testing.T) {
	src := NewMemorySource(Uniform(4, 4, 0), Uniform(4, 4, 10), Uniform(4, 4, 20))
	require.Equal(t, 3, src.Len())

	for i := 0; i < 3; i++ {
		require.True(t, src.IsOpen())
		f, err := src.ReadNext()
		require.NoError(t, err)
		assert.Equal(t, i, f.Index)
		assert.Equal(t, uint8(i*10), f.Image.GrayAt(0, 0).Y)
	}

	assert.False(t, src.IsOpen())
	_, err := src.ReadNext()
	assert.ErrorIs(t, err, io.EOF)
}

func TestMemorySource_Seek(t *testing.T) {
	src := NewMemorySource(Uniform(2, 2, 0), Uniform(2, 2, 1), Uniform(2, 2, 2))

	require.NoError(t, src.Seek(2))
	f, err := src.ReadNext()
	require.NoError(t, err)
	assert.Equal(t, 2, f.Index)

	assert.ErrorIs(t, src.Seek(3), ErrSeekOutOfRange)
	assert.ErrorIs(t, src.Seek(-1), ErrSeekOutOfRange)
}

func TestMemorySource_FailAt(t *testing.T) {
	src := NewMemorySource(Uniform(2, 2, 0), Uniform(2, 2, 1))
	src.FailAt = 1

	_, err := src.ReadNext()
	require.NoError(t, err)
	_, err = src.ReadNext()
	require.Error(t, err)
	assert.False(t, errors.Is(err, io.EOF))
}

func TestMemorySource_Closed(t *testing.T) {
	src := NewMemorySource(Uniform(2, 2, 0))
	require.NoError(t, src.Close())
	assert.False(t, src.IsOpen())
	_, err := src.ReadNext()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestGray_ConvertsColour(t *testing.T) {
	rgba := image.NewRGBA(image.Rect(10, 10, 12, 11))
	rgba.Set(10, 10, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	rgba.Set(11, 10, color.RGBA{A: 255})

	g := Gray(rgba)
	assert.Equal(t, image.Rect(0, 0, 2, 1), g.Bounds())
	assert.Equal(t, uint8(255), g.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(0), g.GrayAt(1, 0).Y)
}

func TestParseProbe(t *testing.T) {
	data := []byte(`{"streams":[{"codec_name":"mjpeg","width":640,"height":480,"nb_frames":"120","avg_frame_rate":"30/1"}]}`)
	p, err := parseProbe(data)
	require.NoError(t, err)
	assert.Equal(t, 640, p.Width)
	assert.Equal(t, 480, p.Height)
	assert.Equal(t, 120, p.FrameCount)
	assert.Equal(t, "mjpeg", p.Codec)
	assert.InDelta(t, 30.0, p.FrameRate, 1e-9)
}

func TestParseProbe_FallsBackToPacketCount(t *testing.T) {
	data := []byte(`{"streams":[{"width":320,"height":240,"nb_frames":"N/A","nb_read_packets":"57","avg_frame_rate":"0/0"}]}`)
	p, err := parseProbe(data)
	require.NoError(t, err)
	assert.Equal(t, 57, p.FrameCount)
	assert.Zero(t, p.FrameRate)
}

func TestParseProbe_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `not json`},
		{"no streams", `{"streams":[]}`},
		{"zero size", `{"streams":[{"width":0,"height":0}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseProbe([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestLimitedWriter_KeepsOnlyTail(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, limit: 10}

	lw.Write([]byte("hello"))
	assert.Equal(t, "hello", buf.String())

	n, err := lw.Write([]byte("0123456789abc"))
	require.NoError(t, err)
	assert.Equal(t, 13, n)
	assert.Equal(t, "3456789abc", buf.String())
}

func TestEncodeJPEG(t *testing.T) {
	f := &Frame{Index: 3, Image: Uniform(8, 8, 128)}
	data, err := EncodeJPEG(f, 0)
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())
}
