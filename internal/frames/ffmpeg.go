package frames

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"time"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics
	probeTimeout   = 30 * time.Second
)

// Config holds the ffmpeg tool configuration.
type Config struct {
	FFmpegPath  string // empty = look up "ffmpeg" on PATH
	FFprobePath string // empty = look up "ffprobe" on PATH
	Logger      *slog.Logger
}

// ProbeResult describes the first video stream of a file.
type ProbeResult struct {
	Width      int
	Height     int
	FrameCount int
	Codec      string
	FrameRate  float64
}

// Tools are the resolved ffmpeg and ffprobe binaries.
type Tools struct {
	ffmpeg  string
	ffprobe string
	logger  *slog.Logger
}

// NewTools resolves the ffmpeg and ffprobe binaries.
func NewTools(cfg Config) (*Tools, error) {
	ffmpeg, err := resolveBinary(cfg.FFmpegPath, "ffmpeg")
	if err != nil {
		return nil, err
	}
	ffprobe, err := resolveBinary(cfg.FFprobePath, "ffprobe")
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger.Info("ffmpeg tools resolved", "ffmpeg", ffmpeg, "ffprobe", ffprobe)

	return &Tools{ffmpeg: ffmpeg, ffprobe: ffprobe, logger: logger}, nil
}

type ffprobeOutput struct {
	Streams []struct {
		CodecName     string `json:"codec_name"`
		Width         int    `json:"width"`
		Height        int    `json:"height"`
		NbFrames      string `json:"nb_frames"`
		NbReadPackets string `json:"nb_read_packets"`
		AvgFrameRate  string `json:"avg_frame_rate"`
	} `json:"streams"`
}

// Probe reads stream dimensions and frame count with ffprobe.
func (t *Tools) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("video file not accessible: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-count_packets",
		"-show_entries", "stream=codec_name,width,height,nb_frames,nb_read_packets,avg_frame_rate",
		"-of", "json",
		path,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderr, limit: maxStderrBytes}

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w: %s", err, truncate(stderr.String(), 512))
	}
	return parseProbe(out)
}

func parseProbe(data []byte) (*ProbeResult, error) {
	var parsed ffprobeOutput
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("cannot parse ffprobe JSON: %w", err)
	}
	if len(parsed.Streams) == 0 {
		return nil, errors.New("no video stream found")
	}

	s := parsed.Streams[0]
	if s.Width <= 0 || s.Height <= 0 {
		return nil, fmt.Errorf("invalid video dimensions %dx%d", s.Width, s.Height)
	}

	count, _ := strconv.Atoi(s.NbFrames)
	if count <= 0 {
		count, _ = strconv.Atoi(s.NbReadPackets)
	}

	return &ProbeResult{
		Width:      s.Width,
		Height:     s.Height,
		FrameCount: count,
		Codec:      s.CodecName,
		FrameRate:  parseRate(s.AvgFrameRate),
	}, nil
}

func parseRate(r string) float64 {
	var num, den float64
	if _, err := fmt.Sscanf(r, "%g/%g", &num, &den); err != nil || den == 0 {
		return 0
	}
	return num / den
}

// Open probes the video and starts decoding it from frame 0.
func (t *Tools) Open(ctx context.Context, path string) (*FFmpegSource, error) {
	probe, err := t.Probe(ctx, path)
	if err != nil {
		return nil, err
	}

	src := &FFmpegSource{
		tools: t,
		path:  path,
		probe: probe,
		ctx:   ctx,
	}
	if err := src.start(0); err != nil {
		return nil, err
	}

	t.logger.Info("video opened",
		"frames", probe.FrameCount,
		"width", probe.Width,
		"height", probe.Height,
		"codec", probe.Codec,
	)
	return src, nil
}

// FFmpegSource decodes a video to raw grey frames through an ffmpeg
// subprocess reading from its stdout.
type FFmpegSource struct {
	tools *Tools
	path  string
	probe *ProbeResult
	ctx   context.Context

	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr bytes.Buffer
	cancel context.CancelFunc

	next   int
	eof    bool
	closed bool
}

// start launches ffmpeg so that the next frame read is frame `from`.
func (s *FFmpegSource) start(from int) error {
	ctx, cancel := context.WithCancel(s.ctx)

	args := []string{"-nostdin", "-v", "error", "-i", s.path, "-map", "0:v:0"}
	if from > 0 {
		args = append(args, "-vf", fmt.Sprintf("select=gte(n\\,%d)", from))
	}
	args = append(args, "-vsync", "passthrough", "-f", "rawvideo", "-pix_fmt", "gray", "-")

	cmd := exec.CommandContext(ctx, s.tools.ffmpeg, args...)
	s.stderr.Reset()
	cmd.Stderr = &limitedWriter{w: &s.stderr, limit: maxStderrBytes}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	s.cmd = cmd
	s.stdout = stdout
	s.cancel = cancel
	s.next = from
	s.eof = false
	return nil
}

func (s *FFmpegSource) stop() {
	if s.cmd == nil {
		return
	}
	s.cancel()
	_ = s.cmd.Wait()
	s.cmd = nil
}

func (s *FFmpegSource) Len() int {
	return s.probe.FrameCount
}

// Probe returns the stream description gathered when the source was opened.
func (s *FFmpegSource) Probe() ProbeResult {
	return *s.probe
}

func (s *FFmpegSource) ReadNext() (*Frame, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if s.eof {
		return nil, io.EOF
	}

	w, h := s.probe.Width, s.probe.Height
	buf := make([]byte, w*h)
	_, err := io.ReadFull(s.stdout, buf)
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		s.eof = true
		waitErr := s.cmd.Wait()
		s.cancel()
		s.cmd = nil
		if waitErr != nil {
			return nil, fmt.Errorf("ffmpeg exited: %w: %s", waitErr, truncate(s.stderr.String(), 512))
		}
		return nil, io.EOF
	default:
		s.eof = true
		s.stop()
		return nil, fmt.Errorf("truncated frame %d: %w", s.next, err)
	}

	f := &Frame{
		Index: s.next,
		Image: &image.Gray{Pix: buf, Stride: w, Rect: image.Rect(0, 0, w, h)},
	}
	s.next++
	return f, nil
}

func (s *FFmpegSource) IsOpen() bool {
	return !s.closed && !s.eof
}

// Seek restarts decoding at index.
func (s *FFmpegSource) Seek(index int) error {
	if s.closed {
		return ErrClosed
	}
	if index < 0 || (s.probe.FrameCount > 0 && index >= s.probe.FrameCount) {
		return fmt.Errorf("%w: %d", ErrSeekOutOfRange, index)
	}
	s.stop()
	return s.start(index)
}

func (s *FFmpegSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.stop()
	return nil
}

// resolveBinary finds a usable executable.
func resolveBinary(preferred, name string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured %s %q not found", name, preferred)
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH: %w", name, err)
	}
	return p, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		// Keep only the tail
		b := lw.w.Bytes()
		tail := make([]byte, lw.limit)
		copy(tail, b[len(b)-lw.limit:])
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}
