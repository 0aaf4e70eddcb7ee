// Package workspace runs the operator workflow: open a video, scan it for
// keyframes in the background, then navigate, label, save and reload. All
// callers (HTTP handlers, the tray, the CLI) share one Service, which
// serialises them onto a single labelling session.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/enph353/labeller/internal/frames"
	"github.com/enph353/labeller/internal/keyframe"
	"github.com/enph353/labeller/internal/labels"
	"github.com/enph353/labeller/internal/logging"
	"github.com/enph353/labeller/internal/metrics"
	"github.com/enph353/labeller/internal/store"
)

var (
	ErrScanRunning      = errors.New("a scan is already running")
	ErrNoScan           = errors.New("no scan is running")
	ErrVideoNotFound    = errors.New("video not found")
	ErrFrameUnavailable = errors.New("video source cannot seek to keyframes")
	// ErrUnreadableLabels blocks saving over a label file that failed to
	// load, until a Reload succeeds.
	ErrUnreadableLabels = errors.New("existing labels could not be read")
)

// Opener opens a frame source for a video path.
type Opener interface {
	Open(ctx context.Context, path string) (frames.Source, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, path string) (frames.Source, error)

func (f OpenerFunc) Open(ctx context.Context, path string) (frames.Source, error) {
	return f(ctx, path)
}

// FFmpegOpener opens videos through ffmpeg.
func FFmpegOpener(tools *frames.Tools) Opener {
	return OpenerFunc(func(ctx context.Context, path string) (frames.Source, error) {
		return tools.Open(ctx, path)
	})
}

type Options struct {
	Opener    Opener
	Store     store.Store
	ScanLog   store.ScanLog
	Policy    labels.Policy
	Threshold float64
	// VideoDir resolves relative video paths.
	VideoDir string
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Service owns at most one open video and its labelling session.
type Service struct {
	opener    Opener
	store     store.Store
	scanLog   store.ScanLog
	threshold float64
	videoDir  string
	metrics   *metrics.Metrics
	logger    *slog.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu      sync.Mutex
	session *labels.Session
	video   string
	src     frames.Source
	job     *scanJob
	loadErr error
}

func NewService(opts Options) (*Service, error) {
	if opts.Opener == nil {
		return nil, fmt.Errorf("workspace: opener is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("workspace: store is required")
	}
	if opts.Policy == nil {
		return nil, fmt.Errorf("workspace: policy is required")
	}
	if opts.Threshold == 0 {
		opts.Threshold = keyframe.DefaultThreshold
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		opener:     opts.Opener,
		store:      opts.Store,
		scanLog:    opts.ScanLog,
		threshold:  opts.Threshold,
		videoDir:   opts.VideoDir,
		metrics:    opts.Metrics,
		logger:     logging.WithComponent(opts.Logger, "workspace"),
		baseCtx:    ctx,
		baseCancel: cancel,
		session:    labels.NewSession(opts.Policy),
	}, nil
}

func (s *Service) Policy() labels.Policy {
	return s.session.Policy()
}

func (s *Service) Threshold() float64 {
	return s.threshold
}

// Video is the path of the open video, if any.
func (s *Service) Video() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.video
}

func (s *Service) resolve(path string) (string, error) {
	if !filepath.IsAbs(path) && s.videoDir != "" {
		path = filepath.Join(s.videoDir, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrVideoNotFound, path)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrVideoNotFound, path)
	}
	return abs, nil
}

// OpenVideo closes the current video and starts scanning path in the
// background. The returned job id identifies the scan in ScanStatus.
func (s *Service) OpenVideo(ctx context.Context, path string) (string, error) {
	job, sel, scanCtx, err := s.startScan(ctx, s.baseCtx, path)
	if err != nil {
		return "", err
	}
	go func() {
		defer job.cancel()
		s.runScan(scanCtx, job, sel)
	}()
	return job.id, nil
}

// OpenVideoSync opens path and scans it before returning. Cancelling ctx
// stops the scan and keeps the keyframes found so far.
func (s *Service) OpenVideoSync(ctx context.Context, path string) (*keyframe.Result, error) {
	job, sel, scanCtx, err := s.startScan(ctx, ctx, path)
	if err != nil {
		return nil, err
	}
	defer job.cancel()
	return s.runScan(scanCtx, job, sel)
}

// startScan opens path and registers a scan job whose context derives from
// parent.
func (s *Service) startScan(ctx, parent context.Context, path string) (*scanJob, *keyframe.Selector, context.Context, error) {
	abs, err := s.resolve(path)
	if err != nil {
		return nil, nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.job != nil && s.job.running() {
		return nil, nil, nil, ErrScanRunning
	}

	s.closeLocked()

	// The source outlives the request that opened it: it is kept for
	// keyframe display after the scan.
	src, err := s.opener.Open(s.baseCtx, abs)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open %s: %w", filepath.Base(abs), err)
	}

	opts := []keyframe.Option{
		keyframe.WithThreshold(s.threshold),
		keyframe.WithLogger(logging.WithVideo(s.logger, abs)),
	}
	if s.metrics != nil {
		opts = append(opts, keyframe.WithObserver(s.metrics))
	}
	sel, err := keyframe.NewSelector(src, opts...)
	if err != nil {
		src.Close()
		return nil, nil, nil, err
	}

	scanCtx, cancel := context.WithCancel(parent)
	job := newScanJob(uuid.New().String(), abs, s.threshold, cancel)
	job.total.Store(int64(src.Len()))
	s.job = job
	s.src = src
	s.video = abs

	if s.scanLog != nil {
		now := time.Now().UTC()
		rec := &store.Scan{
			ID:        job.id,
			VideoPath: abs,
			Threshold: s.threshold,
			Status:    store.ScanRunning,
			Total:     src.Len(),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.scanLog.CreateScan(ctx, rec); err != nil {
			s.logger.Warn("failed to record scan", "job_id", job.id, "error", err)
		}
	}
	if s.metrics != nil {
		s.metrics.ScanStarted()
	}

	logging.WithJobID(logging.WithVideo(s.logger, abs), job.id).Info("scan started",
		"frames", src.Len(),
		"threshold", s.threshold,
	)
	return job, sel, scanCtx, nil
}

func (s *Service) runScan(ctx context.Context, job *scanJob, sel *keyframe.Selector) (*keyframe.Result, error) {
	logger := logging.WithJobID(logging.WithVideo(s.logger, job.video), job.id)

	res, err := keyframe.Scan(ctx, sel, job.progress)

	state := StateCompleted
	errMsg := ""
	switch {
	case err != nil:
		state = StateFailed
		errMsg = err.Error()
	case res.Cancelled:
		state = StateCancelled
	case res.ReadErr != nil:
		errMsg = res.ReadErr.Error()
	}

	s.mu.Lock()
	if s.job == job {
		if err == nil {
			s.installLocked(job.video, res.Keyframes, logger)
		} else {
			s.closeLocked()
		}
	}
	s.mu.Unlock()

	s.recordScan(job, state, errMsg, res, logger)
	job.finish(state, errMsg)

	if err != nil {
		logger.Error("scan failed", "error", err)
		return nil, err
	}
	logger.Info("scan finished",
		"state", state,
		"keyframes", len(res.Keyframes),
		"frames", res.Frames,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// installLocked opens the session on keyframes and merges any stored labels.
func (s *Service) installLocked(video string, keyframes []int, logger *slog.Logger) {
	if err := s.session.Open(keyframes); err != nil {
		logger.Error("failed to open session", "error", err)
		return
	}
	s.loadErr = nil
	if err := s.mergeStoredLocked(s.baseCtx, video); err != nil {
		s.loadErr = err
		logger.Warn("existing labels not loaded", "error", err)
	}
}

func (s *Service) mergeStoredLocked(ctx context.Context, video string) error {
	doc, err := s.store.Load(ctx, video)
	if err != nil {
		return err
	}
	if doc == nil {
		return nil
	}
	return s.session.Merge(doc)
}

func (s *Service) recordScan(job *scanJob, state, errMsg string, res *keyframe.Result, logger *slog.Logger) {
	elapsed := time.Since(job.started)
	if s.metrics != nil {
		s.metrics.ScanFinished(state, elapsed)
	}
	if s.scanLog == nil {
		return
	}
	rec := &store.Scan{
		ID:        job.id,
		VideoPath: job.video,
		Threshold: job.threshold,
		Status:    state,
		Total:     int(job.total.Load()),
		Error:     errMsg,
		UpdatedAt: time.Now().UTC(),
	}
	if res != nil {
		rec.Frames = res.Frames
		rec.Keyframes = res.Keyframes
	}
	if err := s.scanLog.FinishScan(s.baseCtx, rec); err != nil {
		logger.Warn("failed to record scan result", "error", err)
	}
}

// ScanStatus reports the most recent scan, or StateIdle if none ran.
func (s *Service) ScanStatus() ScanStatus {
	s.mu.Lock()
	job := s.job
	s.mu.Unlock()
	if job == nil {
		return ScanStatus{State: StateIdle}
	}
	return job.status()
}

// CancelScan asks the running scan to stop. The keyframes found so far
// become the session.
func (s *Service) CancelScan() error {
	s.mu.Lock()
	job := s.job
	s.mu.Unlock()
	if job == nil || !job.running() {
		return ErrNoScan
	}
	job.cancel()
	return nil
}

// Wait blocks until the current scan, if any, has finished.
func (s *Service) Wait(ctx context.Context) error {
	s.mu.Lock()
	job := s.job
	s.mu.Unlock()
	if job == nil {
		return nil
	}
	select {
	case <-job.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ScanHistory lists recent scans, newest first.
func (s *Service) ScanHistory(ctx context.Context, limit int) ([]*store.Scan, error) {
	if s.scanLog == nil {
		return nil, nil
	}
	return s.scanLog.ListScans(ctx, limit)
}

func (s *Service) View() (labels.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.View()
}

// onScreenLocked resolves the label the operator is looking at. Without an
// explicit label it is the recorded one, or None for an unlabelled frame.
func (s *Service) onScreenLocked(onScreen *labels.Value) labels.Value {
	if onScreen != nil {
		return *onScreen
	}
	v, _, _ := s.session.Label()
	return v
}

// Advance records the on-screen label and moves to the next keyframe.
func (s *Service) Advance(onScreen *labels.Value) (labels.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.session.IsOpen() {
		return labels.View{}, labels.ErrNoSession
	}
	view, err := s.session.Advance(s.onScreenLocked(onScreen))
	if err == nil {
		s.labelRecorded("advance")
	}
	return view, err
}

// Retreat records the on-screen label and moves to the previous keyframe.
func (s *Service) Retreat(onScreen *labels.Value) (labels.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.session.IsOpen() {
		return labels.View{}, labels.ErrNoSession
	}
	view, err := s.session.Retreat(s.onScreenLocked(onScreen))
	if err == nil {
		s.labelRecorded("retreat")
	}
	return view, err
}

func (s *Service) SetLabel(v labels.Value) (labels.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	view, err := s.session.SetLabel(v)
	if err == nil {
		s.labelRecorded("set")
	}
	return view, err
}

func (s *Service) SetPlate(slot int, text string) (labels.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.session.SetPlate(slot, text); err != nil {
		return labels.View{}, err
	}
	if s.metrics != nil {
		s.metrics.PlateSet()
	}
	return s.session.View()
}

func (s *Service) labelRecorded(action string) {
	if s.metrics != nil {
		s.metrics.LabelRecorded(action)
	}
}

// Save records the on-screen label, when given, and writes the session to
// the store.
func (s *Service) Save(ctx context.Context, onScreen *labels.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.saveLocked(ctx, onScreen)
	if s.metrics != nil && !errors.Is(err, labels.ErrNoSession) {
		s.metrics.Saved(err)
	}
	return err
}

func (s *Service) saveLocked(ctx context.Context, onScreen *labels.Value) error {
	if !s.session.IsOpen() {
		return labels.ErrNoSession
	}
	if s.loadErr != nil {
		return fmt.Errorf("%w: %v", ErrUnreadableLabels, s.loadErr)
	}
	if onScreen != nil {
		if _, err := s.session.SetLabel(*onScreen); err != nil {
			return err
		}
		s.labelRecorded("save")
	}
	doc, err := s.session.Document()
	if err != nil {
		return err
	}
	if err := s.store.Save(ctx, s.video, doc); err != nil {
		return fmt.Errorf("save labels: %w", err)
	}
	logging.WithVideo(s.logger, s.video).Info("labels saved",
		"frames", len(doc.Frames),
		"plates", len(doc.Plates),
	)
	return nil
}

// Reload merges the stored labels into the session. Labels present in the
// store overwrite the session's; everything else is kept. A malformed
// store leaves the session untouched.
func (s *Service) Reload(ctx context.Context) (labels.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.session.IsOpen() {
		return labels.View{}, labels.ErrNoSession
	}
	if err := s.mergeStoredLocked(ctx, s.video); err != nil {
		return labels.View{}, err
	}
	s.loadErr = nil
	return s.session.View()
}

// Frame returns the current keyframe as a JPEG.
func (s *Service) Frame(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.session.Current()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seeker, ok := s.src.(frames.Seeker)
	if !ok {
		return nil, ErrFrameUnavailable
	}
	if err := seeker.Seek(index); err != nil {
		return nil, fmt.Errorf("seek to frame %d: %w", index, err)
	}
	f, err := s.src.ReadNext()
	if err != nil {
		return nil, fmt.Errorf("read frame %d: %w", index, err)
	}
	return frames.EncodeJPEG(f, 0)
}

// closeLocked discards the session and releases the source.
func (s *Service) closeLocked() {
	s.session.Close()
	s.loadErr = nil
	s.video = ""
	if s.src != nil {
		if err := s.src.Close(); err != nil {
			s.logger.Warn("failed to close video", "error", err)
		}
		s.src = nil
	}
}

// Close cancels any running scan and releases the open video.
func (s *Service) Close() error {
	s.baseCancel()
	s.mu.Lock()
	job := s.job
	s.mu.Unlock()
	if job != nil {
		<-job.done
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return nil
}
