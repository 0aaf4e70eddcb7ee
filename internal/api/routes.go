package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/enph353/labeller/internal/config"
	"github.com/enph353/labeller/internal/keyframe"
	"github.com/enph353/labeller/internal/labels"
	"github.com/enph353/labeller/internal/store"
	"github.com/enph353/labeller/internal/workspace"
)

// Workspace is the labelling workflow the API drives.
type Workspace interface {
	ListVideos(ctx context.Context) ([]workspace.VideoInfo, error)
	OpenVideo(ctx context.Context, path string) (string, error)
	ScanStatus() workspace.ScanStatus
	CancelScan() error
	ScanHistory(ctx context.Context, limit int) ([]*store.Scan, error)
	Policy() labels.Policy
	Video() string
	View() (labels.View, error)
	Advance(onScreen *labels.Value) (labels.View, error)
	Retreat(onScreen *labels.Value) (labels.View, error)
	SetLabel(v labels.Value) (labels.View, error)
	SetPlate(slot int, text string) (labels.View, error)
	Save(ctx context.Context, onScreen *labels.Value) error
	Reload(ctx context.Context) (labels.View, error)
	Frame(ctx context.Context) ([]byte, error)
}

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist())

	r.Get("/health", healthHandler(cfg))
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		if cfg.AuthToken != "" {
			r.Use(AuthMiddleware(cfg.AuthToken, cfg.Logger))
		}

		r.Get("/videos", listVideosHandler(cfg))
		r.Post("/videos/open", openVideoHandler(cfg))
		r.Get("/scan", scanStatusHandler(cfg))
		r.Delete("/scan", cancelScanHandler(cfg))
		r.Get("/scans", listScansHandler(cfg))

		r.Get("/session", viewHandler(cfg))
		r.Post("/session/next", moveHandler(cfg, cfg.Workspace.Advance))
		r.Post("/session/prev", moveHandler(cfg, cfg.Workspace.Retreat))
		r.Put("/session/label", setLabelHandler(cfg))
		r.Post("/session/save", saveHandler(cfg))
		r.Post("/session/reload", reloadHandler(cfg))
		r.Put("/plates/{slot}", setPlateHandler(cfg))

		r.With(LoopbackGuard()).Get("/session/frame.jpg", frameHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: config.Version,
			UptimeS: uptime,
		})
	}
}

// writeServiceError maps workflow errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, labels.ErrNoSession):
		WriteError(w, http.StatusPreconditionFailed, "no video is open", "NO_SESSION")
	case errors.Is(err, labels.ErrOutOfBounds):
		WriteError(w, http.StatusConflict, err.Error(), "OUT_OF_BOUNDS")
	case errors.Is(err, labels.ErrInvalidLabel), errors.Is(err, labels.ErrInvalidSlot):
		WriteError(w, http.StatusBadRequest, err.Error(), "INVALID_LABEL")
	case errors.Is(err, labels.ErrMalformedDocument):
		WriteError(w, http.StatusUnprocessableEntity, err.Error(), "MALFORMED_LABELS")
	case errors.Is(err, workspace.ErrUnreadableLabels):
		WriteError(w, http.StatusConflict, err.Error(), "UNREADABLE_LABELS")
	case errors.Is(err, workspace.ErrScanRunning):
		WriteError(w, http.StatusConflict, err.Error(), "SCAN_RUNNING")
	case errors.Is(err, workspace.ErrNoScan):
		WriteError(w, http.StatusNotFound, err.Error(), "NO_SCAN")
	case errors.Is(err, workspace.ErrVideoNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	case errors.Is(err, keyframe.ErrNoFrames):
		WriteError(w, http.StatusUnprocessableEntity, err.Error(), "NO_FRAMES")
	case errors.Is(err, workspace.ErrFrameUnavailable):
		WriteError(w, http.StatusNotImplemented, err.Error(), "FRAME_UNAVAILABLE")
	default:
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}

func writeView(w http.ResponseWriter, cfg ServerConfig, v labels.View) {
	resp, err := ViewToResponse(cfg.Workspace.Video(), cfg.Workspace.Policy(), v)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}

// decodeLabel reads an optional LabelRequest body. A missing body or
// missing "label" key yields nil.
func decodeLabel(r *http.Request, policy labels.Policy) (*labels.Value, error) {
	if r.Body == nil {
		return nil, nil
	}
	var req LabelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, errBadBody
	}
	if len(req.Label) == 0 {
		return nil, nil
	}
	v, err := policy.Decode(req.Label)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

var errBadBody = errors.New("invalid request body")

func listVideosHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		videos, err := cfg.Workspace.ListVideos(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if videos == nil {
			videos = []workspace.VideoInfo{}
		}
		WriteJSON(w, http.StatusOK, VideosResponse{Videos: videos})
	}
}

func openVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req OpenVideoRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		if req.Path == "" {
			WriteError(w, http.StatusBadRequest, "path is required", "BAD_REQUEST")
			return
		}

		jobID, err := cfg.Workspace.OpenVideo(r.Context(), req.Path)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		WriteJSON(w, http.StatusAccepted, OpenVideoResponse{JobID: jobID})
	}
}

func scanStatusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, cfg.Workspace.ScanStatus())
	}
}

func cancelScanHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Workspace.CancelScan(); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func listScansHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				WriteError(w, http.StatusBadRequest, "limit must be a positive integer", "BAD_REQUEST")
				return
			}
			limit = n
		}

		scans, err := cfg.Workspace.ScanHistory(r.Context(), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list scans", "INTERNAL_ERROR")
			return
		}

		resp := ScansResponse{Scans: make([]ScanResponse, len(scans))}
		for i, s := range scans {
			resp.Scans[i] = ScanToResponse(s)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func viewHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := cfg.Workspace.View()
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeView(w, cfg, v)
	}
}

func moveHandler(cfg ServerConfig, move func(*labels.Value) (labels.View, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		onScreen, err := decodeLabel(r, cfg.Workspace.Policy())
		if errors.Is(err, errBadBody) {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}
		if err != nil {
			writeServiceError(w, err)
			return
		}

		v, err := move(onScreen)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeView(w, cfg, v)
	}
}

func setLabelHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		label, err := decodeLabel(r, cfg.Workspace.Policy())
		if errors.Is(err, errBadBody) {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if label == nil {
			WriteError(w, http.StatusBadRequest, "label is required", "BAD_REQUEST")
			return
		}

		v, err := cfg.Workspace.SetLabel(*label)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeView(w, cfg, v)
	}
}

func setPlateHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slot, err := strconv.Atoi(chi.URLParam(r, "slot"))
		if err != nil {
			WriteError(w, http.StatusBadRequest, "slot must be an integer", "BAD_REQUEST")
			return
		}

		var req PlateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		v, err := cfg.Workspace.SetPlate(slot, req.Text)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeView(w, cfg, v)
	}
}

func saveHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		onScreen, err := decodeLabel(r, cfg.Workspace.Policy())
		if errors.Is(err, errBadBody) {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}
		if err != nil {
			writeServiceError(w, err)
			return
		}

		if err := cfg.Workspace.Save(r.Context(), onScreen); err != nil {
			cfg.Logger.Error("save failed", "error", err)
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func reloadHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := cfg.Workspace.Reload(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeView(w, cfg, v)
	}
}

func frameHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := cfg.Workspace.Frame(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}
