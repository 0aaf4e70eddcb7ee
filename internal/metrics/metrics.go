// Package metrics exposes prometheus collectors for keyframe scans and
// labelling activity.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "labeller"

// Metrics holds the agent's collectors on a private registry. It satisfies
// keyframe.Observer.
type Metrics struct {
	registry *prometheus.Registry

	FramesCompared   prometheus.Counter
	KeyframesFound   prometheus.Counter
	Similarity       prometheus.Histogram
	ScansTotal       *prometheus.CounterVec
	ScanDuration     prometheus.Histogram
	ActiveScans      prometheus.Gauge
	LabelsRecorded   *prometheus.CounterVec
	SavesTotal       *prometheus.CounterVec
	PlatesRegistered prometheus.Counter
}

// New registers all collectors, plus the Go and process collectors, on a
// fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		FramesCompared: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_compared_total",
			Help:      "Total number of candidate frames compared against a keyframe",
		}),
		KeyframesFound: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keyframes_found_total",
			Help:      "Total number of keyframes picked across all scans",
		}),
		Similarity: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_similarity",
			Help:      "Similarity of each compared frame to the last keyframe",
			Buckets:   []float64{0.5, 0.8, 0.9, 0.93, 0.95, 0.97, 0.98, 0.99, 0.995, 1},
		}),
		ScansTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Total number of keyframe scans, by final status",
		}, []string{"status"}),
		ScanDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Duration of keyframe scans",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		ActiveScans: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_scans",
			Help:      "Number of keyframe scans currently running",
		}),
		LabelsRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "labels_recorded_total",
			Help:      "Total number of frame labels recorded, by operator action",
		}, []string{"action"}),
		SavesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "saves_total",
			Help:      "Total number of label saves, by result",
		}, []string{"result"}),
		PlatesRegistered: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plates_registered_total",
			Help:      "Total number of plate registry edits",
		}),
	}
}

// FrameCompared implements keyframe.Observer.
func (m *Metrics) FrameCompared(similarity float64) {
	m.FramesCompared.Inc()
	m.Similarity.Observe(similarity)
}

// KeyframeFound implements keyframe.Observer.
func (m *Metrics) KeyframeFound(int) {
	m.KeyframesFound.Inc()
}

func (m *Metrics) ScanStarted() {
	m.ActiveScans.Inc()
}

func (m *Metrics) ScanFinished(status string, d time.Duration) {
	m.ActiveScans.Dec()
	m.ScansTotal.WithLabelValues(status).Inc()
	m.ScanDuration.Observe(d.Seconds())
}

func (m *Metrics) LabelRecorded(action string) {
	m.LabelsRecorded.WithLabelValues(action).Inc()
}

func (m *Metrics) Saved(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.SavesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) PlateSet() {
	m.PlatesRegistered.Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
