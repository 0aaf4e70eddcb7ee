package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserver(t *testing.T) {
	m := New()

	m.FrameCompared(0.99)
	m.FrameCompared(0.90)
	m.KeyframeFound(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesCompared))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.KeyframesFound))
}

func TestScanLifecycle(t *testing.T) {
	m := New()

	m.ScanStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveScans))

	m.ScanFinished("completed", 2*time.Second)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveScans))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScansTotal.WithLabelValues("completed")))
}

func TestSessionCounters(t *testing.T) {
	m := New()

	m.LabelRecorded("advance")
	m.LabelRecorded("advance")
	m.Saved(nil)
	m.Saved(errors.New("disk full"))
	m.PlateSet()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.LabelsRecorded.WithLabelValues("advance")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SavesTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SavesTotal.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PlatesRegistered))
}

func TestHandler(t *testing.T) {
	m := New()
	m.KeyframeFound(0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(string(body), "labeller_keyframes_found_total 1"))
}

func TestNew_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.KeyframeFound(0)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.KeyframesFound))
}
