package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersEverything(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	m.Capture.FramesCaptured.Add(3)
	m.Capture.SetStatus("running")
	m.Recognition.Observe("recognized", 20*time.Millisecond)
	m.Attendance.ObserveOutcome("logged")
	m.Attendance.DispatchDrops.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, name := range []string{
		"faceclock_frames_captured_total 3",
		`faceclock_capture_status{status="running"} 1`,
		`faceclock_recognition_results_total{status="recognized"} 1`,
		`faceclock_attendance_outcomes_total{kind="logged"} 1`,
		"faceclock_dispatch_drops_total 1",
		"go_goroutines",
	} {
		assert.Contains(t, string(body), name)
	}
}

func TestSetStatusIsExclusive(t *testing.T) {
	m, err := NewCaptureMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Status.WithLabelValues("disconnected")))

	m.SetStatus("error")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Status.WithLabelValues("disconnected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Status.WithLabelValues("error")))
}

func TestDoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewAttendanceMetrics(reg)
	require.NoError(t, err)
	_, err = NewAttendanceMetrics(reg)
	assert.Error(t, err)
}

func TestRecognitionObserve(t *testing.T) {
	m, err := NewRecognitionMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	m.Observe("unknown", time.Millisecond)
	m.Observe("unknown", time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Results.WithLabelValues("unknown")))
}
