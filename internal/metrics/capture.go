package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// CaptureMetrics tracks the frame source.
type CaptureMetrics struct {
	FramesCaptured prometheus.Counter
	FramesDropped  prometheus.Counter
	FPS            prometheus.Gauge
	Status         *prometheus.GaugeVec
	statuses       []string
}

// NewCaptureMetrics registers the capture collectors on registry.
func NewCaptureMetrics(registry *prometheus.Registry) (*CaptureMetrics, error) {
	m := &CaptureMetrics{
		FramesCaptured: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "faceclock_frames_captured_total",
			Help: "Frames read from the camera",
		}),
		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "faceclock_frames_dropped_total",
			Help: "Frames overwritten in the mailbox before anyone read them",
		}),
		FPS: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "faceclock_capture_fps",
			Help: "Measured capture rate over the last second",
		}),
		Status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "faceclock_capture_status",
			Help: "1 for the current capture status, 0 for the others",
		}, []string{"status"}),
		statuses: []string{"disconnected", "starting", "running", "stopping", "error"},
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register capture metrics: %w", err)
	}
	m.SetStatus("disconnected")
	return m, nil
}

// SetStatus marks status as the only active one.
func (m *CaptureMetrics) SetStatus(status string) {
	for _, s := range m.statuses {
		v := 0.0
		if s == status {
			v = 1
		}
		m.Status.WithLabelValues(s).Set(v)
	}
}

// Describe implements the prometheus.Collector interface.
func (m *CaptureMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.FramesCaptured.Describe(ch)
	m.FramesDropped.Describe(ch)
	m.FPS.Describe(ch)
	m.Status.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *CaptureMetrics) Collect(ch chan<- prometheus.Metric) {
	m.FramesCaptured.Collect(ch)
	m.FramesDropped.Collect(ch)
	m.FPS.Collect(ch)
	m.Status.Collect(ch)
}
