// Package metrics holds the Prometheus collectors for capture, recognition and attendance.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every collector on one registry.
type Metrics struct {
	registry    *prometheus.Registry
	Capture     *CaptureMetrics
	Recognition *RecognitionMetrics
	Attendance  *AttendanceMetrics
}

// New creates a registry with process and Go collectors plus the application metrics.
func New() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	capture, err := NewCaptureMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture metrics: %w", err)
	}
	recognition, err := NewRecognitionMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create recognition metrics: %w", err)
	}
	attendance, err := NewAttendanceMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create attendance metrics: %w", err)
	}
	return &Metrics{registry: registry, Capture: capture, Recognition: recognition, Attendance: attendance}, nil
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
