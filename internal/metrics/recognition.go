package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RecognitionMetrics tracks classification results and latency.
type RecognitionMetrics struct {
	Results  *prometheus.CounterVec
	Duration prometheus.Histogram
}

// NewRecognitionMetrics registers the recognition collectors on registry.
func NewRecognitionMetrics(registry *prometheus.Registry) (*RecognitionMetrics, error) {
	m := &RecognitionMetrics{
		Results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "faceclock_recognition_results_total",
			Help: "Classified frames by result status",
		}, []string{"status"}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "faceclock_recognition_duration_seconds",
			Help:    "Time spent classifying one frame",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register recognition metrics: %w", err)
	}
	return m, nil
}

// Observe records one classification.
func (m *RecognitionMetrics) Observe(status string, took time.Duration) {
	m.Results.WithLabelValues(status).Inc()
	m.Duration.Observe(took.Seconds())
}

// Describe implements the prometheus.Collector interface.
func (m *RecognitionMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Results.Describe(ch)
	m.Duration.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *RecognitionMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Results.Collect(ch)
	m.Duration.Collect(ch)
}
