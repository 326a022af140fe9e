package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// AttendanceMetrics tracks clock decisions and dispatch drops.
type AttendanceMetrics struct {
	Outcomes      *prometheus.CounterVec
	DispatchDrops prometheus.Counter
}

// NewAttendanceMetrics registers the attendance collectors on registry.
func NewAttendanceMetrics(registry *prometheus.Registry) (*AttendanceMetrics, error) {
	m := &AttendanceMetrics{
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "faceclock_attendance_outcomes_total",
			Help: "Attendance decisions by outcome kind",
		}, []string{"kind"}),
		DispatchDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "faceclock_dispatch_drops_total",
			Help: "Recognized attempts that could not be queued",
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register attendance metrics: %w", err)
	}
	return m, nil
}

// ObserveOutcome counts one decision.
func (m *AttendanceMetrics) ObserveOutcome(kind string) {
	m.Outcomes.WithLabelValues(kind).Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *AttendanceMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Outcomes.Describe(ch)
	m.DispatchDrops.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *AttendanceMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Outcomes.Collect(ch)
	m.DispatchDrops.Collect(ch)
}
