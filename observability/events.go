package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	changes *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking record store change events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			changes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "l2resolver",
				Subsystem: "events",
				Name:      "record_changes_total",
				Help:      "Count of record store change events segmented by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.changes)
	})
	return eventRegistry
}

// RecordChange increments the change counter for the supplied event type.
func (m *eventMetrics) RecordChange(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(eventType)
	if normalized == "" {
		normalized = "unknown"
	}
	m.changes.WithLabelValues(normalized).Inc()
}
