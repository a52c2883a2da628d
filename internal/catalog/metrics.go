package catalog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "uptimegarden"

var (
	statusRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "status_recorded_total",
			Help:      "Status entries recorded by status and source",
		},
		[]string{"status", "source"},
	)

	statusRecordFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "status_record_failures_total",
			Help:      "Status entries that could not be persisted",
		},
	)
)

// Record sources.
const (
	sourceProbe  = "probe"
	sourceManual = "manual"
	sourceSeed   = "seed"
)

func recordStatusRecorded(status, source string) {
	statusRecorded.WithLabelValues(status, source).Inc()
}

func recordStatusFailure() {
	statusRecordFailures.Inc()
}
