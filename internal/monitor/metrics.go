package monitor

import (
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "uptimegarden"

var (
	probeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "probe_duration_seconds",
			Help:      "Duration of a probe including retries",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"result"},
	)

	probesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "probes_total",
			Help:      "Total number of probes by result",
		},
		[]string{"result"},
	)

	probeAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "probe_attempts",
			Help:      "Number of attempts made per probe",
			Buckets:   []float64{1, 2, 3, 5, 10},
		},
	)

	cycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a full monitoring cycle",
			Buckets:   prometheus.DefBuckets,
		},
	)

	cycleServices = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "cycle_services",
			Help:      "Number of services probed in the last cycle",
		},
	)

	skippedTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "skipped_ticks_total",
			Help:      "Ticks dropped because the previous cycle was still running",
		},
	)

	probePanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "probe_panics_total",
			Help:      "Panics recovered while probing or recording a service",
		},
	)
)

func recordProbe(outcome domain.ProbeOutcome, duration time.Duration) {
	result := "success"
	if !outcome.Success {
		result = "failure"
	}
	probeDuration.WithLabelValues(result).Observe(duration.Seconds())
	probesTotal.WithLabelValues(result).Inc()
	if outcome.Attempts > 0 {
		probeAttempts.Observe(float64(outcome.Attempts))
	}
}

func recordCycle(services int, duration time.Duration) {
	cycleServices.Set(float64(services))
	cycleDuration.Observe(duration.Seconds())
}

func recordSkippedTick() {
	skippedTicks.Inc()
}

func recordPanic() {
	probePanics.Inc()
}
