package incidents

import (
	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	incidentsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uptimegarden",
			Subsystem: "incidents",
			Name:      "created_total",
			Help:      "Incidents created by severity",
		},
		[]string{"severity"},
	)

	incidentsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uptimegarden",
			Subsystem: "incidents",
			Name:      "resolved_total",
			Help:      "Incident updates that resolved an incident, by severity",
		},
		[]string{"severity"},
	)
)

func recordIncidentCreated(severity domain.Severity) {
	incidentsCreated.WithLabelValues(string(severity)).Inc()
}

func recordIncidentResolved(severity domain.Severity) {
	incidentsResolved.WithLabelValues(string(severity)).Inc()
}
