package domain

import (
	"encoding/json"
	"time"
)

// ServiceStatus represents the operational status of a service.
type ServiceStatus string

// Service statuses.
const (
	ServiceStatusOperational ServiceStatus = "operational"
	ServiceStatusDegraded    ServiceStatus = "degraded"
	ServiceStatusOutage      ServiceStatus = "outage"
	ServiceStatusMaintenance ServiceStatus = "maintenance"
)

// IsValid checks if the service status is valid.
func (s ServiceStatus) IsValid() bool {
	switch s {
	case ServiceStatusOperational, ServiceStatusDegraded,
		ServiceStatusOutage, ServiceStatusMaintenance:
		return true
	}
	return false
}

// StatusHistoryCap is the maximum number of history entries kept per service:
// one per minute for 24 hours.
const StatusHistoryCap = 1440

// LatencyUnmeasured marks a latency that could not be measured.
const LatencyUnmeasured int64 = -1

// Metrics holds point-in-time service metrics.
type Metrics struct {
	Latency      int64   `json:"latency"`
	Availability float64 `json:"availability"`
	ErrorRate    float64 `json:"errorRate"`
}

// DefaultMetrics returns the metrics recorded for a status when the caller
// supplies none.
func DefaultMetrics(status ServiceStatus) Metrics {
	switch status {
	case ServiceStatusOperational:
		return Metrics{Latency: 0, Availability: 100, ErrorRate: 0}
	case ServiceStatusDegraded:
		return Metrics{Latency: 1000, Availability: 50, ErrorRate: 50}
	default:
		return Metrics{Latency: LatencyUnmeasured, Availability: 0, ErrorRate: 100}
	}
}

// MonitoringConfig holds the static probe settings of a service.
type MonitoringConfig struct {
	Timeout        time.Duration `json:"timeout"`
	Interval       time.Duration `json:"interval"`
	ExpectedStatus int           `json:"expectedStatus"`
	RetryAttempts  int           `json:"retryAttempts"`
}

// MarshalJSON encodes durations as milliseconds.
func (c MonitoringConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		TimeoutMs      int64 `json:"timeoutMs"`
		IntervalMs     int64 `json:"intervalMs"`
		ExpectedStatus int   `json:"expectedStatus"`
		RetryAttempts  int   `json:"retryAttempts"`
	}{
		TimeoutMs:      c.Timeout.Milliseconds(),
		IntervalMs:     c.Interval.Milliseconds(),
		ExpectedStatus: c.ExpectedStatus,
		RetryAttempts:  c.RetryAttempts,
	})
}

// StatusHistoryEntry is an immutable snapshot of a service status.
type StatusHistoryEntry struct {
	Status    ServiceStatus `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Message   string        `json:"message,omitempty"`
	Metrics   Metrics       `json:"metrics"`
}

// Service represents a monitored service.
type Service struct {
	ID               string               `json:"id"`
	Name             string               `json:"name"`
	Endpoint         string               `json:"endpoint"`
	Description      string               `json:"description,omitempty"`
	MonitoringConfig MonitoringConfig     `json:"monitoringConfig"`
	Status           ServiceStatus        `json:"status"`
	Uptime           string               `json:"uptime"`
	Metrics          Metrics              `json:"metrics"`
	LastChecked      time.Time            `json:"lastChecked"`
	CreatedAt        time.Time            `json:"createdAt"`
	StatusHistory    []StatusHistoryEntry `json:"-"`
}

// Record applies a new status snapshot to the service: live state is replaced,
// the entry is pushed to the front of the history, the history is truncated to
// StatusHistoryCap and uptime is recomputed against entry.Timestamp.
func (s *Service) Record(entry StatusHistoryEntry) {
	s.Status = entry.Status
	s.Metrics = entry.Metrics
	s.LastChecked = entry.Timestamp

	history := make([]StatusHistoryEntry, 0, min(len(s.StatusHistory)+1, StatusHistoryCap))
	history = append(history, entry)
	for _, e := range s.StatusHistory {
		if len(history) == StatusHistoryCap {
			break
		}
		history = append(history, e)
	}
	s.StatusHistory = history

	s.Uptime = ComputeUptime(s.StatusHistory, entry.Timestamp)
}

// Clone returns a deep copy of the service.
func (s *Service) Clone() *Service {
	c := *s
	if s.StatusHistory != nil {
		c.StatusHistory = make([]StatusHistoryEntry, len(s.StatusHistory))
		copy(c.StatusHistory, s.StatusHistory)
	}
	return &c
}

// ServiceSnapshot is the public read view of a service.
type ServiceSnapshot struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Endpoint    string        `json:"endpoint"`
	Status      ServiceStatus `json:"status"`
	Uptime      string        `json:"uptime"`
	Metrics     Metrics       `json:"metrics"`
	LastChecked time.Time     `json:"lastChecked"`
}

// Snapshot returns the public read view of the service.
func (s *Service) Snapshot() ServiceSnapshot {
	return ServiceSnapshot{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		Endpoint:    s.Endpoint,
		Status:      s.Status,
		Uptime:      s.Uptime,
		Metrics:     s.Metrics,
		LastChecked: s.LastChecked,
	}
}
