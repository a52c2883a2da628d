// Package catalog provides the service registry and status recorder.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/pkg/keyedmutex"
	"github.com/google/uuid"
)

// Service implements registry and recorder business logic.
type Service struct {
	repo     Repository
	defaults domain.MonitoringConfig
	locks    keyedmutex.Map
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for recorded entries.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithDefaults sets monitoring config values applied to zero fields at registration.
func WithDefaults(defaults domain.MonitoringConfig) Option {
	return func(s *Service) {
		s.defaults = defaults
	}
}

// DefaultMonitoringConfig returns the monitoring config used when none is configured.
func DefaultMonitoringConfig() domain.MonitoringConfig {
	return domain.MonitoringConfig{
		Timeout:        5 * time.Second,
		Interval:       60 * time.Second,
		ExpectedStatus: 200,
		RetryAttempts:  0,
	}
}

// NewService creates a new catalog service.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		defaults: DefaultMonitoringConfig(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterServiceInput holds data for registering a service.
type RegisterServiceInput struct {
	Name             string
	Endpoint         string
	Description      string
	MonitoringConfig domain.MonitoringConfig
	// InitialMessage, when set, records an operational entry at registration.
	InitialMessage string
}

// RegisterService validates and stores a new service.
//
// When the initial entry cannot be recorded the service stays registered and
// is returned together with the error.
func (s *Service) RegisterService(ctx context.Context, input RegisterServiceInput) (*domain.Service, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}

	if err := validateEndpoint(input.Endpoint); err != nil {
		return nil, err
	}

	cfg := s.applyDefaults(input.MonitoringConfig)
	if cfg.Timeout < 0 || cfg.Interval < 0 || cfg.RetryAttempts < 0 {
		return nil, fmt.Errorf("%w: negative values are not allowed", ErrInvalidConfig)
	}
	if cfg.ExpectedStatus < 100 || cfg.ExpectedStatus > 599 {
		return nil, fmt.Errorf("%w: expected status %d", ErrInvalidConfig, cfg.ExpectedStatus)
	}

	now := s.now()
	service := &domain.Service{
		ID:               uuid.NewString(),
		Name:             name,
		Endpoint:         input.Endpoint,
		Description:      input.Description,
		MonitoringConfig: cfg,
		Status:           domain.ServiceStatusOperational,
		Uptime:           domain.DefaultUptime,
		Metrics:          domain.DefaultMetrics(domain.ServiceStatusOperational),
		LastChecked:      now,
		CreatedAt:        now,
		StatusHistory:    make([]domain.StatusHistoryEntry, 0),
	}

	if err := s.repo.CreateService(ctx, service); err != nil {
		return nil, err
	}

	if input.InitialMessage != "" {
		entry := domain.StatusHistoryEntry{
			Status:  domain.ServiceStatusOperational,
			Message: input.InitialMessage,
			Metrics: domain.DefaultMetrics(domain.ServiceStatusOperational),
		}
		if err := s.record(ctx, service.ID, entry, sourceSeed); err != nil {
			return service, fmt.Errorf("%w: record initial status: %w", ErrInitialEntry, err)
		}
		return s.repo.GetServiceByID(ctx, service.ID)
	}

	return service, nil
}

// GetService returns a service with its status history.
func (s *Service) GetService(ctx context.Context, id string) (*domain.Service, error) {
	return s.repo.GetServiceByID(ctx, id)
}

// ListServices returns all services in registration order.
func (s *Service) ListServices(ctx context.Context) ([]domain.Service, error) {
	return s.repo.ListServices(ctx)
}

// CountServices returns the number of registered services.
func (s *Service) CountServices(ctx context.Context) (int, error) {
	return s.repo.CountServices(ctx)
}

// GetStatusHistory returns up to limit most recent history entries of a service.
func (s *Service) GetStatusHistory(ctx context.Context, id string, limit int) ([]domain.StatusHistoryEntry, error) {
	if _, err := s.repo.GetServiceByID(ctx, id); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > domain.StatusHistoryCap {
		limit = domain.StatusHistoryCap
	}
	return s.repo.ListStatusHistory(ctx, id, limit)
}

// Reset removes every registered service. Incidents are not touched.
func (s *Service) Reset(ctx context.Context) error {
	if err := s.repo.DeleteAllServices(ctx); err != nil {
		return fmt.Errorf("reset registry: %w", err)
	}
	slog.Info("service registry reset")
	return nil
}

// Ping checks storage reachability.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// RecordProbe stores the outcome of a probe cycle for a service.
func (s *Service) RecordProbe(ctx context.Context, serviceID string, outcome domain.ProbeOutcome) error {
	return s.record(ctx, serviceID, outcome.Entry(), sourceProbe)
}

// MetricsOverride holds caller-supplied metrics. Nil fields fall back to the
// defaults of the target status.
type MetricsOverride struct {
	Latency      *int64
	Availability *float64
	ErrorRate    *float64
}

// SetStatusInput holds data for a manual status change.
type SetStatusInput struct {
	Status  domain.ServiceStatus
	Message string
	Metrics *MetricsOverride
}

// SetStatus records a manual status change without probing.
func (s *Service) SetStatus(ctx context.Context, serviceID string, input SetStatusInput) (*domain.Service, error) {
	if !input.Status.IsValid() {
		return nil, ErrInvalidStatus
	}

	metrics := domain.DefaultMetrics(input.Status)
	if o := input.Metrics; o != nil {
		if o.Latency != nil {
			metrics.Latency = *o.Latency
		}
		if o.Availability != nil {
			metrics.Availability = *o.Availability
		}
		if o.ErrorRate != nil {
			metrics.ErrorRate = *o.ErrorRate
		}
	}

	entry := domain.StatusHistoryEntry{
		Status:  input.Status,
		Message: input.Message,
		Metrics: metrics,
	}

	if err := s.record(ctx, serviceID, entry, sourceManual); err != nil {
		return nil, err
	}

	slog.Info("service status set manually",
		"service_id", serviceID,
		"status", input.Status,
	)

	return s.repo.GetServiceByID(ctx, serviceID)
}

// record stamps and applies entry under the per-service lock so that the
// read-modify-write of status, metrics, history and uptime is never interleaved
// with another writer of the same service.
func (s *Service) record(ctx context.Context, serviceID string, entry domain.StatusHistoryEntry, source string) error {
	unlock := s.locks.Lock(serviceID)
	defer unlock()

	entry.Timestamp = s.now()

	service, err := s.repo.GetServiceByID(ctx, serviceID)
	if err != nil {
		return err
	}

	service.Record(entry)

	if err := s.repo.SaveStatus(ctx, service, entry); err != nil {
		recordStatusFailure()
		return fmt.Errorf("save status: %w", err)
	}

	recordStatusRecorded(string(entry.Status), source)
	return nil
}

func (s *Service) applyDefaults(cfg domain.MonitoringConfig) domain.MonitoringConfig {
	if cfg.Timeout == 0 {
		cfg.Timeout = s.defaults.Timeout
	}
	if cfg.Interval == 0 {
		cfg.Interval = s.defaults.Interval
	}
	if cfg.ExpectedStatus == 0 {
		cfg.ExpectedStatus = s.defaults.ExpectedStatus
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = s.defaults.RetryAttempts
	}
	return cfg
}

func validateEndpoint(endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("%w: endpoint is required", ErrInvalidEndpoint)
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrInvalidEndpoint
	}
	return nil
}
