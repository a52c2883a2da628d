// Package incidents provides the incident log: creation, narrative updates and
// the recent-incidents feed.
package incidents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bissquit/uptime-garden/internal/catalog"
	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/pkg/keyedmutex"
	"github.com/google/uuid"
)

// RecentLimit is the number of incidents returned by ListRecent.
const RecentLimit = 10

// ServiceLookup resolves services referenced by incidents.
type ServiceLookup interface {
	GetService(ctx context.Context, id string) (*domain.Service, error)
}

// Service implements incident business logic.
type Service struct {
	repo     Repository
	services ServiceLookup
	locks    keyedmutex.Map
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for incident timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a new incident service. services may be nil, in which
// case serviceId references are not checked.
func NewService(repo Repository, services ServiceLookup, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		services: services,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpdateInput holds one narrative entry supplied at creation.
type UpdateInput struct {
	Status    string
	Message   string
	Timestamp *time.Time
}

// CreateIncidentInput holds data for creating an incident.
type CreateIncidentInput struct {
	Title     string
	Status    domain.IncidentStatus
	Severity  domain.Severity
	ServiceID string
	Updates   []UpdateInput
}

// AddUpdateInput holds data for appending to an incident narrative.
type AddUpdateInput struct {
	Status  domain.IncidentStatus
	Message string
}

// CreateIncident validates and stores a new incident. Status defaults to
// investigating; without updates an initial one is created from the title.
func (s *Service) CreateIncident(ctx context.Context, input CreateIncidentInput) (*domain.Incident, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, ErrInvalidTitle
	}

	status := input.Status
	if status == "" {
		status = domain.IncidentStatusInvestigating
	}
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}
	if !input.Severity.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSeverity, input.Severity)
	}

	if input.ServiceID != "" && s.services != nil {
		if _, err := s.services.GetService(ctx, input.ServiceID); err != nil {
			if errors.Is(err, catalog.ErrServiceNotFound) {
				return nil, ErrServiceNotFound
			}
			return nil, fmt.Errorf("lookup service: %w", err)
		}
	}

	now := s.now()
	incident := &domain.Incident{
		ID:        uuid.NewString(),
		Title:     title,
		Status:    status,
		Severity:  input.Severity,
		ServiceID: input.ServiceID,
		CreatedAt: now,
		UpdatedAt: now,
		Updates:   make([]domain.IncidentUpdate, 0, max(len(input.Updates), 1)),
	}
	if status.IsResolved() {
		resolvedAt := now
		incident.ResolvedAt = &resolvedAt
	}

	for _, u := range input.Updates {
		update := domain.IncidentUpdate{
			ID:        uuid.NewString(),
			Timestamp: now,
			Status:    u.Status,
			Message:   u.Message,
		}
		if u.Timestamp != nil {
			update.Timestamp = *u.Timestamp
		}
		if update.Status == "" {
			update.Status = string(status)
		}
		incident.Updates = append(incident.Updates, update)
	}

	if len(incident.Updates) == 0 {
		incident.Updates = append(incident.Updates, domain.IncidentUpdate{
			ID:        uuid.NewString(),
			Timestamp: now,
			Status:    string(status),
			Message:   title,
		})
	}

	if err := s.repo.CreateIncident(ctx, incident); err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}

	recordIncidentCreated(incident.Severity)
	slog.Info("incident created",
		"incident_id", incident.ID,
		"service_id", incident.ServiceID,
		"severity", incident.Severity,
		"status", incident.Status,
	)

	return incident, nil
}

// GetIncident returns an incident with its updates.
func (s *Service) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	return s.repo.GetIncident(ctx, id)
}

// ListRecent returns the most recent incidents, newest first.
func (s *Service) ListRecent(ctx context.Context) ([]domain.Incident, error) {
	return s.repo.ListIncidents(ctx, RecentLimit)
}

// AddUpdate appends a narrative entry and moves the incident to the given status.
func (s *Service) AddUpdate(ctx context.Context, id string, input AddUpdateInput) (*domain.Incident, error) {
	if !input.Status.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, input.Status)
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	incident, err := s.repo.GetIncident(ctx, id)
	if err != nil {
		return nil, err
	}

	update := domain.IncidentUpdate{
		ID:        uuid.NewString(),
		Timestamp: s.now(),
		Status:    string(input.Status),
		Message:   input.Message,
	}
	wasResolved := incident.Status.IsResolved()
	incident.Apply(input.Status, update)

	if err := s.repo.SaveUpdate(ctx, incident, update); err != nil {
		return nil, fmt.Errorf("save incident update: %w", err)
	}

	if incident.Status.IsResolved() && !wasResolved {
		recordIncidentResolved(incident.Severity)
	}

	return incident, nil
}

// Ping checks storage reachability.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
