// Package memory provides an in-process implementation of the catalog repository.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/bissquit/uptime-garden/internal/catalog"
	"github.com/bissquit/uptime-garden/internal/domain"
)

// Repository implements catalog.Repository in memory.
// Stored services are never shared with callers: every read returns a copy
// and SaveStatus swaps the whole service under the write lock.
type Repository struct {
	mu       sync.RWMutex
	services map[string]*domain.Service
	order    []string
}

// NewRepository creates a new in-memory repository.
func NewRepository() *Repository {
	return &Repository{
		services: make(map[string]*domain.Service),
	}
}

// CreateService stores a new service. Names are compared case-insensitively.
func (r *Repository) CreateService(_ context.Context, service *domain.Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.services {
		if strings.EqualFold(existing.Name, service.Name) {
			return catalog.ErrDuplicateName
		}
	}

	r.services[service.ID] = service.Clone()
	r.order = append(r.order, service.ID)
	return nil
}

// GetServiceByID returns a copy of the service including its history.
func (r *Repository) GetServiceByID(_ context.Context, id string) (*domain.Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	service, ok := r.services[id]
	if !ok {
		return nil, catalog.ErrServiceNotFound
	}
	return service.Clone(), nil
}

// ListServices returns services in registration order without history.
func (r *Repository) ListServices(_ context.Context) ([]domain.Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	services := make([]domain.Service, 0, len(r.order))
	for _, id := range r.order {
		s := *r.services[id]
		s.StatusHistory = nil
		services = append(services, s)
	}
	return services, nil
}

// CountServices returns the number of stored services.
func (r *Repository) CountServices(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order), nil
}

// DeleteAllServices clears the registry.
func (r *Repository) DeleteAllServices(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.services = make(map[string]*domain.Service)
	r.order = nil
	return nil
}

// SaveStatus replaces the stored service with service, whose history already
// contains entry at index 0.
func (r *Repository) SaveStatus(_ context.Context, service *domain.Service, _ domain.StatusHistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.services[service.ID]; !ok {
		return catalog.ErrServiceNotFound
	}

	stored := service.Clone()
	if len(stored.StatusHistory) > domain.StatusHistoryCap {
		stored.StatusHistory = stored.StatusHistory[:domain.StatusHistoryCap]
	}
	r.services[service.ID] = stored
	return nil
}

// ListStatusHistory returns up to limit most recent entries.
func (r *Repository) ListStatusHistory(_ context.Context, serviceID string, limit int) ([]domain.StatusHistoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	service, ok := r.services[serviceID]
	if !ok {
		return nil, catalog.ErrServiceNotFound
	}

	n := min(limit, len(service.StatusHistory))
	history := make([]domain.StatusHistoryEntry, n)
	copy(history, service.StatusHistory[:n])
	return history, nil
}

// Ping always succeeds.
func (r *Repository) Ping(_ context.Context) error {
	return nil
}
