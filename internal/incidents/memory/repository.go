// Package memory provides an in-process implementation of the incidents repository.
package memory

import (
	"context"
	"sync"

	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/incidents"
)

// Repository implements incidents.Repository in memory.
type Repository struct {
	mu        sync.RWMutex
	incidents map[string]*domain.Incident
	// order holds ids in creation order, oldest first.
	order []string
}

// NewRepository creates a new in-memory repository.
func NewRepository() *Repository {
	return &Repository{
		incidents: make(map[string]*domain.Incident),
	}
}

// CreateIncident stores a new incident.
func (r *Repository) CreateIncident(_ context.Context, incident *domain.Incident) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.incidents[incident.ID] = incident.Clone()
	r.order = append(r.order, incident.ID)
	return nil
}

// GetIncident returns a copy of the incident.
func (r *Repository) GetIncident(_ context.Context, id string) (*domain.Incident, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	incident, ok := r.incidents[id]
	if !ok {
		return nil, incidents.ErrIncidentNotFound
	}
	return incident.Clone(), nil
}

// ListIncidents returns up to limit incidents, newest first.
func (r *Repository) ListIncidents(_ context.Context, limit int) ([]domain.Incident, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Incident, 0, min(limit, len(r.order)))
	for i := len(r.order) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, *r.incidents[r.order[i]].Clone())
	}
	return result, nil
}

// SaveUpdate replaces the stored incident with a copy of incident.
func (r *Repository) SaveUpdate(_ context.Context, incident *domain.Incident, _ domain.IncidentUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.incidents[incident.ID]; !ok {
		return incidents.ErrIncidentNotFound
	}
	r.incidents[incident.ID] = incident.Clone()
	return nil
}

// Ping always succeeds.
func (r *Repository) Ping(context.Context) error {
	return nil
}
