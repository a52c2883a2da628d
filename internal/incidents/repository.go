package incidents

import (
	"context"

	"github.com/bissquit/uptime-garden/internal/domain"
)

// Repository defines the interface for incident storage.
//
// SaveUpdate persists the new status, updatedAt and resolvedAt of incident
// together with the appended update in one atomic write.
type Repository interface {
	CreateIncident(ctx context.Context, incident *domain.Incident) error
	GetIncident(ctx context.Context, id string) (*domain.Incident, error)
	// ListIncidents returns at most limit incidents, newest first.
	ListIncidents(ctx context.Context, limit int) ([]domain.Incident, error)
	SaveUpdate(ctx context.Context, incident *domain.Incident, update domain.IncidentUpdate) error

	Ping(ctx context.Context) error
}
