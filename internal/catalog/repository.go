package catalog

import (
	"context"

	"github.com/bissquit/uptime-garden/internal/domain"
)

// Repository defines the interface for service registry storage.
//
// SaveStatus must persist the live state of svc together with entry as a
// single atomic write and drop history beyond domain.StatusHistoryCap.
// Readers must observe either the previous or the new state, never a mix.
type Repository interface {
	CreateService(ctx context.Context, service *domain.Service) error
	GetServiceByID(ctx context.Context, id string) (*domain.Service, error)
	ListServices(ctx context.Context) ([]domain.Service, error)
	CountServices(ctx context.Context) (int, error)
	DeleteAllServices(ctx context.Context) error

	SaveStatus(ctx context.Context, service *domain.Service, entry domain.StatusHistoryEntry) error
	ListStatusHistory(ctx context.Context, serviceID string, limit int) ([]domain.StatusHistoryEntry, error)

	Ping(ctx context.Context) error
}
