package memory

import (
	"context"
	"testing"
	"time"

	"github.com/bissquit/uptime-garden/internal/catalog"
	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_CreateService_DuplicateNameIsCaseInsensitive(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	require.NoError(t, repo.CreateService(ctx, &domain.Service{ID: "1", Name: "Web Hosting"}))
	err := repo.CreateService(ctx, &domain.Service{ID: "2", Name: "web hosting"})

	assert.ErrorIs(t, err, catalog.ErrDuplicateName)
	count, err := repo.CountServices(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRepository_ListServices_RegistrationOrder(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()

	for _, name := range []string{"c", "a", "b"} {
		require.NoError(t, repo.CreateService(ctx, &domain.Service{ID: name + "-id", Name: name}))
	}

	services, err := repo.ListServices(ctx)
	require.NoError(t, err)
	require.Len(t, services, 3)
	assert.Equal(t, "c", services[0].Name)
	assert.Equal(t, "a", services[1].Name)
	assert.Equal(t, "b", services[2].Name)
}

func TestRepository_ReadsAreCopies(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	require.NoError(t, repo.CreateService(ctx, &domain.Service{ID: "1", Name: "a"}))

	got, err := repo.GetServiceByID(ctx, "1")
	require.NoError(t, err)
	got.Record(domain.StatusHistoryEntry{Status: domain.ServiceStatusOutage, Timestamp: time.Now()})

	again, err := repo.GetServiceByID(ctx, "1")
	require.NoError(t, err)
	assert.Empty(t, again.StatusHistory)
	assert.NotEqual(t, domain.ServiceStatusOutage, again.Status)
}

func TestRepository_SaveStatus(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	require.NoError(t, repo.CreateService(ctx, &domain.Service{ID: "1", Name: "a"}))

	service, err := repo.GetServiceByID(ctx, "1")
	require.NoError(t, err)
	entry := domain.StatusHistoryEntry{Status: domain.ServiceStatusDegraded, Timestamp: time.Now()}
	service.Record(entry)
	require.NoError(t, repo.SaveStatus(ctx, service, entry))

	history, err := repo.ListStatusHistory(ctx, "1", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.ServiceStatusDegraded, history[0].Status)

	err = repo.SaveStatus(ctx, &domain.Service{ID: "missing"}, entry)
	assert.ErrorIs(t, err, catalog.ErrServiceNotFound)
}

func TestRepository_DeleteAllServices(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	require.NoError(t, repo.CreateService(ctx, &domain.Service{ID: "1", Name: "a"}))

	require.NoError(t, repo.DeleteAllServices(ctx))

	_, err := repo.GetServiceByID(ctx, "1")
	assert.ErrorIs(t, err, catalog.ErrServiceNotFound)
	require.NoError(t, repo.CreateService(ctx, &domain.Service{ID: "2", Name: "a"}))
}
