//go:build integration

package postgres_test

import (
	"context"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/bissquit/uptime-garden/internal/catalog"
	"github.com/bissquit/uptime-garden/internal/catalog/postgres"
	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDB *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := testutil.NewPostgresContainer(ctx)
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}

	testDB, err = container.MigratedPool(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		log.Fatalf("prepare database: %v", err)
	}

	code := m.Run()

	testDB.Close()
	if err := container.Terminate(ctx); err != nil {
		log.Printf("terminate postgres: %v", err)
	}
	os.Exit(code)
}

func newRegistry(t *testing.T) *catalog.Service {
	t.Helper()
	registry := catalog.NewService(postgres.NewRepository(testDB))
	require.NoError(t, registry.Reset(context.Background()))
	return registry
}

func TestRepository_RegisterAndList(t *testing.T) {
	registry := newRegistry(t)
	ctx := context.Background()

	names := []string{"web", "dns", "mail"}
	for _, name := range names {
		_, err := registry.RegisterService(ctx, catalog.RegisterServiceInput{
			Name:        name,
			Endpoint:    "https://" + name + ".example.com/health",
			Description: name + " service",
			MonitoringConfig: domain.MonitoringConfig{
				Timeout:       3 * time.Second,
				RetryAttempts: 2,
			},
		})
		require.NoError(t, err)
	}

	services, err := registry.ListServices(ctx)
	require.NoError(t, err)
	require.Len(t, services, 3)
	for i, name := range names {
		assert.Equal(t, name, services[i].Name)
		assert.Equal(t, domain.ServiceStatusOperational, services[i].Status)
		assert.Equal(t, domain.DefaultUptime, services[i].Uptime)
		assert.Equal(t, 3*time.Second, services[i].MonitoringConfig.Timeout)
		assert.Equal(t, 2, services[i].MonitoringConfig.RetryAttempts)
		assert.Equal(t, 200, services[i].MonitoringConfig.ExpectedStatus)
	}

	count, err := registry.CountServices(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestRepository_DuplicateName(t *testing.T) {
	registry := newRegistry(t)
	ctx := context.Background()

	input := catalog.RegisterServiceInput{Name: "web", Endpoint: "https://web.example.com"}
	_, err := registry.RegisterService(ctx, input)
	require.NoError(t, err)

	_, err = registry.RegisterService(ctx, input)
	assert.ErrorIs(t, err, catalog.ErrDuplicateName)
}

func TestRepository_NotFound(t *testing.T) {
	registry := newRegistry(t)
	ctx := context.Background()

	_, err := registry.GetService(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, catalog.ErrServiceNotFound)

	_, err = registry.GetService(ctx, "6f1c2e4a-7d1b-4a8e-9b0e-1c2d3e4f5a6b")
	assert.ErrorIs(t, err, catalog.ErrServiceNotFound)

	err = registry.RecordProbe(ctx, "6f1c2e4a-7d1b-4a8e-9b0e-1c2d3e4f5a6b", domain.ProbeOutcome{Success: true})
	assert.ErrorIs(t, err, catalog.ErrServiceNotFound)
}

func TestRepository_RecordProbe(t *testing.T) {
	registry := newRegistry(t)
	ctx := context.Background()

	service, err := registry.RegisterService(ctx, catalog.RegisterServiceInput{
		Name:           "web",
		Endpoint:       "https://web.example.com",
		InitialMessage: "Initial setup",
	})
	require.NoError(t, err)

	require.NoError(t, registry.RecordProbe(ctx, service.ID, domain.ProbeOutcome{Success: true, LatencyMs: 42}))
	require.NoError(t, registry.RecordProbe(ctx, service.ID, domain.ProbeOutcome{Err: context.DeadlineExceeded}))

	got, err := registry.GetService(ctx, service.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ServiceStatusOutage, got.Status)
	assert.Equal(t, domain.LatencyUnmeasured, got.Metrics.Latency)
	assert.Equal(t, "66.67%", got.Uptime)
	assert.WithinDuration(t, time.Now(), got.LastChecked, time.Minute)

	history, err := registry.GetStatusHistory(ctx, service.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, domain.ServiceStatusOutage, history[0].Status)
	assert.Equal(t, int64(42), history[1].Metrics.Latency)
	assert.Equal(t, "Initial setup", history[2].Message)
}

func TestRepository_HistoryCap(t *testing.T) {
	registry := newRegistry(t)
	ctx := context.Background()

	service, err := registry.RegisterService(ctx, catalog.RegisterServiceInput{
		Name:     "web",
		Endpoint: "https://web.example.com",
	})
	require.NoError(t, err)

	for i := 0; i < domain.StatusHistoryCap+5; i++ {
		require.NoError(t, registry.RecordProbe(ctx, service.ID, domain.ProbeOutcome{Success: true, LatencyMs: int64(i)}))
	}

	history, err := registry.GetStatusHistory(ctx, service.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, domain.StatusHistoryCap)
	assert.Equal(t, int64(domain.StatusHistoryCap+4), history[0].Metrics.Latency)
	assert.Equal(t, int64(5), history[len(history)-1].Metrics.Latency)
}

func TestRepository_ConcurrentRecords(t *testing.T) {
	registry := newRegistry(t)
	ctx := context.Background()

	service, err := registry.RegisterService(ctx, catalog.RegisterServiceInput{
		Name:     "web",
		Endpoint: "https://web.example.com",
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, registry.RecordProbe(ctx, service.ID, domain.ProbeOutcome{Success: true}))
		}()
	}
	wg.Wait()

	history, err := registry.GetStatusHistory(ctx, service.ID, 0)
	require.NoError(t, err)
	assert.Len(t, history, 20)
}

func TestRepository_Reset(t *testing.T) {
	registry := newRegistry(t)
	ctx := context.Background()

	_, err := registry.RegisterService(ctx, catalog.RegisterServiceInput{Name: "web", Endpoint: "https://web.example.com"})
	require.NoError(t, err)

	require.NoError(t, registry.Reset(ctx))

	services, err := registry.ListServices(ctx)
	require.NoError(t, err)
	assert.Empty(t, services)
}

func TestRepository_Ping(t *testing.T) {
	repo := postgres.NewRepository(testDB)
	assert.NoError(t, repo.Ping(context.Background()))
}
