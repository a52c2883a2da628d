package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bissquit/uptime-garden/internal/catalog"
	"github.com/bissquit/uptime-garden/internal/config"
	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// switchPinger lets a test take storage down while the server is running.
type switchPinger struct {
	down atomic.Bool
}

func (p *switchPinger) Ping(context.Context) error {
	if p.down.Load() {
		return fmt.Errorf("%w: connection refused", domain.ErrStorageUnavailable)
	}
	return nil
}

func newTestApp(t *testing.T) (*App, *testutil.Client) {
	t.Helper()
	a, client, _ := newTestAppWithPinger(t)
	return a, client
}

func newTestAppWithPinger(t *testing.T) (*App, *testutil.Client, *switchPinger) {
	t.Helper()

	cfg := config.Default()
	cfg.Storage.Driver = config.StorageDriverMemory
	cfg.Monitor.Enabled = false
	cfg.Log.Level = "error"

	a, err := New(&cfg)
	require.NoError(t, err)
	t.Cleanup(a.cancel)

	pinger := &switchPinger{}
	a.storage = pinger

	srv := httptest.NewServer(a.Router())
	t.Cleanup(srv.Close)

	return a, testutil.NewValidatingClient(srv.URL, testutil.NewOpenAPIValidator(t, testutil.SpecPath)), pinger
}

func TestApp_CycleRefreshesSnapshots(t *testing.T) {
	a, client := newTestApp(t)
	ctx := context.Background()

	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	targets := []string{up.URL, up.URL + "/status", down.URL}
	for i, endpoint := range targets {
		_, err := a.Catalog().RegisterService(ctx, catalog.RegisterServiceInput{
			Name:           fmt.Sprintf("service-%d", i),
			Endpoint:       endpoint,
			InitialMessage: "Initial setup",
		})
		require.NoError(t, err)
	}
	seededAt := time.Now()

	time.Sleep(5 * time.Millisecond)
	require.True(t, a.Scheduler().RunCycle(ctx))

	resp := client.GET(t, "/api/v1/services")
	testutil.RequireStatus(t, resp, http.StatusOK)

	var snapshots []map[string]any
	testutil.DecodeJSON(t, resp, &snapshots)
	require.Len(t, snapshots, 3)

	for i, snapshot := range snapshots {
		assert.Equal(t, fmt.Sprintf("service-%d", i), snapshot["name"])

		lastChecked, err := time.Parse(time.RFC3339Nano, snapshot["lastChecked"].(string))
		require.NoError(t, err)
		assert.True(t, lastChecked.After(seededAt), "service-%d lastChecked %s", i, lastChecked)
	}

	assert.Equal(t, string(domain.ServiceStatusOperational), snapshots[0]["status"])
	assert.Equal(t, string(domain.ServiceStatusOutage), snapshots[2]["status"])
	assert.Equal(t, "50.00%", snapshots[2]["uptime"])

	resp = client.GET(t, "/api/v1/metrics")
	testutil.RequireStatus(t, resp, http.StatusOK)
	var byID map[string]domain.Metrics
	testutil.DecodeJSON(t, resp, &byID)
	assert.Len(t, byID, 3)
}

func TestApp_IncidentLifecycle(t *testing.T) {
	_, client := newTestApp(t)

	resp := client.POST(t, "/api/v1/services", map[string]any{
		"name":     "api",
		"endpoint": "https://api.example.com/health",
	})
	testutil.RequireStatus(t, resp, http.StatusCreated)
	var service map[string]any
	testutil.DecodeJSON(t, resp, &service)

	resp = client.POST(t, "/api/v1/incidents", map[string]any{
		"title":     "API errors",
		"severity":  "major",
		"serviceId": service["id"],
	})
	testutil.RequireStatus(t, resp, http.StatusCreated)
	var incident map[string]any
	testutil.DecodeJSON(t, resp, &incident)

	resp = client.POST(t, "/api/v1/incidents/"+incident["id"].(string)+"/updates", map[string]any{
		"status":  "resolved",
		"message": "Rolled back",
	})
	testutil.RequireStatus(t, resp, http.StatusCreated)
	_ = testutil.ReadBody(t, resp)

	resp = client.GET(t, "/api/v1/incidents")
	testutil.RequireStatus(t, resp, http.StatusOK)
	var list []map[string]any
	testutil.DecodeJSON(t, resp, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "resolved", list[0]["status"])
	assert.Contains(t, list[0], "resolvedAt")
}

func TestApp_Health(t *testing.T) {
	_, client, pinger := newTestAppWithPinger(t)

	resp := client.GET(t, "/health")
	testutil.RequireStatus(t, resp, http.StatusOK)
	var body map[string]any
	testutil.DecodeJSON(t, resp, &body)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "connected", body["database"])

	pinger.down.Store(true)

	resp = client.GET(t, "/health")
	testutil.RequireStatus(t, resp, http.StatusOK)
	testutil.DecodeJSON(t, resp, &body)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "disconnected", body["database"])
}

func TestApp_StorageUnavailable(t *testing.T) {
	_, client, pinger := newTestAppWithPinger(t)
	pinger.down.Store(true)

	for _, path := range []string{"/api/v1/services", "/api/v1/metrics", "/api/v1/incidents"} {
		resp := client.GET(t, path)
		testutil.RequireStatus(t, resp, http.StatusServiceUnavailable)

		var body map[string]map[string]string
		testutil.DecodeJSON(t, resp, &body)
		assert.Equal(t, "database connection not available", body["error"]["message"])
	}

	resp := client.GET(t, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	_ = testutil.ReadBody(t, resp)
}

func TestApp_Version(t *testing.T) {
	_, client := newTestApp(t)

	resp := client.GET(t, "/version")
	testutil.RequireStatus(t, resp, http.StatusOK)
	var body map[string]string
	testutil.DecodeJSON(t, resp, &body)
	assert.Contains(t, body, "version")
}

func TestInitLogger_Levels(t *testing.T) {
	ctx := context.Background()

	logger := initLogger(config.LogConfig{Level: "warn", Format: "text"})
	assert.False(t, logger.Enabled(ctx, -4))
	assert.True(t, logger.Enabled(ctx, 4))

	logger = initLogger(config.LogConfig{Level: "bogus", Format: "json"})
	assert.True(t, logger.Enabled(ctx, 0))
	assert.False(t, logger.Enabled(ctx, -4))
}
