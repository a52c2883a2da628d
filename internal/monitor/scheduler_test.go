package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bissquit/uptime-garden/internal/catalog"
	"github.com/bissquit/uptime-garden/internal/catalog/memory"
	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	mu    sync.Mutex
	calls map[string]int
	fn    func(ctx context.Context, service domain.Service) domain.ProbeOutcome
}

func newFakeProber(fn func(ctx context.Context, service domain.Service) domain.ProbeOutcome) *fakeProber {
	return &fakeProber{calls: make(map[string]int), fn: fn}
}

func (p *fakeProber) Probe(ctx context.Context, service domain.Service) domain.ProbeOutcome {
	p.mu.Lock()
	p.calls[service.Name]++
	p.mu.Unlock()

	if p.fn != nil {
		return p.fn(ctx, service)
	}
	return domain.ProbeOutcome{Success: true, LatencyMs: 45, Attempts: 1}
}

func (p *fakeProber) count(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[name]
}

func seedCatalog(t *testing.T, names ...string) *catalog.Service {
	t.Helper()
	svc := catalog.NewService(memory.NewRepository())
	for _, name := range names {
		_, err := svc.RegisterService(context.Background(), catalog.RegisterServiceInput{
			Name:     name,
			Endpoint: "https://" + name + ".example.com",
		})
		require.NoError(t, err)
	}
	return svc
}

func TestScheduler_RunCycle_ProbesAllServices(t *testing.T) {
	registry := seedCatalog(t, "web", "mail", "dns")
	seededAt := time.Now()
	time.Sleep(2 * time.Millisecond)

	prober := newFakeProber(nil)
	scheduler := NewScheduler(DefaultConfig(), registry, prober)

	require.True(t, scheduler.RunCycle(context.Background()))

	services, err := registry.ListServices(context.Background())
	require.NoError(t, err)
	require.Len(t, services, 3)
	for _, service := range services {
		assert.Equal(t, 1, prober.count(service.Name))
		assert.Equal(t, domain.ServiceStatusOperational, service.Status)
		assert.Equal(t, int64(45), service.Metrics.Latency)
		assert.True(t, service.LastChecked.After(seededAt), "lastChecked must be refreshed by the cycle")
	}
}

func TestScheduler_RunCycle_FailureIsolated(t *testing.T) {
	registry := seedCatalog(t, "web", "mail", "dns")
	prober := newFakeProber(func(_ context.Context, service domain.Service) domain.ProbeOutcome {
		switch service.Name {
		case "mail":
			panic("boom")
		case "dns":
			return domain.ProbeOutcome{Err: context.DeadlineExceeded, Attempts: 1}
		}
		return domain.ProbeOutcome{Success: true, LatencyMs: 10, Attempts: 1}
	})
	scheduler := NewScheduler(DefaultConfig(), registry, prober)

	require.True(t, scheduler.RunCycle(context.Background()))

	services, err := registry.ListServices(context.Background())
	require.NoError(t, err)

	byName := make(map[string]domain.Service, len(services))
	for _, s := range services {
		byName[s.Name] = s
	}

	assert.Equal(t, domain.ServiceStatusOperational, byName["web"].Status)
	assert.Equal(t, domain.ServiceStatusOutage, byName["dns"].Status)
	assert.Equal(t, domain.Metrics{Latency: -1, Availability: 0, ErrorRate: 100}, byName["dns"].Metrics)

	mail, err := registry.GetService(context.Background(), byName["mail"].ID)
	require.NoError(t, err)
	assert.Empty(t, mail.StatusHistory, "a panicking probe records nothing")
}

func TestScheduler_OverlappingTicksAreSkipped(t *testing.T) {
	registry := seedCatalog(t, "web", "mail")

	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	prober := newFakeProber(func(_ context.Context, _ domain.Service) domain.ProbeOutcome {
		entered <- struct{}{}
		<-release
		return domain.ProbeOutcome{Success: true, LatencyMs: 20, Attempts: 1}
	})
	scheduler := NewScheduler(DefaultConfig(), registry, prober)
	ctx := context.Background()

	done := make(chan bool)
	go func() {
		done <- scheduler.RunCycle(ctx)
	}()

	<-entered
	<-entered
	assert.True(t, scheduler.Cycling())

	assert.False(t, scheduler.RunCycle(ctx), "second tick must be coalesced")

	close(release)
	assert.True(t, <-done)
	assert.False(t, scheduler.Cycling())

	services, err := registry.ListServices(ctx)
	require.NoError(t, err)
	for _, s := range services {
		service, err := registry.GetService(ctx, s.ID)
		require.NoError(t, err)
		require.Len(t, service.StatusHistory, 1, "exactly one entry per completed cycle")
		assert.Equal(t, service.LastChecked, service.StatusHistory[0].Timestamp)
		assert.Equal(t, service.Metrics, service.StatusHistory[0].Metrics)
		assert.Equal(t, 1, prober.count(s.Name))
	}
}

func TestScheduler_ConcurrencyLimit(t *testing.T) {
	registry := seedCatalog(t, "a", "b", "c", "d", "e", "f")

	var (
		mu       sync.Mutex
		inFlight int
		peak     int
	)
	prober := newFakeProber(func(_ context.Context, _ domain.Service) domain.ProbeOutcome {
		mu.Lock()
		inFlight++
		peak = max(peak, inFlight)
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return domain.ProbeOutcome{Success: true, Attempts: 1}
	})

	cfg := DefaultConfig()
	cfg.Concurrency = 2
	scheduler := NewScheduler(cfg, registry, prober)

	require.True(t, scheduler.RunCycle(context.Background()))
	assert.LessOrEqual(t, peak, 2)
	assert.Equal(t, 1, prober.count("f"))
}

func TestScheduler_PerServiceInterval(t *testing.T) {
	registry := catalog.NewService(memory.NewRepository())
	ctx := context.Background()

	_, err := registry.RegisterService(ctx, catalog.RegisterServiceInput{
		Name:             "fast",
		Endpoint:         "https://fast.example.com",
		MonitoringConfig: domain.MonitoringConfig{Interval: time.Minute},
	})
	require.NoError(t, err)
	_, err = registry.RegisterService(ctx, catalog.RegisterServiceInput{
		Name:             "slow",
		Endpoint:         "https://slow.example.com",
		MonitoringConfig: domain.MonitoringConfig{Interval: 5 * time.Minute},
	})
	require.NoError(t, err)

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	prober := newFakeProber(nil)
	cfg := DefaultConfig()
	cfg.Interval = time.Minute
	scheduler := NewScheduler(cfg, registry, prober, WithClock(clock))

	scheduler.RunCycle(ctx)
	assert.Equal(t, 1, prober.count("fast"))
	assert.Equal(t, 1, prober.count("slow"))

	for i := 0; i < 4; i++ {
		now = now.Add(time.Minute)
		scheduler.RunCycle(ctx)
	}
	assert.Equal(t, 5, prober.count("fast"))
	assert.Equal(t, 1, prober.count("slow"))

	now = now.Add(time.Minute)
	scheduler.RunCycle(ctx)
	assert.Equal(t, 6, prober.count("fast"))
	assert.Equal(t, 2, prober.count("slow"))
}

type failingRegistry struct{}

func (failingRegistry) ListServices(context.Context) ([]domain.Service, error) {
	return nil, errors.New("database down")
}

func (failingRegistry) RecordProbe(context.Context, string, domain.ProbeOutcome) error {
	return nil
}

func TestScheduler_ListErrorDoesNotPanic(t *testing.T) {
	prober := newFakeProber(nil)
	scheduler := NewScheduler(DefaultConfig(), failingRegistry{}, prober)

	assert.True(t, scheduler.RunCycle(context.Background()))
	assert.False(t, scheduler.Cycling())
}

func TestScheduler_CancelledProbeIsNotRecorded(t *testing.T) {
	registry := seedCatalog(t, "web")
	ctx, cancel := context.WithCancel(context.Background())

	prober := newFakeProber(func(ctx context.Context, _ domain.Service) domain.ProbeOutcome {
		cancel()
		return domain.ProbeOutcome{Err: ctx.Err(), Attempts: 1}
	})
	scheduler := NewScheduler(DefaultConfig(), registry, prober)
	scheduler.RunCycle(ctx)

	services, err := registry.ListServices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.ServiceStatusOperational, services[0].Status)
}

func TestScheduler_StartStop(t *testing.T) {
	registry := seedCatalog(t, "web")
	prober := newFakeProber(nil)

	cfg := DefaultConfig()
	cfg.Interval = 20 * time.Millisecond
	scheduler := NewScheduler(cfg, registry, prober)

	scheduler.Start(context.Background())
	require.Eventually(t, func() bool {
		return prober.count("web") >= 2
	}, 2*time.Second, 5*time.Millisecond)

	scheduler.Stop()
	scheduler.Stop()

	calls := prober.count("web")
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, calls, prober.count("web"), "no probes after Stop")
}

func TestScheduler_RateLimit(t *testing.T) {
	registry := seedCatalog(t, "a", "b", "c")
	prober := newFakeProber(nil)

	cfg := DefaultConfig()
	cfg.ProbeRate = 20
	cfg.ProbeBurst = 1
	scheduler := NewScheduler(cfg, registry, prober)

	start := time.Now()
	scheduler.RunCycle(context.Background())

	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	assert.Equal(t, 1, prober.count("c"))
}
