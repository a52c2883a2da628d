package monitor

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/pkg/ctxlog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Registry is the part of the catalog the scheduler depends on.
type Registry interface {
	ListServices(ctx context.Context) ([]domain.Service, error)
	RecordProbe(ctx context.Context, serviceID string, outcome domain.ProbeOutcome) error
}

// Config contains scheduler configuration.
type Config struct {
	Interval    time.Duration
	Concurrency int
	// ProbeRate limits probe starts per second. Zero means unlimited.
	ProbeRate  float64
	ProbeBurst int
	RunOnStart bool
}

// DefaultConfig returns default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		Interval:    60 * time.Second,
		Concurrency: 10,
		ProbeBurst:  1,
		RunOnStart:  true,
	}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source used to decide which services are due.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// Scheduler drives periodic probing of every registered service.
//
// A cycle snapshots the registry and probes each due service concurrently,
// bounded by Config.Concurrency. Ticks that arrive while a cycle is still
// running are dropped.
type Scheduler struct {
	config   Config
	registry Registry
	prober   Prober
	limiter  *rate.Limiter
	now      func() time.Time

	cycling atomic.Bool

	mu         sync.Mutex
	lastProbed map[string]time.Time

	cancel  context.CancelFunc
	stopped chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewScheduler creates a new scheduler.
func NewScheduler(config Config, registry Registry, prober Prober, opts ...Option) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConfig().Concurrency
	}

	s := &Scheduler{
		config:     config,
		registry:   registry,
		prober:     prober,
		now:        time.Now,
		lastProbed: make(map[string]time.Time),
		stopped:    make(chan struct{}),
	}

	if config.ProbeRate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(config.ProbeRate), max(config.ProbeBurst, 1))
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the scheduling loop. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	slog.Info("starting monitor scheduler",
		"interval", s.config.Interval,
		"concurrency", s.config.Concurrency,
		"probe_rate", s.config.ProbeRate,
	)

	s.wg.Add(1)
	go s.run(ctx)
}

// Stop cancels in-flight probes and waits for the loop and any running cycle
// to return. Stop is safe to call more than once.
func (s *Scheduler) Stop() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		close(s.stopped)
		s.wg.Wait()
		slog.Info("monitor scheduler stopped")
	})
}

// Cycling reports whether a cycle is in progress.
func (s *Scheduler) Cycling() bool {
	return s.cycling.Load()
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	if s.config.RunOnStart {
		s.spawnCycle(ctx)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopped:
			return
		case <-ticker.C:
			s.spawnCycle(ctx)
		}
	}
}

// spawnCycle runs a cycle without blocking the ticker loop so that a slow
// cycle shows up as skipped ticks instead of a stalled timer.
func (s *Scheduler) spawnCycle(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.RunCycle(ctx)
	}()
}

// RunCycle probes every due service once. It returns false without doing
// anything when another cycle is already running.
func (s *Scheduler) RunCycle(ctx context.Context) bool {
	if !s.cycling.CompareAndSwap(false, true) {
		recordSkippedTick()
		slog.Warn("monitor cycle still running, skipping tick")
		return false
	}
	defer s.cycling.Store(false)

	start := time.Now()

	services, err := s.registry.ListServices(ctx)
	if err != nil {
		slog.Error("failed to list services for monitor cycle", "error", err)
		return true
	}

	due := s.dueServices(services, s.now())

	var g errgroup.Group
	g.SetLimit(s.config.Concurrency)

	for _, service := range due {
		g.Go(func() error {
			if s.limiter != nil {
				if err := s.limiter.Wait(ctx); err != nil {
					return nil
				}
			}
			s.probeService(ctx, service)
			return nil
		})
	}
	_ = g.Wait()

	duration := time.Since(start)
	recordCycle(len(due), duration)
	slog.Debug("monitor cycle completed",
		"services", len(due),
		"registered", len(services),
		"duration", duration,
	)

	return true
}

// probeService probes and records one service. Any panic is contained here so
// the rest of the cycle proceeds.
func (s *Scheduler) probeService(ctx context.Context, service domain.Service) {
	ctx, logger := ctxlog.With(ctx, "service_id", service.ID, "service", service.Name)

	defer func() {
		if r := recover(); r != nil {
			recordPanic()
			logger.Error("panic while probing service",
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	start := time.Now()
	outcome := s.prober.Probe(ctx, service)
	recordProbe(outcome, time.Since(start))

	// Shutdown interrupts probes; those outcomes say nothing about the service.
	if ctx.Err() != nil {
		return
	}

	if err := s.registry.RecordProbe(ctx, service.ID, outcome); err != nil {
		logger.Error("failed to record probe outcome", "error", err)
		return
	}

	if outcome.Success {
		logger.Debug("service probed", "latency_ms", outcome.LatencyMs)
	} else {
		logger.Warn("service probe failed",
			"attempt", outcome.Attempts,
			"error", outcome.Err,
		)
	}
}

// dueServices filters services whose own interval has elapsed since their last
// probe. Intervals are rounded to the nearest scheduler tick. Services that are
// no longer registered are forgotten.
func (s *Scheduler) dueServices(services []domain.Service, now time.Time) []domain.Service {
	s.mu.Lock()
	defer s.mu.Unlock()

	slack := s.config.Interval / 2
	seen := make(map[string]time.Time, len(services))
	due := make([]domain.Service, 0, len(services))

	for _, service := range services {
		last, ok := s.lastProbed[service.ID]
		interval := service.MonitoringConfig.Interval
		if !ok || interval <= 0 || now.Sub(last)+slack >= interval {
			due = append(due, service)
			last = now
		}
		seen[service.ID] = last
	}

	s.lastProbed = seen
	return due
}
