// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bissquit/uptime-garden/internal/catalog"
	catalogmemory "github.com/bissquit/uptime-garden/internal/catalog/memory"
	catalogpostgres "github.com/bissquit/uptime-garden/internal/catalog/postgres"
	"github.com/bissquit/uptime-garden/internal/config"
	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/incidents"
	incidentsmemory "github.com/bissquit/uptime-garden/internal/incidents/memory"
	incidentspostgres "github.com/bissquit/uptime-garden/internal/incidents/postgres"
	"github.com/bissquit/uptime-garden/internal/monitor"
	"github.com/bissquit/uptime-garden/internal/pkg/ctxlog"
	"github.com/bissquit/uptime-garden/internal/pkg/httputil"
	"github.com/bissquit/uptime-garden/internal/pkg/metrics"
	"github.com/bissquit/uptime-garden/internal/pkg/postgres"
	"github.com/bissquit/uptime-garden/internal/version"
	"github.com/bissquit/uptime-garden/migrations"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const dbMetricsInterval = 15 * time.Second

// App represents the application instance.
type App struct {
	config  *config.Config
	logger  *slog.Logger
	db      *pgxpool.Pool
	storage httputil.Pinger

	catalog   *catalog.Service
	incidents *incidents.Service
	scheduler *monitor.Scheduler

	server        *http.Server
	metricsServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())

	app := &App{
		config: cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := app.initStorage(); err != nil {
		cancel()
		return nil, err
	}

	app.scheduler = monitor.NewScheduler(
		monitor.Config{
			Interval:    cfg.Monitor.Interval,
			Concurrency: cfg.Monitor.Concurrency,
			ProbeRate:   cfg.Monitor.ProbeRate,
			ProbeBurst:  cfg.Monitor.ProbeBurst,
			RunOnStart:  cfg.Monitor.RunOnStart,
		},
		app.catalog,
		monitor.NewHTTPProber(nil, cfg.Monitor.UserAgent),
	)

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           app.setupRouter(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// initStorage builds the catalog and incident services on the configured driver.
func (a *App) initStorage() error {
	cfg := a.config

	var (
		catalogRepo   catalog.Repository
		incidentsRepo incidents.Repository
	)

	switch cfg.Storage.Driver {
	case config.StorageDriverMemory:
		a.logger.Warn("using in-memory storage, state is lost on restart")
		catalogRepo = catalogmemory.NewRepository()
		incidentsRepo = incidentsmemory.NewRepository()

	default:
		connectCtx, connectCancel := context.WithTimeout(a.ctx, cfg.Database.ConnectTimeout)
		defer connectCancel()

		db, err := postgres.Connect(connectCtx, postgres.Config{
			URL:               cfg.Database.URL,
			MaxOpenConns:      cfg.Database.MaxOpenConns,
			MaxIdleConns:      cfg.Database.MaxIdleConns,
			ConnMaxLifetime:   cfg.Database.ConnMaxLifetime,
			HealthCheckPeriod: cfg.Database.HealthCheckPeriod,
			ConnectAttempts:   cfg.Database.ConnectAttempts,
		})
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		a.db = db

		if cfg.Database.Migrate {
			if err := postgres.Migrate(migrations.FS, cfg.Database.URL); err != nil {
				db.Close()
				return fmt.Errorf("migrate database: %w", err)
			}
		}

		go metrics.CollectDBPool(a.ctx, db, dbMetricsInterval)

		catalogRepo = catalogpostgres.NewRepository(db)
		incidentsRepo = incidentspostgres.NewRepository(db)
	}

	d := cfg.Monitor.Defaults
	a.catalog = catalog.NewService(catalogRepo, catalog.WithDefaults(domain.MonitoringConfig{
		Timeout:        d.Timeout,
		Interval:       d.Interval,
		ExpectedStatus: d.ExpectedStatus,
		RetryAttempts:  d.RetryAttempts,
	}))
	a.incidents = incidents.NewService(incidentsRepo, a.catalog)
	a.storage = a.catalog

	return nil
}

// Run starts the scheduler and the HTTP servers. It blocks until the API
// server stops.
func (a *App) Run() error {
	// Start metrics server in background
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	if a.config.Monitor.Enabled {
		a.scheduler.Start(a.ctx)
	} else {
		a.logger.Warn("monitor scheduler is disabled, services will only change through manual status updates")
	}

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
		"storage", a.config.Storage.Driver,
	)

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown stops probing, drains both servers and releases storage.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	a.scheduler.Stop()
	a.cancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	shutdown := func(name string, srv *http.Server) {
		defer wg.Done()
		if err := srv.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown %s: %w", name, err))
			mu.Unlock()
		}
	}

	wg.Add(2)
	go shutdown("server", a.server)
	go shutdown("metrics server", a.metricsServer)
	wg.Wait()

	if a.db != nil {
		a.db.Close()
	}

	return errors.Join(errs...)
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Scheduler returns the monitor scheduler.
func (a *App) Scheduler() *monitor.Scheduler {
	return a.scheduler
}

// Catalog returns the service registry.
func (a *App) Catalog() *catalog.Service {
	return a.catalog
}

func (a *App) ping(ctx context.Context) error {
	return a.storage.Ping(ctx)
}

func (a *App) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if a.config.Server.RequestTimeout > 0 {
		r.Use(middleware.Timeout(a.config.Server.RequestTimeout))
	}

	r.Get("/health", a.healthHandler)
	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})
	r.Get("/docs", docsHandler)

	catalogHandler := catalog.NewHandler(a.catalog)
	incidentsHandler := incidents.NewHandler(a.incidents)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httputil.RequireStorage(httputil.PingerFunc(a.ping)))

		catalogHandler.RegisterPublicRoutes(r)
		catalogHandler.RegisterAdminRoutes(r)
		incidentsHandler.RegisterPublicRoutes(r)
		incidentsHandler.RegisterAdminRoutes(r)
	})

	return r
}

type healthResponse struct {
	Status    string    `json:"status"`
	Database  string    `json:"database"`
	Timestamp time.Time `json:"timestamp"`
}

// healthHandler always answers 200 so the process stays reachable while the
// database is down; the body tells the two states apart.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), httputil.StoragePingTimeout)
	defer cancel()

	resp := healthResponse{
		Status:    "healthy",
		Database:  "connected",
		Timestamp: time.Now().UTC(),
	}

	err := a.ping(ctx)
	if err != nil {
		ctxlog.FromContext(r.Context()).Warn("health check: storage unavailable", "error", err)
		resp.Status = "degraded"
		resp.Database = "disconnected"
	}
	metrics.SetStorageUp(err == nil)

	httputil.JSON(w, http.StatusOK, resp)
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), httputil.StoragePingTimeout)
	defer cancel()

	if err := a.ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func docsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>Uptime Garden API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
        SwaggerUIBundle({
            url: "/api/openapi.yaml",
            dom_id: '#swagger-ui',
            presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
            layout: "BaseLayout"
        });
    </script>
</body>
</html>`))
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
