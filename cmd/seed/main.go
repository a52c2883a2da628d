// Command seed resets the service registry and registers the services listed
// in a YAML seed file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bissquit/uptime-garden/internal/catalog"
	catalogpostgres "github.com/bissquit/uptime-garden/internal/catalog/postgres"
	"github.com/bissquit/uptime-garden/internal/config"
	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/pkg/postgres"
	"github.com/bissquit/uptime-garden/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	seedPath := flag.String("file", "seed.yaml", "path to the seed file")
	reset := flag.Bool("reset", true, "delete all services and their history before seeding")
	timeout := flag.Duration("timeout", 2*time.Minute, "time allowed for seeding once connected")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	if err := run(*configPath, *seedPath, *reset, *timeout); err != nil {
		slog.Error("seeding failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath, seedPath string, reset bool, timeout time.Duration) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Storage.Driver != config.StorageDriverPostgres {
		return errors.New("seeding requires the postgres storage driver")
	}

	seed, err := loadSeedFile(seedPath)
	if err != nil {
		return err
	}

	db, err := connect(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if cfg.Database.Migrate {
		if err := postgres.Migrate(migrations.FS, cfg.Database.URL); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
	}

	d := cfg.Monitor.Defaults
	registry := catalog.NewService(catalogpostgres.NewRepository(db), catalog.WithDefaults(domain.MonitoringConfig{
		Timeout:        d.Timeout,
		Interval:       d.Interval,
		ExpectedStatus: d.ExpectedStatus,
		RetryAttempts:  d.RetryAttempts,
	}))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return seedRegistry(ctx, registry, seed, reset)
}

// connect bounds connection retries by ConnectTimeout alone.
func connect(cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	return postgres.Connect(ctx, postgres.Config{
		URL:             cfg.URL,
		MaxOpenConns:    2,
		ConnectAttempts: cfg.ConnectAttempts,
	})
}

// Registry is the part of the catalog used for seeding.
type Registry interface {
	Reset(ctx context.Context) error
	RegisterService(ctx context.Context, input catalog.RegisterServiceInput) (*domain.Service, error)
}

func seedRegistry(ctx context.Context, registry Registry, seed *SeedFile, reset bool) error {
	if reset {
		if err := registry.Reset(ctx); err != nil {
			return fmt.Errorf("reset registry: %w", err)
		}
		slog.Info("cleared existing services")
	}

	for _, input := range seed.Inputs() {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("seeding interrupted before %q: %w", input.Name, err)
		}

		service, err := registry.RegisterService(ctx, input)
		if errors.Is(err, catalog.ErrInitialEntry) {
			slog.Warn("registered service without initial entry", "id", service.ID, "name", service.Name, "error", err)
			continue
		}
		if err != nil {
			return fmt.Errorf("register %q: %w", input.Name, err)
		}
		slog.Info("registered service", "id", service.ID, "name", service.Name, "endpoint", service.Endpoint)
	}

	slog.Info("database seeded", "services", len(seed.Services))
	return nil
}
