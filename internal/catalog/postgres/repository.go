// Package postgres provides PostgreSQL implementation of the catalog repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/uptime-garden/internal/catalog"
	"github.com/bissquit/uptime-garden/internal/domain"
	pgutil "github.com/bissquit/uptime-garden/internal/pkg/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// Repository implements the catalog.Repository interface using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const serviceColumns = `
	id, name, endpoint, description,
	timeout_ms, interval_ms, expected_status, retry_attempts,
	status, uptime, latency, availability, error_rate,
	last_checked, created_at
`

// CreateService inserts a new service.
func (r *Repository) CreateService(ctx context.Context, service *domain.Service) error {
	query := `
		INSERT INTO services (
			id, name, endpoint, description,
			timeout_ms, interval_ms, expected_status, retry_attempts,
			status, uptime, latency, availability, error_rate,
			last_checked, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := r.db.Exec(ctx, query,
		service.ID,
		service.Name,
		service.Endpoint,
		service.Description,
		service.MonitoringConfig.Timeout.Milliseconds(),
		service.MonitoringConfig.Interval.Milliseconds(),
		service.MonitoringConfig.ExpectedStatus,
		service.MonitoringConfig.RetryAttempts,
		service.Status,
		service.Uptime,
		service.Metrics.Latency,
		service.Metrics.Availability,
		service.Metrics.ErrorRate,
		service.LastChecked,
		service.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return catalog.ErrDuplicateName
		}
		return pgutil.WrapError("create service", err)
	}
	return nil
}

// GetServiceByID retrieves a service with its full status history.
func (r *Repository) GetServiceByID(ctx context.Context, id string) (*domain.Service, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, catalog.ErrServiceNotFound
	}

	query := `SELECT ` + serviceColumns + ` FROM services WHERE id = $1`

	service, err := scanService(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrServiceNotFound
		}
		return nil, pgutil.WrapError("get service by id", err)
	}

	history, err := r.ListStatusHistory(ctx, id, domain.StatusHistoryCap)
	if err != nil {
		return nil, err
	}
	service.StatusHistory = history

	return service, nil
}

// ListServices retrieves all services in registration order, without history.
func (r *Repository) ListServices(ctx context.Context) ([]domain.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services ORDER BY seq`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, pgutil.WrapError("list services", err)
	}
	defer rows.Close()

	services := make([]domain.Service, 0)
	for rows.Next() {
		service, err := scanService(rows)
		if err != nil {
			return nil, pgutil.WrapError("scan service", err)
		}
		services = append(services, *service)
	}

	if err := rows.Err(); err != nil {
		return nil, pgutil.WrapError("iterate services", err)
	}

	return services, nil
}

// CountServices returns the number of registered services.
func (r *Repository) CountServices(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM services`).Scan(&count); err != nil {
		return 0, pgutil.WrapError("count services", err)
	}
	return count, nil
}

// DeleteAllServices removes every service. History rows cascade.
func (r *Repository) DeleteAllServices(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM services`); err != nil {
		return pgutil.WrapError("delete services", err)
	}
	return nil
}

// SaveStatus updates live state, appends the history entry and prunes history
// beyond the cap in one transaction.
func (r *Repository) SaveStatus(ctx context.Context, service *domain.Service, entry domain.StatusHistoryEntry) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return pgutil.WrapError("begin transaction", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("failed to rollback transaction", "error", err)
		}
	}()

	updateQuery := `
		UPDATE services
		SET status = $2, uptime = $3, latency = $4, availability = $5, error_rate = $6, last_checked = $7
		WHERE id = $1
	`
	result, err := tx.Exec(ctx, updateQuery,
		service.ID,
		service.Status,
		service.Uptime,
		service.Metrics.Latency,
		service.Metrics.Availability,
		service.Metrics.ErrorRate,
		service.LastChecked,
	)
	if err != nil {
		return pgutil.WrapError("update service status", err)
	}
	if result.RowsAffected() == 0 {
		return catalog.ErrServiceNotFound
	}

	insertQuery := `
		INSERT INTO service_status_history (service_id, status, message, latency, availability, error_rate, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := tx.Exec(ctx, insertQuery,
		service.ID,
		entry.Status,
		entry.Message,
		entry.Metrics.Latency,
		entry.Metrics.Availability,
		entry.Metrics.ErrorRate,
		entry.Timestamp,
	); err != nil {
		return pgutil.WrapError("insert status history", err)
	}

	pruneQuery := `
		DELETE FROM service_status_history
		WHERE service_id = $1 AND id NOT IN (
			SELECT id FROM service_status_history
			WHERE service_id = $1
			ORDER BY recorded_at DESC, id DESC
			LIMIT $2
		)
	`
	if _, err := tx.Exec(ctx, pruneQuery, service.ID, domain.StatusHistoryCap); err != nil {
		return pgutil.WrapError("prune status history", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return pgutil.WrapError("commit transaction", err)
	}

	return nil
}

// ListStatusHistory returns up to limit most recent history entries, newest first.
func (r *Repository) ListStatusHistory(ctx context.Context, serviceID string, limit int) ([]domain.StatusHistoryEntry, error) {
	query := `
		SELECT status, message, latency, availability, error_rate, recorded_at
		FROM service_status_history
		WHERE service_id = $1
		ORDER BY recorded_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, serviceID, limit)
	if err != nil {
		return nil, pgutil.WrapError("list status history", err)
	}
	defer rows.Close()

	history := make([]domain.StatusHistoryEntry, 0)
	for rows.Next() {
		var entry domain.StatusHistoryEntry
		if err := rows.Scan(
			&entry.Status,
			&entry.Message,
			&entry.Metrics.Latency,
			&entry.Metrics.Availability,
			&entry.Metrics.ErrorRate,
			&entry.Timestamp,
		); err != nil {
			return nil, pgutil.WrapError("scan status history entry", err)
		}
		history = append(history, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, pgutil.WrapError("iterate status history", err)
	}

	return history, nil
}

// Ping checks database reachability.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}
	return nil
}

func scanService(row pgx.Row) (*domain.Service, error) {
	var (
		service    domain.Service
		timeoutMs  int64
		intervalMs int64
	)
	err := row.Scan(
		&service.ID,
		&service.Name,
		&service.Endpoint,
		&service.Description,
		&timeoutMs,
		&intervalMs,
		&service.MonitoringConfig.ExpectedStatus,
		&service.MonitoringConfig.RetryAttempts,
		&service.Status,
		&service.Uptime,
		&service.Metrics.Latency,
		&service.Metrics.Availability,
		&service.Metrics.ErrorRate,
		&service.LastChecked,
		&service.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	service.MonitoringConfig.Timeout = time.Duration(timeoutMs) * time.Millisecond
	service.MonitoringConfig.Interval = time.Duration(intervalMs) * time.Millisecond
	return &service, nil
}
