// Package postgres provides PostgreSQL implementation of the incidents repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/incidents"
	pgutil "github.com/bissquit/uptime-garden/internal/pkg/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements the incidents.Repository interface using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateIncident inserts the incident with its initial updates in one transaction.
func (r *Repository) CreateIncident(ctx context.Context, incident *domain.Incident) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return pgutil.WrapError("begin transaction", err)
	}
	defer rollback(ctx, tx)

	query := `
		INSERT INTO incidents (id, title, status, severity, service_id, created_at, updated_at, resolved_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, '')::uuid, $6, $7, $8)
	`
	if _, err := tx.Exec(ctx, query,
		incident.ID,
		incident.Title,
		incident.Status,
		incident.Severity,
		incident.ServiceID,
		incident.CreatedAt,
		incident.UpdatedAt,
		incident.ResolvedAt,
	); err != nil {
		return pgutil.WrapError("create incident", err)
	}

	for _, update := range incident.Updates {
		if err := insertUpdate(ctx, tx, incident.ID, update); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return pgutil.WrapError("commit transaction", err)
	}
	return nil
}

// GetIncident retrieves an incident with its updates.
func (r *Repository) GetIncident(ctx context.Context, id string) (*domain.Incident, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, incidents.ErrIncidentNotFound
	}

	query := `
		SELECT id, title, status, severity, COALESCE(service_id::text, ''), created_at, updated_at, resolved_at
		FROM incidents
		WHERE id = $1
	`
	var incident domain.Incident
	err := r.db.QueryRow(ctx, query, id).Scan(
		&incident.ID,
		&incident.Title,
		&incident.Status,
		&incident.Severity,
		&incident.ServiceID,
		&incident.CreatedAt,
		&incident.UpdatedAt,
		&incident.ResolvedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, incidents.ErrIncidentNotFound
		}
		return nil, pgutil.WrapError("get incident", err)
	}

	updates, err := r.listUpdates(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	incident.Updates = updates[id]
	if incident.Updates == nil {
		incident.Updates = make([]domain.IncidentUpdate, 0)
	}

	return &incident, nil
}

// ListIncidents returns up to limit incidents, newest first, with updates.
func (r *Repository) ListIncidents(ctx context.Context, limit int) ([]domain.Incident, error) {
	query := `
		SELECT id, title, status, severity, COALESCE(service_id::text, ''), created_at, updated_at, resolved_at
		FROM incidents
		ORDER BY created_at DESC, seq DESC
		LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, pgutil.WrapError("list incidents", err)
	}
	defer rows.Close()

	result := make([]domain.Incident, 0)
	ids := make([]string, 0)
	for rows.Next() {
		var incident domain.Incident
		if err := rows.Scan(
			&incident.ID,
			&incident.Title,
			&incident.Status,
			&incident.Severity,
			&incident.ServiceID,
			&incident.CreatedAt,
			&incident.UpdatedAt,
			&incident.ResolvedAt,
		); err != nil {
			return nil, pgutil.WrapError("scan incident", err)
		}
		result = append(result, incident)
		ids = append(ids, incident.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, pgutil.WrapError("iterate incidents", err)
	}

	if len(ids) == 0 {
		return result, nil
	}

	updates, err := r.listUpdates(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range result {
		result[i].Updates = updates[result[i].ID]
		if result[i].Updates == nil {
			result[i].Updates = make([]domain.IncidentUpdate, 0)
		}
	}

	return result, nil
}

// SaveUpdate stores the incident status change and the appended update in one transaction.
func (r *Repository) SaveUpdate(ctx context.Context, incident *domain.Incident, update domain.IncidentUpdate) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return pgutil.WrapError("begin transaction", err)
	}
	defer rollback(ctx, tx)

	query := `
		UPDATE incidents
		SET status = $2, updated_at = $3, resolved_at = $4
		WHERE id = $1
	`
	result, err := tx.Exec(ctx, query, incident.ID, incident.Status, incident.UpdatedAt, incident.ResolvedAt)
	if err != nil {
		return pgutil.WrapError("update incident", err)
	}
	if result.RowsAffected() == 0 {
		return incidents.ErrIncidentNotFound
	}

	if err := insertUpdate(ctx, tx, incident.ID, update); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return pgutil.WrapError("commit transaction", err)
	}
	return nil
}

// Ping checks database reachability.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStorageUnavailable, err)
	}
	return nil
}

func (r *Repository) listUpdates(ctx context.Context, incidentIDs []string) (map[string][]domain.IncidentUpdate, error) {
	query := `
		SELECT id, incident_id, status, message, created_at
		FROM incident_updates
		WHERE incident_id = ANY($1::uuid[])
		ORDER BY created_at, seq
	`
	rows, err := r.db.Query(ctx, query, incidentIDs)
	if err != nil {
		return nil, pgutil.WrapError("list incident updates", err)
	}
	defer rows.Close()

	updates := make(map[string][]domain.IncidentUpdate, len(incidentIDs))
	for rows.Next() {
		var (
			update     domain.IncidentUpdate
			incidentID string
		)
		if err := rows.Scan(&update.ID, &incidentID, &update.Status, &update.Message, &update.Timestamp); err != nil {
			return nil, pgutil.WrapError("scan incident update", err)
		}
		updates[incidentID] = append(updates[incidentID], update)
	}
	if err := rows.Err(); err != nil {
		return nil, pgutil.WrapError("iterate incident updates", err)
	}

	return updates, nil
}

func insertUpdate(ctx context.Context, tx pgx.Tx, incidentID string, update domain.IncidentUpdate) error {
	query := `
		INSERT INTO incident_updates (id, incident_id, status, message, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := tx.Exec(ctx, query, update.ID, incidentID, update.Status, update.Message, update.Timestamp); err != nil {
		return pgutil.WrapError("insert incident update", err)
	}
	return nil
}

func rollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		slog.Error("failed to rollback transaction", "error", err)
	}
}
