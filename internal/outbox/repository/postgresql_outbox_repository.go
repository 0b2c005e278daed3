// Package repository persists outbox events for PostgreSQL and MySQL.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/allisson/tokenvault/internal/database"
	apperrors "github.com/allisson/tokenvault/internal/errors"
	"github.com/allisson/tokenvault/internal/outbox/domain"
)

// PostgreSQLOutboxEventRepository handles outbox event persistence for PostgreSQL.
type PostgreSQLOutboxEventRepository struct {
	db *sql.DB
}

// NewPostgreSQLOutboxEventRepository creates a new PostgreSQLOutboxEventRepository.
func NewPostgreSQLOutboxEventRepository(db *sql.DB) *PostgreSQLOutboxEventRepository {
	return &PostgreSQLOutboxEventRepository{db: db}
}

// Create inserts an event. Inside a transaction the insert commits or rolls back with
// the state change it describes.
func (r *PostgreSQLOutboxEventRepository) Create(ctx context.Context, event *domain.OutboxEvent) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO outbox_events (id, event_type, payload, status, retries, last_error, processed_at, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := querier.ExecContext(ctx, query, event.ID, event.EventType, event.Payload, event.Status,
		event.Retries, event.LastError, event.ProcessedAt, event.CreatedAt, event.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, "failed to create outbox event")
	}
	return nil
}

// GetPendingEvents locks and returns up to limit pending events, oldest first. Rows
// locked by another processor are skipped.
func (r *PostgreSQLOutboxEventRepository) GetPendingEvents(
	ctx context.Context,
	limit int,
) ([]*domain.OutboxEvent, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, event_type, payload, status, retries, last_error, processed_at, created_at, updated_at
			  FROM outbox_events
			  WHERE status = $1
			  ORDER BY created_at ASC
			  LIMIT $2
			  FOR UPDATE SKIP LOCKED`

	rows, err := querier.QueryContext(ctx, query, domain.OutboxEventStatusPending, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get pending outbox events")
	}
	defer rows.Close() //nolint:errcheck

	var events []*domain.OutboxEvent
	for rows.Next() {
		var event domain.OutboxEvent

		err := rows.Scan(&event.ID, &event.EventType, &event.Payload, &event.Status,
			&event.Retries, &event.LastError, &event.ProcessedAt, &event.CreatedAt, &event.UpdatedAt)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan outbox event")
		}

		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate outbox events")
	}

	return events, nil
}

// Update stores the delivery state of an event.
func (r *PostgreSQLOutboxEventRepository) Update(ctx context.Context, event *domain.OutboxEvent) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_events
			  SET status = $1, retries = $2, last_error = $3, processed_at = $4, updated_at = NOW()
			  WHERE id = $5`

	_, err := querier.ExecContext(ctx, query, event.Status, event.Retries, event.LastError, event.ProcessedAt, event.ID)
	if err != nil {
		return apperrors.Wrap(err, "failed to update outbox event")
	}
	return nil
}

// DeleteProcessedBefore removes delivered events older than before.
func (r *PostgreSQLOutboxEventRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `DELETE FROM outbox_events WHERE status = $1 AND processed_at < $2`

	result, err := querier.ExecContext(ctx, query, domain.OutboxEventStatusProcessed, before.UTC())
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete processed outbox events")
	}
	return result.RowsAffected()
}
