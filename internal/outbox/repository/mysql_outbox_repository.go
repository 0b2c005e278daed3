package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/allisson/tokenvault/internal/database"
	apperrors "github.com/allisson/tokenvault/internal/errors"
	"github.com/allisson/tokenvault/internal/outbox/domain"
)

// MySQLOutboxEventRepository handles outbox event persistence for MySQL.
type MySQLOutboxEventRepository struct {
	db *sql.DB
}

// NewMySQLOutboxEventRepository creates a new MySQLOutboxEventRepository.
func NewMySQLOutboxEventRepository(db *sql.DB) *MySQLOutboxEventRepository {
	return &MySQLOutboxEventRepository{db: db}
}

// Create inserts an event.
func (r *MySQLOutboxEventRepository) Create(ctx context.Context, event *domain.OutboxEvent) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO outbox_events (id, event_type, payload, status, retries, last_error, processed_at, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	// BINARY(16)
	idBytes, err := event.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal outbox event id")
	}

	_, err = querier.ExecContext(ctx, query, idBytes, event.EventType, event.Payload, event.Status,
		event.Retries, event.LastError, event.ProcessedAt, event.CreatedAt, event.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, "failed to create outbox event")
	}
	return nil
}

// GetPendingEvents locks and returns up to limit pending events, oldest first.
func (r *MySQLOutboxEventRepository) GetPendingEvents(
	ctx context.Context,
	limit int,
) ([]*domain.OutboxEvent, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, event_type, payload, status, retries, last_error, processed_at, created_at, updated_at
			  FROM outbox_events
			  WHERE status = ?
			  ORDER BY created_at ASC
			  LIMIT ?
			  FOR UPDATE SKIP LOCKED`

	rows, err := querier.QueryContext(ctx, query, domain.OutboxEventStatusPending, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get pending outbox events")
	}
	defer rows.Close() //nolint:errcheck

	var events []*domain.OutboxEvent
	for rows.Next() {
		var event domain.OutboxEvent
		var idBytes []byte

		err := rows.Scan(&idBytes, &event.EventType, &event.Payload, &event.Status,
			&event.Retries, &event.LastError, &event.ProcessedAt, &event.CreatedAt, &event.UpdatedAt)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan outbox event")
		}

		if err := event.ID.UnmarshalBinary(idBytes); err != nil {
			return nil, apperrors.Wrap(err, "failed to unmarshal outbox event id")
		}

		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate outbox events")
	}

	return events, nil
}

// Update stores the delivery state of an event.
func (r *MySQLOutboxEventRepository) Update(ctx context.Context, event *domain.OutboxEvent) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_events
			  SET status = ?, retries = ?, last_error = ?, processed_at = ?, updated_at = NOW()
			  WHERE id = ?`

	idBytes, err := event.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal outbox event id")
	}

	_, err = querier.ExecContext(ctx, query, event.Status, event.Retries, event.LastError, event.ProcessedAt, idBytes)
	if err != nil {
		return apperrors.Wrap(err, "failed to update outbox event")
	}
	return nil
}

// DeleteProcessedBefore removes delivered events older than before.
func (r *MySQLOutboxEventRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `DELETE FROM outbox_events WHERE status = ? AND processed_at < ?`

	result, err := querier.ExecContext(ctx, query, domain.OutboxEventStatusProcessed, before.UTC())
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete processed outbox events")
	}
	return result.RowsAffected()
}
