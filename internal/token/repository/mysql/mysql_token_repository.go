// Package mysql implements token record persistence for MySQL databases.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/allisson/tokenvault/internal/database"
	"github.com/allisson/tokenvault/internal/token/domain"
	"github.com/allisson/tokenvault/internal/token/repository"
)

func storageError(message string, err error) error {
	return fmt.Errorf("%s: %w: %w", message, domain.ErrStorage, err)
}

// MySQLTokenRepository implements token record persistence for MySQL databases.
type MySQLTokenRepository struct {
	db *sql.DB
}

// Upsert inserts a token record. An existing record keeps its owner, expiry, revocation
// state and timestamps; only the envelope, type, purpose and device info are replaced.
func (m *MySQLTokenRepository) Upsert(ctx context.Context, record *domain.TokenRecord) error {
	querier := database.GetTx(ctx, m.db)

	envelope, err := record.Envelope.Encode()
	if err != nil {
		return err
	}

	query := `INSERT INTO token_records (token_id, user_id, token_type, key_version, envelope, purpose,
				expires_at, device_info, revoked, revoked_at, revocation_reason, last_accessed_at, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			  ON DUPLICATE KEY UPDATE
				token_type = VALUES(token_type),
				key_version = VALUES(key_version),
				envelope = VALUES(envelope),
				purpose = VALUES(purpose),
				device_info = VALUES(device_info)`

	_, err = querier.ExecContext(
		ctx,
		query,
		record.TokenID,
		record.UserID,
		record.TokenType.String(),
		record.Envelope.Version,
		string(envelope),
		record.Purpose,
		record.ExpiresAt.UTC(),
		record.DeviceInfo,
		record.Revoked,
		record.RevokedAt,
		record.RevocationReason,
		record.LastAccessedAt,
		record.CreatedAt.UTC(),
	)
	if err != nil {
		return storageError("failed to upsert token record", err)
	}
	return nil
}

// Get retrieves a token record by id.
func (m *MySQLTokenRepository) Get(ctx context.Context, tokenID string) (*domain.TokenRecord, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + repository.TokenRecordColumns + ` FROM token_records WHERE token_id = ?`

	record, err := repository.ScanTokenRecord(querier.QueryRowContext(ctx, query, tokenID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTokenNotFound
		}
		if errors.Is(err, domain.ErrMalformedEnvelope) {
			return nil, err
		}
		return nil, storageError("failed to get token record", err)
	}
	return record, nil
}

// MarkRevoked flags an unrevoked record as revoked.
func (m *MySQLTokenRepository) MarkRevoked(ctx context.Context, tokenID, reason string, revokedAt time.Time) error {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE token_records SET revoked = TRUE, revoked_at = ?, revocation_reason = ?
			  WHERE token_id = ? AND revoked = FALSE`

	result, err := querier.ExecContext(ctx, query, revokedAt.UTC(), reason, tokenID)
	if err != nil {
		return storageError("failed to revoke token record", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return storageError("failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return domain.ErrTokenNotFound
	}
	return nil
}

// CreateRevocationEntry appends an entry to the revocation list.
func (m *MySQLTokenRepository) CreateRevocationEntry(ctx context.Context, entry *domain.RevocationEntry) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO token_revocations (id, token_id, user_id, reason, revoked_at) VALUES (?, ?, ?, ?, ?)`

	id, err := entry.ID.MarshalBinary()
	if err != nil {
		return storageError("failed to marshal revocation entry id", err)
	}

	_, err = querier.ExecContext(ctx, query, id, entry.TokenID, entry.UserID, entry.Reason, entry.RevokedAt.UTC())
	if err != nil {
		return storageError("failed to create revocation entry", err)
	}
	return nil
}

// ListActiveTokenIDs returns the ids of a user's unrevoked records that have not expired at now.
func (m *MySQLTokenRepository) ListActiveTokenIDs(ctx context.Context, userID string, now time.Time) ([]string, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT token_id FROM token_records
			  WHERE user_id = ? AND revoked = FALSE AND expires_at >= ?
			  ORDER BY token_id
			  FOR UPDATE`

	rows, err := querier.QueryContext(ctx, query, userID, now.UTC())
	if err != nil {
		return nil, storageError("failed to list active tokens", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var tokenIDs []string
	for rows.Next() {
		var tokenID string
		if err := rows.Scan(&tokenID); err != nil {
			return nil, storageError("failed to scan token id", err)
		}
		tokenIDs = append(tokenIDs, tokenID)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("failed to iterate active tokens", err)
	}
	return tokenIDs, nil
}

// IsRevoked reports whether the record is flagged revoked or the id is on the revocation list.
func (m *MySQLTokenRepository) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT
				EXISTS (SELECT 1 FROM token_records WHERE token_id = ? AND revoked = TRUE)
				OR EXISTS (SELECT 1 FROM token_revocations WHERE token_id = ?)`

	var revoked bool
	if err := querier.QueryRowContext(ctx, query, tokenID, tokenID).Scan(&revoked); err != nil {
		return false, storageError("failed to check revocation", err)
	}
	return revoked, nil
}

// TouchLastAccessed sets last_accessed_at.
func (m *MySQLTokenRepository) TouchLastAccessed(ctx context.Context, tokenID string, at time.Time) error {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE token_records SET last_accessed_at = ? WHERE token_id = ?`

	if _, err := querier.ExecContext(ctx, query, at.UTC(), tokenID); err != nil {
		return storageError("failed to update last access time", err)
	}
	return nil
}

// DeleteStale deletes records that expired before expiredBefore or were revoked before
// revokedBefore. Revocation entries are append-only and are never deleted.
func (m *MySQLTokenRepository) DeleteStale(ctx context.Context, expiredBefore, revokedBefore time.Time) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	query := `DELETE FROM token_records WHERE expires_at < ? OR (revoked = TRUE AND revoked_at < ?)`

	result, err := querier.ExecContext(ctx, query, expiredBefore.UTC(), revokedBefore.UTC())
	if err != nil {
		return 0, storageError("failed to delete stale token records", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, storageError("failed to get rows affected", err)
	}

	return rowsAffected, nil
}

// CountStale counts the records DeleteStale would delete.
func (m *MySQLTokenRepository) CountStale(ctx context.Context, expiredBefore, revokedBefore time.Time) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT COUNT(*) FROM token_records WHERE expires_at < ? OR (revoked = TRUE AND revoked_at < ?)`

	var count int64
	if err := querier.QueryRowContext(ctx, query, expiredBefore.UTC(), revokedBefore.UTC()).Scan(&count); err != nil {
		return 0, storageError("failed to count stale token records", err)
	}
	return count, nil
}

// NewMySQLTokenRepository creates a new MySQL token record repository.
func NewMySQLTokenRepository(db *sql.DB) *MySQLTokenRepository {
	return &MySQLTokenRepository{db: db}
}
