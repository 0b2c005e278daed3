// Package repository implements token record persistence for PostgreSQL and MySQL and the
// Redis revocation cache.
//
// Envelopes are stored in their JSON wire form. Driver errors are wrapped with
// domain.ErrStorage; a missing row is reported as domain.ErrTokenNotFound.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/allisson/tokenvault/internal/database"
	"github.com/allisson/tokenvault/internal/token/domain"
)

// storageError wraps a driver error so callers can match both domain.ErrStorage and the
// original cause.
func storageError(message string, err error) error {
	return fmt.Errorf("%s: %w: %w", message, domain.ErrStorage, err)
}

// RowScanner is implemented by *sql.Row and *sql.Rows.
type RowScanner interface {
	Scan(dest ...any) error
}

// ScanTokenRecord reads the columns selected by TokenRecordColumns into a record and
// decodes its envelope.
func ScanTokenRecord(row RowScanner) (*domain.TokenRecord, error) {
	var record domain.TokenRecord
	var tokenType, envelope string

	err := row.Scan(
		&record.TokenID,
		&record.UserID,
		&tokenType,
		&envelope,
		&record.Purpose,
		&record.ExpiresAt,
		&record.DeviceInfo,
		&record.Revoked,
		&record.RevokedAt,
		&record.RevocationReason,
		&record.LastAccessedAt,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.TokenType = domain.TokenType(tokenType)
	record.Envelope, err = domain.DecodeEnvelope([]byte(envelope))
	if err != nil {
		return nil, err
	}

	record.ExpiresAt = record.ExpiresAt.UTC()
	record.CreatedAt = record.CreatedAt.UTC()
	for _, ts := range []*time.Time{record.RevokedAt, record.LastAccessedAt} {
		if ts != nil {
			*ts = ts.UTC()
		}
	}
	return &record, nil
}

// TokenRecordColumns is the column list ScanTokenRecord expects.
const TokenRecordColumns = `token_id, user_id, token_type, envelope, purpose, expires_at, device_info,
	revoked, revoked_at, revocation_reason, last_accessed_at, created_at`

// PostgreSQLTokenRepository implements token record persistence for PostgreSQL databases.
type PostgreSQLTokenRepository struct {
	db *sql.DB
}

// Upsert inserts a token record. An existing record keeps its owner, expiry, revocation
// state and timestamps; only the envelope, type, purpose and device info are replaced.
func (p *PostgreSQLTokenRepository) Upsert(ctx context.Context, record *domain.TokenRecord) error {
	querier := database.GetTx(ctx, p.db)

	envelope, err := record.Envelope.Encode()
	if err != nil {
		return err
	}

	query := `INSERT INTO token_records (token_id, user_id, token_type, key_version, envelope, purpose,
				expires_at, device_info, revoked, revoked_at, revocation_reason, last_accessed_at, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			  ON CONFLICT (token_id) DO UPDATE SET
				token_type = EXCLUDED.token_type,
				key_version = EXCLUDED.key_version,
				envelope = EXCLUDED.envelope,
				purpose = EXCLUDED.purpose,
				device_info = EXCLUDED.device_info`

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
func (p *PostgreSQLTokenRepository) Get(ctx context.Context, tokenID string) (*domain.TokenRecord, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + TokenRecordColumns + ` FROM token_records WHERE token_id = $1`

	record, err := ScanTokenRecord(querier.QueryRowContext(ctx, query, tokenID))
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
func (p *PostgreSQLTokenRepository) MarkRevoked(
	ctx context.Context,
	tokenID, reason string,
	revokedAt time.Time,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE token_records SET revoked = TRUE, revoked_at = $1, revocation_reason = $2
			  WHERE token_id = $3 AND revoked = FALSE`

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
func (p *PostgreSQLTokenRepository) CreateRevocationEntry(ctx context.Context, entry *domain.RevocationEntry) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO token_revocations (id, token_id, user_id, reason, revoked_at)
			  VALUES ($1, $2, $3, $4, $5)`

	_, err := querier.ExecContext(ctx, query, entry.ID, entry.TokenID, entry.UserID, entry.Reason, entry.RevokedAt.UTC())
	if err != nil {
		return storageError("failed to create revocation entry", err)
	}
	return nil
}

// ListActiveTokenIDs returns the ids of a user's unrevoked records that have not expired at now.
func (p *PostgreSQLTokenRepository) ListActiveTokenIDs(
	ctx context.Context,
	userID string,
	now time.Time,
) ([]string, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT token_id FROM token_records
			  WHERE user_id = $1 AND revoked = FALSE AND expires_at >= $2
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
func (p *PostgreSQLTokenRepository) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT
				EXISTS (SELECT 1 FROM token_records WHERE token_id = $1 AND revoked = TRUE)
				OR EXISTS (SELECT 1 FROM token_revocations WHERE token_id = $1)`

	var revoked bool
	if err := querier.QueryRowContext(ctx, query, tokenID).Scan(&revoked); err != nil {
		return false, storageError("failed to check revocation", err)
	}
	return revoked, nil
}

// TouchLastAccessed sets last_accessed_at.
func (p *PostgreSQLTokenRepository) TouchLastAccessed(ctx context.Context, tokenID string, at time.Time) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE token_records SET last_accessed_at = $1 WHERE token_id = $2`

	if _, err := querier.ExecContext(ctx, query, at.UTC(), tokenID); err != nil {
		return storageError("failed to update last access time", err)
	}
	return nil
}

// DeleteStale deletes records that expired before expiredBefore or were revoked before
// revokedBefore. Revocation entries are append-only and are never deleted.
func (p *PostgreSQLTokenRepository) DeleteStale(
	ctx context.Context,
	expiredBefore, revokedBefore time.Time,
) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	query := `DELETE FROM token_records
			  WHERE expires_at < $1 OR (revoked = TRUE AND revoked_at < $2)`

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
func (p *PostgreSQLTokenRepository) CountStale(
	ctx context.Context,
	expiredBefore, revokedBefore time.Time,
) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT COUNT(*) FROM token_records
			  WHERE expires_at < $1 OR (revoked = TRUE AND revoked_at < $2)`

	var count int64
	if err := querier.QueryRowContext(ctx, query, expiredBefore.UTC(), revokedBefore.UTC()).Scan(&count); err != nil {
		return 0, storageError("failed to count stale token records", err)
	}
	return count, nil
}

// NewPostgreSQLTokenRepository creates a new PostgreSQL token record repository.
func NewPostgreSQLTokenRepository(db *sql.DB) *PostgreSQLTokenRepository {
	return &PostgreSQLTokenRepository{db: db}
}
