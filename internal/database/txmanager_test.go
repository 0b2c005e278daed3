package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestNewTxManager(t *testing.T) {
	db, _ := newMockDB(t)

	txManager := NewTxManager(db)
	assert.NotNil(t, txManager)
	assert.IsType(t, &sqlTxManager{}, txManager)
}

func TestWithTx_Success(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE token_records").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := NewTxManager(db).WithTx(context.Background(), func(ctx context.Context) error {
		querier := GetTx(ctx, db)
		assert.IsType(t, &sql.Tx{}, querier)
		_, err := querier.ExecContext(ctx, "UPDATE token_records SET revoked = true")
		return err
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollbackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	err := NewTxManager(db).WithTx(context.Background(), func(ctx context.Context) error {
		return assert.AnError
	})

	assert.Equal(t, assert.AnError, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollbackErrorIsJoined(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback().WillReturnError(errors.New("connection reset"))

	err := NewTxManager(db).WithTx(context.Background(), func(ctx context.Context) error {
		return assert.AnError
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestWithTx_BeginError(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	called := false
	err := NewTxManager(db).WithTx(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to begin transaction")
	assert.False(t, called)
}

func TestWithTx_CommitError(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

	err := NewTxManager(db).WithTx(context.Background(), func(ctx context.Context) error {
		return nil
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to commit transaction")
}

func TestWithTx_NestedJoinsOuterTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO outbox_events").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	txManager := NewTxManager(db)
	err := txManager.WithTx(context.Background(), func(outer context.Context) error {
		return txManager.WithTx(outer, func(inner context.Context) error {
			assert.Same(t, GetTx(outer, db), GetTx(inner, db))
			_, err := GetTx(inner, db).ExecContext(inner, "INSERT INTO outbox_events (id) VALUES (1)")
			return err
		})
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTx_WithoutTransaction(t *testing.T) {
	db, _ := newMockDB(t)

	querier := GetTx(context.Background(), db)
	assert.Equal(t, db, querier)
}
