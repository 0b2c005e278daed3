// Package mocks provides mock implementations of database interfaces for testing.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockTxManager is a mock implementation of database.TxManager. When the expectation
// returns a nil error the callback runs with the caller's context.
type MockTxManager struct {
	mock.Mock
}

// WithTx mocks the WithTx method of TxManager.
func (m *MockTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	args := m.Called(ctx, fn)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(ctx)
}
