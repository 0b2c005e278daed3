// Package mocks provides mock implementations of token use case dependencies for testing.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/allisson/tokenvault/internal/token/domain"
)

// MockTokenRepository is a mock implementation of TokenRepository.
type MockTokenRepository struct {
	mock.Mock
}

// Upsert mocks the Upsert method of TokenRepository.
func (m *MockTokenRepository) Upsert(ctx context.Context, record *domain.TokenRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

// Get mocks the Get method of TokenRepository.
func (m *MockTokenRepository) Get(ctx context.Context, tokenID string) (*domain.TokenRecord, error) {
	args := m.Called(ctx, tokenID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TokenRecord), args.Error(1)
}

// MarkRevoked mocks the MarkRevoked method of TokenRepository.
func (m *MockTokenRepository) MarkRevoked(ctx context.Context, tokenID, reason string, revokedAt time.Time) error {
	args := m.Called(ctx, tokenID, reason, revokedAt)
	return args.Error(0)
}

// CreateRevocationEntry mocks the CreateRevocationEntry method of TokenRepository.
func (m *MockTokenRepository) CreateRevocationEntry(ctx context.Context, entry *domain.RevocationEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

// ListActiveTokenIDs mocks the ListActiveTokenIDs method of TokenRepository.
func (m *MockTokenRepository) ListActiveTokenIDs(ctx context.Context, userID string, now time.Time) ([]string, error) {
	args := m.Called(ctx, userID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// IsRevoked mocks the IsRevoked method of TokenRepository.
func (m *MockTokenRepository) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	args := m.Called(ctx, tokenID)
	return args.Bool(0), args.Error(1)
}

// TouchLastAccessed mocks the TouchLastAccessed method of TokenRepository.
func (m *MockTokenRepository) TouchLastAccessed(ctx context.Context, tokenID string, at time.Time) error {
	args := m.Called(ctx, tokenID, at)
	return args.Error(0)
}

// DeleteStale mocks the DeleteStale method of TokenRepository.
func (m *MockTokenRepository) DeleteStale(ctx context.Context, expiredBefore, revokedBefore time.Time) (int64, error) {
	args := m.Called(ctx, expiredBefore, revokedBefore)
	return args.Get(0).(int64), args.Error(1)
}

// CountStale mocks the CountStale method of TokenRepository.
func (m *MockTokenRepository) CountStale(ctx context.Context, expiredBefore, revokedBefore time.Time) (int64, error) {
	args := m.Called(ctx, expiredBefore, revokedBefore)
	return args.Get(0).(int64), args.Error(1)
}

// MockRevocationCache is a mock implementation of RevocationCache.
type MockRevocationCache struct {
	mock.Mock
}

// Add mocks the Add method of RevocationCache.
func (m *MockRevocationCache) Add(ctx context.Context, tokenIDs ...string) error {
	args := m.Called(ctx, tokenIDs)
	return args.Error(0)
}

// Contains mocks the Contains method of RevocationCache.
func (m *MockRevocationCache) Contains(ctx context.Context, tokenID string) (bool, error) {
	args := m.Called(ctx, tokenID)
	return args.Bool(0), args.Error(1)
}

// MockAuditPublisher is a mock implementation of AuditPublisher.
type MockAuditPublisher struct {
	mock.Mock
}

// Publish mocks the Publish method of AuditPublisher.
func (m *MockAuditPublisher) Publish(ctx context.Context, eventType string, payload any) error {
	args := m.Called(ctx, eventType, payload)
	return args.Error(0)
}

// MockTokenUseCase is a mock implementation of TokenUseCase.
type MockTokenUseCase struct {
	mock.Mock
}

// Issue mocks the Issue method of TokenUseCase.
func (m *MockTokenUseCase) Issue(ctx context.Context, input *domain.IssueTokenInput) (*domain.TokenRecord, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TokenRecord), args.Error(1)
}

// Open mocks the Open method of TokenUseCase.
func (m *MockTokenUseCase) Open(
	ctx context.Context,
	tokenID, userID string,
	expectedType domain.TokenType,
) (*domain.Payload, error) {
	args := m.Called(ctx, tokenID, userID, expectedType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payload), args.Error(1)
}

// Revoke mocks the Revoke method of TokenUseCase.
func (m *MockTokenUseCase) Revoke(ctx context.Context, tokenID, userID, reason string) error {
	args := m.Called(ctx, tokenID, userID, reason)
	return args.Error(0)
}

// RevokeAllForUser mocks the RevokeAllForUser method of TokenUseCase.
func (m *MockTokenUseCase) RevokeAllForUser(ctx context.Context, userID, reason string) (int, error) {
	args := m.Called(ctx, userID, reason)
	return args.Int(0), args.Error(1)
}

// IsRevoked mocks the IsRevoked method of TokenUseCase.
func (m *MockTokenUseCase) IsRevoked(ctx context.Context, tokenID string) bool {
	args := m.Called(ctx, tokenID)
	return args.Bool(0)
}

// Cleanup mocks the Cleanup method of TokenUseCase.
func (m *MockTokenUseCase) Cleanup(ctx context.Context, dryRun bool) (int64, error) {
	args := m.Called(ctx, dryRun)
	return args.Get(0).(int64), args.Error(1)
}
