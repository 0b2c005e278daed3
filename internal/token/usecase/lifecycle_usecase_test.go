package usecase

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/tokenvault/internal/crypto/domain"
	cryptoService "github.com/allisson/tokenvault/internal/crypto/service"
	"github.com/allisson/tokenvault/internal/token/domain"
	tokenService "github.com/allisson/tokenvault/internal/token/service"
	"github.com/allisson/tokenvault/internal/token/usecase/mocks"
)

func TestLifecycleUseCase_EncryptDecrypt(t *testing.T) {
	f := newLifecycleFixture(t, nil)

	envelope, err := f.lifecycle.EncryptToken("refresh-token-value", domain.TokenTypeRefresh, map[string]string{"client": "web"})
	require.NoError(t, err)
	assert.Equal(t, 1, envelope.Version)
	assert.Equal(t, domain.TokenTypeRefresh, envelope.Type)

	payload, err := f.lifecycle.DecryptToken(envelope, domain.TokenTypeRefresh)
	require.NoError(t, err)
	assert.Equal(t, "refresh-token-value", payload.Token)
	assert.Equal(t, "web", payload.Metadata["client"])
}

func TestLifecycleUseCase_RotateKeys(t *testing.T) {
	t.Run("Success_PublishesEvent", func(t *testing.T) {
		audit := &mocks.MockAuditPublisher{}
		f := newLifecycleFixture(t, audit)

		audit.On("Publish", mock.Anything, domain.EventTypeKeyRotation, mock.MatchedBy(func(e *domain.KeyRotationEvent) bool {
			return e.OldVersion == 1 && e.NewVersion == 2
		})).Return(nil).Once()

		event, err := f.lifecycle.RotateKeys(context.Background(), randomSecret(t))
		require.NoError(t, err)
		assert.Equal(t, 1, event.OldVersion)
		assert.Equal(t, 2, event.NewVersion)
		assert.Equal(t, t0, event.Timestamp)
		assert.ElementsMatch(t, domain.TokenTypes, event.AffectedTypes)
		assert.Equal(t, 2, f.keys.CurrentVersion())

		audit.AssertExpectations(t)
	})

	t.Run("Error_InvalidSecretKeepsVersion", func(t *testing.T) {
		audit := &mocks.MockAuditPublisher{}
		f := newLifecycleFixture(t, audit)

		event, err := f.lifecycle.RotateKeys(context.Background(), []byte("short"))
		assert.Nil(t, event)
		assert.ErrorIs(t, err, cryptoDomain.ErrInvalidKeySize)
		assert.Equal(t, 1, f.keys.CurrentVersion())

		audit.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Success_AuditFailureIsNotFatal", func(t *testing.T) {
		audit := &mocks.MockAuditPublisher{}
		f := newLifecycleFixture(t, audit)

		audit.On("Publish", mock.Anything, domain.EventTypeKeyRotation, mock.Anything).
			Return(errors.New("outbox down")).Once()

		event, err := f.lifecycle.RotateKeys(context.Background(), randomSecret(t))
		require.NoError(t, err)
		assert.Equal(t, 2, event.NewVersion)
		assert.Equal(t, 2, f.keys.CurrentVersion())

		audit.AssertExpectations(t)
	})

	t.Run("Success_OldEnvelopesStillDecrypt", func(t *testing.T) {
		f := newLifecycleFixture(t, nil)

		before, err := f.lifecycle.EncryptToken("sess-1", domain.TokenTypeSession, nil)
		require.NoError(t, err)

		_, err = f.lifecycle.RotateKeys(context.Background(), randomSecret(t))
		require.NoError(t, err)

		after, err := f.lifecycle.EncryptToken("sess-2", domain.TokenTypeSession, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, before.Version)
		assert.Equal(t, 2, after.Version)

		payload, err := f.lifecycle.DecryptToken(before, domain.TokenTypeSession)
		require.NoError(t, err)
		assert.Equal(t, "sess-1", payload.Token)
	})

	t.Run("Success_RotationStaysInProcess", func(t *testing.T) {
		f := newLifecycleFixture(t, nil)

		// A second replica started from the same MASTER_KEYS.
		v1, err := f.keys.Get(1)
		require.NoError(t, err)
		peerKeys, err := cryptoDomain.NewKeyStore(
			[]*cryptoDomain.MasterKey{{Version: 1, Key: bytes.Clone(v1.Key)}}, 1,
		)
		require.NoError(t, err)
		t.Cleanup(peerKeys.Close)

		kdf, err := cryptoService.NewKeyDerivation(cryptoService.MinKDFIterations)
		require.NoError(t, err)
		peer := tokenService.NewCodec(peerKeys, kdf, cryptoService.NewAEADManager(), domain.DefaultPolicySet(),
			tokenService.WithClock(f.clock.Now))

		_, err = f.lifecycle.RotateKeys(context.Background(), randomSecret(t))
		require.NoError(t, err)

		envelope, err := f.lifecycle.EncryptToken("jwt-after-rotation", domain.TokenTypeJWT, nil)
		require.NoError(t, err)
		assert.Equal(t, 2, envelope.Version)

		_, err = peer.Decrypt(envelope, domain.TokenTypeJWT)
		assert.ErrorIs(t, err, cryptoDomain.ErrUnknownKeyVersion)
		assert.Equal(t, 1, peerKeys.CurrentVersion())
	})
}

func TestLifecycleUseCase_ReEncryptToken(t *testing.T) {
	t.Run("Success_MovesToCurrentVersion", func(t *testing.T) {
		f := newLifecycleFixture(t, nil)

		original, err := f.lifecycle.EncryptToken("oauth-access", domain.TokenTypeOAuth, map[string]string{"scope": "read"})
		require.NoError(t, err)

		_, err = f.lifecycle.RotateKeys(context.Background(), randomSecret(t))
		require.NoError(t, err)
		f.clock.Advance(time.Hour)

		migrated, err := f.lifecycle.ReEncryptToken(original, domain.TokenTypeOAuth)
		require.NoError(t, err)
		assert.Equal(t, 2, migrated.Version)
		assert.Equal(t, t0.Add(time.Hour), migrated.CreatedAt)
		assert.NotEqual(t, original.Ciphertext, migrated.Ciphertext)

		payload, err := f.lifecycle.DecryptToken(migrated, domain.TokenTypeOAuth)
		require.NoError(t, err)
		assert.Equal(t, "oauth-access", payload.Token)
		assert.Equal(t, "read", payload.Metadata["scope"])
	})

	t.Run("Error_TamperedEnvelope", func(t *testing.T) {
		f := newLifecycleFixture(t, nil)

		envelope, err := f.lifecycle.EncryptToken("jwt-value", domain.TokenTypeJWT, nil)
		require.NoError(t, err)
		envelope.Ciphertext[0] ^= 0x01

		migrated, err := f.lifecycle.ReEncryptToken(envelope, domain.TokenTypeJWT)
		assert.Nil(t, migrated)
		assert.ErrorIs(t, err, domain.ErrIntegrityFailure)
	})
}

func TestLifecycleUseCase_NeedsRotation(t *testing.T) {
	f := newLifecycleFixture(t, nil)

	envelope, err := f.lifecycle.EncryptToken("sess", domain.TokenTypeSession, nil)
	require.NoError(t, err)
	record := &domain.TokenRecord{TokenType: domain.TokenTypeSession, Envelope: envelope, CreatedAt: t0}

	assert.False(t, f.lifecycle.NeedsRotation(record))

	f.clock.Advance(time.Hour)
	assert.False(t, f.lifecycle.NeedsRotation(record))

	f.clock.Advance(time.Millisecond)
	assert.True(t, f.lifecycle.NeedsRotation(record))

	t.Run("FallsBackToRecordCreatedAt", func(t *testing.T) {
		noEnvelope := &domain.TokenRecord{TokenType: domain.TokenTypeJWT, CreatedAt: f.clock.Now().Add(-31 * time.Minute)}
		assert.True(t, f.lifecycle.NeedsRotation(noEnvelope))
	})

	t.Run("UnknownTypeNeverRotates", func(t *testing.T) {
		unknown := &domain.TokenRecord{TokenType: "api_key", CreatedAt: t0.Add(-365 * 24 * time.Hour)}
		assert.False(t, f.lifecycle.NeedsRotation(unknown))
	})
}
