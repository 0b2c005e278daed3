package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cryptoDomain "github.com/allisson/tokenvault/internal/crypto/domain"
	apperrors "github.com/allisson/tokenvault/internal/errors"
)

func TestNewKeyDerivation(t *testing.T) {
	t.Run("accepts minimum iterations", func(t *testing.T) {
		kdf, err := NewKeyDerivation(MinKDFIterations)
		require.NoError(t, err)
		assert.NotNil(t, kdf)
	})

	t.Run("rejects weak iterations", func(t *testing.T) {
		kdf, err := NewKeyDerivation(MinKDFIterations - 1)
		assert.Nil(t, kdf)
		assert.ErrorIs(t, err, ErrWeakKDF)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})
}

func TestPBKDF2Derivation_Derive(t *testing.T) {
	kdf, err := NewKeyDerivation(MinKDFIterations)
	require.NoError(t, err)

	masterKey := newTestKey(t)
	salt := newTestKey(t)

	first, err := kdf.Derive(masterKey, salt, "session")
	require.NoError(t, err)
	assert.Len(t, first, cryptoDomain.KeySize)

	t.Run("deterministic", func(t *testing.T) {
		again, err := kdf.Derive(masterKey, salt, "session")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	})

	t.Run("context separates token types", func(t *testing.T) {
		other, err := kdf.Derive(masterKey, salt, "refresh")
		require.NoError(t, err)
		assert.NotEqual(t, first, other)
	})

	t.Run("salt changes subkey", func(t *testing.T) {
		other, err := kdf.Derive(masterKey, newTestKey(t), "session")
		require.NoError(t, err)
		assert.NotEqual(t, first, other)
	})

	t.Run("master key changes subkey", func(t *testing.T) {
		other, err := kdf.Derive(newTestKey(t), salt, "session")
		require.NoError(t, err)
		assert.NotEqual(t, first, other)
	})

	t.Run("invalid master key size", func(t *testing.T) {
		_, err := kdf.Derive(make([]byte, 16), salt, "session")
		assert.ErrorIs(t, err, cryptoDomain.ErrInvalidKeySize)
	})

	t.Run("empty salt", func(t *testing.T) {
		_, err := kdf.Derive(masterKey, nil, "session")
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})
}
