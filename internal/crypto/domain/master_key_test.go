package domain

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(b byte) []byte {
	return bytes.Repeat([]byte{b}, KeySize)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// xorKeeper is a reversible stand-in for a KMS keeper.
type xorKeeper struct {
	closed bool
	fail   bool
}

func (x *xorKeeper) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	out := make([]byte, len(plaintext))
	for i, b := range plaintext {
		out[i] = b ^ 0xAA
	}
	return out, nil
}

func (x *xorKeeper) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	if x.fail {
		return nil, errors.New("kms unavailable")
	}
	return x.Encrypt(ctx, ciphertext)
}

func (x *xorKeeper) Close() error {
	x.closed = true
	return nil
}

type fakeKMSService struct {
	keeper *xorKeeper
}

func (f *fakeKMSService) OpenKeeper(_ context.Context, _ string) (KMSKeeper, error) {
	return f.keeper, nil
}

func TestNewKeyStore(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		ks, err := NewKeyStore([]*MasterKey{
			{Version: 1, Key: testKey(1)},
			{Version: 2, Key: testKey(2)},
		}, 2)
		require.NoError(t, err)
		assert.Equal(t, 2, ks.CurrentVersion())
		assert.Equal(t, []int{1, 2}, ks.Versions())

		current, err := ks.Current()
		require.NoError(t, err)
		assert.Equal(t, 2, current.Version)
		assert.Equal(t, testKey(2), current.Key)
	})

	t.Run("Error_InvalidKeySize", func(t *testing.T) {
		_, err := NewKeyStore([]*MasterKey{{Version: 1, Key: make([]byte, 16)}}, 1)
		assert.ErrorIs(t, err, ErrInvalidKeySize)
	})

	t.Run("Error_DuplicateVersion", func(t *testing.T) {
		_, err := NewKeyStore([]*MasterKey{
			{Version: 1, Key: testKey(1)},
			{Version: 1, Key: testKey(2)},
		}, 1)
		assert.ErrorIs(t, err, ErrDuplicateKeyVersion)
	})

	t.Run("Error_ActiveMissing", func(t *testing.T) {
		_, err := NewKeyStore([]*MasterKey{{Version: 1, Key: testKey(1)}}, 3)
		assert.ErrorIs(t, err, ErrActiveMasterKeyNotFound)
	})
}

func TestKeyStore_Get(t *testing.T) {
	ks, err := NewKeyStore([]*MasterKey{{Version: 1, Key: testKey(1)}}, 1)
	require.NoError(t, err)

	mk, err := ks.Get(1)
	require.NoError(t, err)
	assert.Equal(t, testKey(1), mk.Key)

	_, err = ks.Get(7)
	assert.ErrorIs(t, err, ErrUnknownKeyVersion)
}

func TestKeyStore_Rotate(t *testing.T) {
	t.Run("Success_AdvancesCurrent", func(t *testing.T) {
		ks, err := NewKeyStore([]*MasterKey{{Version: 1, Key: testKey(1)}}, 1)
		require.NoError(t, err)

		secret := testKey(9)
		oldVersion, newVersion, err := ks.Rotate(secret)
		require.NoError(t, err)
		assert.Equal(t, 1, oldVersion)
		assert.Equal(t, 2, newVersion)
		assert.Equal(t, 2, ks.CurrentVersion())

		// historical key retained
		old, err := ks.Get(1)
		require.NoError(t, err)
		assert.Equal(t, testKey(1), old.Key)

		// secret is copied
		Zero(secret)
		current, err := ks.Current()
		require.NoError(t, err)
		assert.Equal(t, testKey(9), current.Key)
	})

	t.Run("Success_AllocatesAboveHighestVersion", func(t *testing.T) {
		ks, err := NewKeyStore([]*MasterKey{
			{Version: 1, Key: testKey(1)},
			{Version: 5, Key: testKey(5)},
		}, 1)
		require.NoError(t, err)

		oldVersion, newVersion, err := ks.Rotate(testKey(6))
		require.NoError(t, err)
		assert.Equal(t, 1, oldVersion)
		assert.Equal(t, 6, newVersion)
	})

	t.Run("Error_InvalidLengthKeepsCurrent", func(t *testing.T) {
		ks, err := NewKeyStore([]*MasterKey{{Version: 1, Key: testKey(1)}}, 1)
		require.NoError(t, err)

		_, _, err = ks.Rotate(make([]byte, 31))
		assert.ErrorIs(t, err, ErrInvalidKeySize)
		assert.Equal(t, 1, ks.CurrentVersion())
		assert.Equal(t, []int{1}, ks.Versions())
	})

	t.Run("Concurrent_ReadersSeeConsistentSnapshot", func(t *testing.T) {
		ks, err := NewKeyStore([]*MasterKey{{Version: 1, Key: testKey(1)}}, 1)
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, _, rotateErr := ks.Rotate(testKey(byte(i + 10)))
				assert.NoError(t, rotateErr)
			}()
			go func() {
				defer wg.Done()
				mk, getErr := ks.Current()
				assert.NoError(t, getErr)
				fetched, getErr := ks.Get(mk.Version)
				assert.NoError(t, getErr)
				assert.Equal(t, mk.Key, fetched.Key)
			}()
		}
		wg.Wait()

		assert.Equal(t, 9, ks.CurrentVersion())
		assert.Len(t, ks.Versions(), 9)
	})
}

func TestKeyStore_Close(t *testing.T) {
	key := testKey(3)
	ks, err := NewKeyStore([]*MasterKey{{Version: 1, Key: key}}, 1)
	require.NoError(t, err)

	ks.Close()

	assert.Equal(t, make([]byte, KeySize), key)
	assert.Equal(t, 0, ks.CurrentVersion())
	_, err = ks.Get(1)
	assert.ErrorIs(t, err, ErrKeyStoreClosed)
	_, _, err = ks.Rotate(testKey(4))
	assert.ErrorIs(t, err, ErrKeyStoreClosed)

	// idempotent
	ks.Close()
}

func TestLoadKeyStore(t *testing.T) {
	ctx := context.Background()
	key1 := base64.StdEncoding.EncodeToString(testKey(1))
	key2 := base64.StdEncoding.EncodeToString(testKey(2))

	tests := []struct {
		name         string
		cfg          KeyStoreConfig
		wantErr      error
		validateFunc func(*testing.T, *KeyStore)
	}{
		{
			name: "valid single key",
			cfg:  KeyStoreConfig{MasterKeys: "1:" + key1},
			validateFunc: func(t *testing.T, ks *KeyStore) {
				assert.Equal(t, 1, ks.CurrentVersion())
			},
		},
		{
			name: "highest version is current by default",
			cfg:  KeyStoreConfig{MasterKeys: "1:" + key1 + ",2:" + key2},
			validateFunc: func(t *testing.T, ks *KeyStore) {
				assert.Equal(t, 2, ks.CurrentVersion())
				assert.Equal(t, []int{1, 2}, ks.Versions())
			},
		},
		{
			name: "explicit active version with whitespace",
			cfg:  KeyStoreConfig{MasterKeys: " 1:" + key1 + " , 2:" + key2 + " ", ActiveVersion: 1},
			validateFunc: func(t *testing.T, ks *KeyStore) {
				assert.Equal(t, 1, ks.CurrentVersion())
			},
		},
		{
			name:    "missing keys without ephemeral",
			cfg:     KeyStoreConfig{},
			wantErr: ErrMasterKeysNotSet,
		},
		{
			name: "missing keys with ephemeral",
			cfg:  KeyStoreConfig{AllowEphemeral: true},
			validateFunc: func(t *testing.T, ks *KeyStore) {
				assert.Equal(t, 1, ks.CurrentVersion())
				mk, err := ks.Current()
				require.NoError(t, err)
				assert.NotEqual(t, make([]byte, KeySize), mk.Key)
			},
		},
		{
			name:    "missing colon",
			cfg:     KeyStoreConfig{MasterKeys: "1" + key1},
			wantErr: ErrInvalidMasterKeysFormat,
		},
		{
			name:    "non numeric version",
			cfg:     KeyStoreConfig{MasterKeys: "prod:" + key1},
			wantErr: ErrInvalidMasterKeysFormat,
		},
		{
			name:    "zero version",
			cfg:     KeyStoreConfig{MasterKeys: "0:" + key1},
			wantErr: ErrInvalidMasterKeysFormat,
		},
		{
			name:    "invalid base64",
			cfg:     KeyStoreConfig{MasterKeys: "1:not-valid-base64!!!"},
			wantErr: ErrInvalidMasterKeyBase64,
		},
		{
			name:    "key too short",
			cfg:     KeyStoreConfig{MasterKeys: "1:" + base64.StdEncoding.EncodeToString(make([]byte, 16))},
			wantErr: ErrInvalidKeySize,
		},
		{
			name:    "duplicate version",
			cfg:     KeyStoreConfig{MasterKeys: "1:" + key1 + ",1:" + key2},
			wantErr: ErrDuplicateKeyVersion,
		},
		{
			name:    "active version missing",
			cfg:     KeyStoreConfig{MasterKeys: "1:" + key1, ActiveVersion: 4},
			wantErr: ErrActiveMasterKeyNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ks, err := LoadKeyStore(ctx, tt.cfg, nil, discardLogger())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, ks)
				return
			}
			require.NoError(t, err)
			tt.validateFunc(t, ks)
			ks.Close()
		})
	}
}

func TestLoadKeyStore_EphemeralWarning(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	ks, err := LoadKeyStore(context.Background(), KeyStoreConfig{AllowEphemeral: true}, nil, logger)
	require.NoError(t, err)
	defer ks.Close()

	assert.True(t, strings.Contains(buf.String(), "EPHEMERAL"))
	assert.Contains(t, buf.String(), "level=ERROR")
}

func TestLoadKeyStore_KMS(t *testing.T) {
	ctx := context.Background()
	keeper := &xorKeeper{}

	wrapped, err := keeper.Encrypt(ctx, testKey(7))
	require.NoError(t, err)
	raw := "3:" + base64.StdEncoding.EncodeToString(wrapped)

	t.Run("Success_UnwrapsKeys", func(t *testing.T) {
		k := &xorKeeper{}
		ks, err := LoadKeyStore(ctx, KeyStoreConfig{MasterKeys: raw, KMSKeyURI: "base64key://"},
			&fakeKMSService{keeper: k}, discardLogger())
		require.NoError(t, err)
		defer ks.Close()

		mk, err := ks.Get(3)
		require.NoError(t, err)
		assert.Equal(t, testKey(7), mk.Key)
		assert.True(t, k.closed)
	})

	t.Run("Error_KeeperFails", func(t *testing.T) {
		ks, err := LoadKeyStore(ctx, KeyStoreConfig{MasterKeys: raw, KMSKeyURI: "base64key://"},
			&fakeKMSService{keeper: &xorKeeper{fail: true}}, discardLogger())
		assert.ErrorIs(t, err, ErrKMSDecryptionFailed)
		assert.Nil(t, ks)
	})

	t.Run("Error_NoService", func(t *testing.T) {
		_, err := LoadKeyStore(ctx, KeyStoreConfig{MasterKeys: raw, KMSKeyURI: "base64key://"},
			nil, discardLogger())
		assert.ErrorIs(t, err, ErrKMSDecryptionFailed)
	})
}

func TestZero(t *testing.T) {
	b := []byte{1, 2, 3}
	Zero(b)
	assert.Equal(t, []byte{0, 0, 0}, b)
	Zero(nil)
}
