// Package domain defines the key management domain for token encryption.
//
// Master keys are versioned. Exactly one version is current and is used for every
// new envelope; older versions stay in the store so envelopes sealed under them keep
// decrypting after a rotation. Keys are never deleted at runtime.
package domain

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// KeySize is the required length of every master key in bytes (256 bits).
const KeySize = 32

// MasterKey is one versioned root secret.
type MasterKey struct {
	Version int
	Key     []byte
}

// KMSKeeper unwraps master keys that are stored KMS-encrypted.
// *gocloud.dev/secrets.Keeper satisfies this interface.
type KMSKeeper interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
	Close() error
}

// KMSService opens keepers for a KMS key URI.
type KMSService interface {
	OpenKeeper(ctx context.Context, keyURI string) (KMSKeeper, error)
}

// KeyStoreConfig carries the configuration LoadKeyStore reads.
type KeyStoreConfig struct {
	// MasterKeys is a comma separated list of "version:base64key" entries.
	MasterKeys string
	// ActiveVersion selects the current version. Zero means the highest configured version.
	ActiveVersion int
	// KMSKeyURI, when set, means every key value in MasterKeys is a KMS ciphertext.
	KMSKeyURI string
	// AllowEphemeral permits generating a throwaway key when MasterKeys is empty.
	// Must be false in production.
	AllowEphemeral bool
}

// keyRing is an immutable snapshot of the store. Rotation builds a new ring and
// swaps it in; readers never observe a partially updated one.
type keyRing struct {
	current int
	keys    map[int]*MasterKey
}

// KeyStore holds the versioned master keys and the current version pointer.
//
// Reads are lock free. Rotate serializes writers with a mutex and publishes the
// new ring with a single atomic store.
type KeyStore struct {
	mu   sync.Mutex
	ring atomic.Pointer[keyRing]
}

// NewKeyStore builds a store from the given keys. current must name one of them.
func NewKeyStore(keys []*MasterKey, current int) (*KeyStore, error) {
	ring := &keyRing{current: current, keys: make(map[int]*MasterKey, len(keys))}
	for _, mk := range keys {
		if len(mk.Key) != KeySize {
			return nil, fmt.Errorf("%w: master key v%d must be %d bytes, got %d",
				ErrInvalidKeySize, mk.Version, KeySize, len(mk.Key))
		}
		if _, exists := ring.keys[mk.Version]; exists {
			return nil, fmt.Errorf("%w: v%d", ErrDuplicateKeyVersion, mk.Version)
		}
		ring.keys[mk.Version] = mk
	}
	if _, ok := ring.keys[current]; !ok {
		return nil, fmt.Errorf("%w: version %d", ErrActiveMasterKeyNotFound, current)
	}

	ks := &KeyStore{}
	ks.ring.Store(ring)
	return ks, nil
}

// CurrentVersion returns the version used for new envelopes.
func (k *KeyStore) CurrentVersion() int {
	ring := k.ring.Load()
	if ring == nil {
		return 0
	}
	return ring.current
}

// Current returns the current master key. Version and key come from the same
// snapshot.
func (k *KeyStore) Current() (*MasterKey, error) {
	ring := k.ring.Load()
	if ring == nil {
		return nil, ErrKeyStoreClosed
	}
	return ring.keys[ring.current], nil
}

// Get returns the master key for version, current or historical.
func (k *KeyStore) Get(version int) (*MasterKey, error) {
	ring := k.ring.Load()
	if ring == nil {
		return nil, ErrKeyStoreClosed
	}
	mk, ok := ring.keys[version]
	if !ok {
		return nil, fmt.Errorf("%w: v%d", ErrUnknownKeyVersion, version)
	}
	return mk, nil
}

// Versions returns every retained version in ascending order.
func (k *KeyStore) Versions() []int {
	ring := k.ring.Load()
	if ring == nil {
		return nil
	}
	versions := make([]int, 0, len(ring.keys))
	for v := range ring.keys {
		versions = append(versions, v)
	}
	slices.Sort(versions)
	return versions
}

// Rotate installs newSecret under a fresh version and makes it current.
//
// The new version is one above the highest retained version, so it is current+1
// whenever the current key is also the newest. On error the previous current
// version stays in place. newSecret is copied; the caller keeps ownership.
func (k *KeyStore) Rotate(newSecret []byte) (oldVersion, newVersion int, err error) {
	if len(newSecret) != KeySize {
		return 0, 0, fmt.Errorf("%w: got %d bytes", ErrInvalidKeySize, len(newSecret))
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	prev := k.ring.Load()
	if prev == nil {
		return 0, 0, ErrKeyStoreClosed
	}

	highest := 0
	next := &keyRing{keys: make(map[int]*MasterKey, len(prev.keys)+1)}
	for v, mk := range prev.keys {
		next.keys[v] = mk
		highest = max(highest, v)
	}

	secret := make([]byte, KeySize)
	copy(secret, newSecret)
	newVersion = highest + 1
	next.keys[newVersion] = &MasterKey{Version: newVersion, Key: secret}
	next.current = newVersion

	k.ring.Store(next)
	return prev.current, newVersion, nil
}

// Close zeroes all key material and empties the store.
func (k *KeyStore) Close() {
	k.mu.Lock()
	defer k.mu.Unlock()

	ring := k.ring.Swap(nil)
	if ring == nil {
		return
	}
	for _, mk := range ring.keys {
		Zero(mk.Key)
	}
}

// LoadKeyStore builds the KeyStore from configuration.
//
// MASTER_KEYS format:
//
//	MASTER_KEYS="1:<base64 32 bytes>,2:<base64 32 bytes>"
//	ACTIVE_MASTER_KEY_VERSION="2"
//
// With a KMS key URI configured each value is base64 KMS ciphertext and is
// unwrapped through kmsService before use.
//
// When MASTER_KEYS is empty and cfg.AllowEphemeral is false the load fails with
// ErrMasterKeysNotSet. With AllowEphemeral a random version 1 key is generated and
// an error-level warning is logged: tokens sealed with it die with the process.
func LoadKeyStore(
	ctx context.Context,
	cfg KeyStoreConfig,
	kmsService KMSService,
	logger *slog.Logger,
) (*KeyStore, error) {
	raw := strings.TrimSpace(cfg.MasterKeys)
	if raw == "" {
		if !cfg.AllowEphemeral {
			return nil, ErrMasterKeysNotSet
		}
		return newEphemeralKeyStore(logger)
	}

	var keeper KMSKeeper
	if cfg.KMSKeyURI != "" {
		if kmsService == nil {
			return nil, fmt.Errorf("%w: no KMS service configured", ErrKMSDecryptionFailed)
		}
		var err error
		keeper, err = kmsService.OpenKeeper(ctx, cfg.KMSKeyURI)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKMSDecryptionFailed, err)
		}
		defer func() {
			if closeErr := keeper.Close(); closeErr != nil && logger != nil {
				logger.Warn("failed to close KMS keeper", slog.Any("error", closeErr))
			}
		}()
	}

	keys, err := parseMasterKeys(ctx, raw, keeper)
	if err != nil {
		return nil, err
	}

	active := cfg.ActiveVersion
	if active == 0 {
		for _, mk := range keys {
			active = max(active, mk.Version)
		}
	}

	ks, err := NewKeyStore(keys, active)
	if err != nil {
		for _, mk := range keys {
			Zero(mk.Key)
		}
		return nil, err
	}

	if logger != nil {
		logger.Info("master keys loaded",
			slog.Int("count", len(keys)),
			slog.Int("current_version", active),
			slog.Bool("kms", keeper != nil),
		)
	}
	return ks, nil
}

func parseMasterKeys(ctx context.Context, raw string, keeper KMSKeeper) ([]*MasterKey, error) {
	var keys []*MasterKey
	fail := func(err error) ([]*MasterKey, error) {
		for _, mk := range keys {
			Zero(mk.Key)
		}
		return nil, err
	}

	for part := range strings.SplitSeq(raw, ",") {
		p := strings.SplitN(strings.TrimSpace(part), ":", 2)
		if len(p) != 2 {
			return fail(fmt.Errorf("%w: %q", ErrInvalidMasterKeysFormat, part))
		}
		version, err := strconv.Atoi(p[0])
		if err != nil || version <= 0 {
			return fail(fmt.Errorf("%w: version %q must be a positive integer", ErrInvalidMasterKeysFormat, p[0]))
		}
		decoded, err := base64.StdEncoding.DecodeString(p[1])
		if err != nil {
			return fail(fmt.Errorf("%w for v%d: %v", ErrInvalidMasterKeyBase64, version, err))
		}

		key := decoded
		if keeper != nil {
			key, err = keeper.Decrypt(ctx, decoded)
			if err != nil {
				return fail(fmt.Errorf("%w: v%d: %v", ErrKMSDecryptionFailed, version, err))
			}
		}
		if len(key) != KeySize {
			Zero(key)
			return fail(fmt.Errorf("%w: master key v%d must be %d bytes, got %d",
				ErrInvalidKeySize, version, KeySize, len(key)))
		}
		keys = append(keys, &MasterKey{Version: version, Key: key})
	}
	return keys, nil
}

func newEphemeralKeyStore(logger *slog.Logger) (*KeyStore, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral master key: %w", err)
	}
	if logger != nil {
		logger.Error("!!! MASTER_KEYS not configured: using an EPHEMERAL in-memory master key !!!",
			slog.Int("version", 1),
			slog.String("impact", "every token encrypted by this process becomes unreadable on restart"),
		)
	}
	return NewKeyStore([]*MasterKey{{Version: 1, Key: key}}, 1)
}

// Zero overwrites b with zeros.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
