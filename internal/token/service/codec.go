package service

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	cryptoDomain "github.com/allisson/tokenvault/internal/crypto/domain"
	cryptoService "github.com/allisson/tokenvault/internal/crypto/service"
	apperrors "github.com/allisson/tokenvault/internal/errors"
	"github.com/allisson/tokenvault/internal/token/domain"
)

// sealedPayload is the JSON document encrypted inside an envelope.
type sealedPayload struct {
	Token       string            `json:"token"`
	Type        domain.TokenType  `json:"type"`
	Version     int               `json:"version"`
	CreatedAt   int64             `json:"createdAt"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Fingerprint string            `json:"fingerprint"`
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithClock overrides the time source used for createdAt and expiry checks.
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) {
		c.now = now
	}
}

// Codec seals tokens into envelopes and opens them again.
//
// A Codec holds no mutable state of its own. Every call resolves its master key
// from the KeyProvider once, so a concurrent rotation is observed either fully or
// not at all.
type Codec struct {
	keys        KeyProvider
	kdf         cryptoService.KeyDerivation
	aeadManager cryptoService.AEADManager
	policies    domain.PolicySet
	now         func() time.Time
}

// NewCodec creates a Codec.
func NewCodec(
	keys KeyProvider,
	kdf cryptoService.KeyDerivation,
	aeadManager cryptoService.AEADManager,
	policies domain.PolicySet,
	opts ...CodecOption,
) *Codec {
	c := &Codec{
		keys:        keys,
		kdf:         kdf,
		aeadManager: aeadManager,
		policies:    policies,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Encrypt seals token under the current master key.
func (c *Codec) Encrypt(
	token string,
	tokenType domain.TokenType,
	metadata map[string]string,
) (*domain.Envelope, error) {
	if err := tokenType.Validate(); err != nil {
		return nil, err
	}
	if token == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "token is required")
	}
	if len(token) > domain.MaxTokenSize {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidInput, "token exceeds %d bytes", domain.MaxTokenSize)
	}
	if len(metadata) > domain.MaxMetadataEntries {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidInput, "metadata exceeds %d entries", domain.MaxMetadataEntries)
	}

	mk, err := c.keys.Current()
	if err != nil {
		return nil, err
	}

	createdAt := c.now().UTC().Truncate(time.Millisecond)
	return c.seal(mk, tokenType, createdAt, sealedPayload{
		Token:       token,
		Type:        tokenType,
		Version:     mk.Version,
		CreatedAt:   createdAt.UnixMilli(),
		Metadata:    metadata,
		Fingerprint: Fingerprint(token, metadata, createdAt),
	})
}

// seal encrypts payload as given and computes the integrity hash.
func (c *Codec) seal(
	mk *cryptoDomain.MasterKey,
	tokenType domain.TokenType,
	createdAt time.Time,
	payload sealedPayload,
) (*domain.Envelope, error) {
	salt := make([]byte, domain.SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	subkey, err := c.kdf.Derive(mk.Key, salt, tokenType.KDFContext())
	if err != nil {
		return nil, fmt.Errorf("failed to derive subkey: %w", err)
	}
	defer cryptoDomain.Zero(subkey)

	cipher, err := c.aeadManager.CreateCipher(subkey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	plaintext, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	defer cryptoDomain.Zero(plaintext)

	sealed, iv, err := cipher.Encrypt(plaintext, associatedData(mk.Version, tokenType, createdAt))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt payload: %w", err)
	}
	tagStart := len(sealed) - domain.AuthTagSize

	envelope := &domain.Envelope{
		Version:    mk.Version,
		Type:       tokenType,
		Salt:       salt,
		IV:         iv,
		Ciphertext: sealed[:tagStart:tagStart],
		AuthTag:    sealed[tagStart:],
		CreatedAt:  createdAt,
	}
	envelope.IntegrityHash, err = integrityHash(mk.Key, envelope)
	if err != nil {
		return nil, err
	}
	return envelope, nil
}

// Decrypt opens envelope and returns its payload.
//
// Checks run in order: key version lookup, integrity hash, expected type, AEAD
// tag, fingerprint, age. expectedType may be empty to accept any type. The
// returned error names the first failed check.
func (c *Codec) Decrypt(envelope *domain.Envelope, expectedType domain.TokenType) (*domain.Payload, error) {
	mk, err := c.keys.Get(envelope.Version)
	if err != nil {
		return nil, err
	}

	expected, err := integrityHash(mk.Key, envelope)
	if err != nil {
		return nil, err
	}
	if !hmac.Equal(expected, envelope.IntegrityHash) {
		return nil, domain.ErrIntegrityFailure
	}

	if expectedType != "" && expectedType != envelope.Type {
		return nil, fmt.Errorf("%w: expected %s, got %s", domain.ErrTypeMismatch, expectedType, envelope.Type)
	}
	policy, err := c.policies.For(envelope.Type)
	if err != nil {
		return nil, err
	}

	subkey, err := c.kdf.Derive(mk.Key, envelope.Salt, envelope.Type.KDFContext())
	if err != nil {
		return nil, fmt.Errorf("failed to derive subkey: %w", err)
	}
	defer cryptoDomain.Zero(subkey)

	cipher, err := c.aeadManager.CreateCipher(subkey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	sealed := make([]byte, 0, len(envelope.Ciphertext)+len(envelope.AuthTag))
	sealed = append(sealed, envelope.Ciphertext...)
	sealed = append(sealed, envelope.AuthTag...)

	plaintext, err := cipher.Decrypt(sealed, envelope.IV, associatedData(envelope.Version, envelope.Type, envelope.CreatedAt))
	if err != nil {
		return nil, domain.ErrDecryptionFailure
	}
	defer cryptoDomain.Zero(plaintext)

	var payload sealedPayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, domain.ErrDecryptionFailure
	}

	createdAt := time.UnixMilli(payload.CreatedAt).UTC()
	fingerprint := Fingerprint(payload.Token, payload.Metadata, createdAt)
	if !hmac.Equal([]byte(fingerprint), []byte(payload.Fingerprint)) {
		return nil, domain.ErrFingerprintMismatch
	}

	if age := c.now().Sub(envelope.CreatedAt); age > policy.MaxAge {
		return nil, fmt.Errorf("%w: age %s exceeds %s", domain.ErrExpired, age, policy.MaxAge)
	}

	return &domain.Payload{
		Token:     payload.Token,
		Type:      payload.Type,
		Version:   payload.Version,
		CreatedAt: createdAt,
		Metadata:  payload.Metadata,
	}, nil
}

// associatedData binds the envelope header to the AEAD tag.
func associatedData(version int, tokenType domain.TokenType, createdAt time.Time) []byte {
	buf := make([]byte, 0, 32)
	buf = appendUint64(buf, int64(version))
	buf = appendLengthPrefixed(buf, []byte(tokenType))
	return appendUint64(buf, createdAt.UnixMilli())
}

// integrityHash computes HMAC-SHA256 over the canonical envelope encoding:
// version || type || salt || iv || ciphertext || authTag || createdAt.
// The key is derived from the master key of the envelope's own version.
func integrityHash(masterKey []byte, envelope *domain.Envelope) ([]byte, error) {
	key, err := deriveHKDFKey(masterKey, integrityInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to derive integrity key: %w", err)
	}
	defer cryptoDomain.Zero(key)

	buf := make([]byte, 0, 128+len(envelope.Ciphertext))
	buf = appendUint64(buf, int64(envelope.Version))
	buf = appendLengthPrefixed(buf, []byte(envelope.Type))
	buf = appendLengthPrefixed(buf, envelope.Salt)
	buf = appendLengthPrefixed(buf, envelope.IV)
	buf = appendLengthPrefixed(buf, envelope.Ciphertext)
	buf = appendLengthPrefixed(buf, envelope.AuthTag)
	buf = appendUint64(buf, envelope.CreatedAt.UnixMilli())

	mac := hmac.New(sha256.New, key)
	mac.Write(buf)
	return mac.Sum(nil), nil
}
