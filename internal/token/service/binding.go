package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	cryptoDomain "github.com/allisson/tokenvault/internal/crypto/domain"
	apperrors "github.com/allisson/tokenvault/internal/errors"
	"github.com/allisson/tokenvault/internal/token/domain"
)

// DefaultBindingWindow is the time bucket width used when none is configured.
const DefaultBindingWindow = 5 * time.Minute

// BindingService derives client binding tags for tokens.
//
// A tag ties a token to {userAgent, ip, deviceId} within a coarse time bucket.
// Binding is advisory: a successful Verify never replaces Codec.Decrypt.
type BindingService struct {
	window time.Duration
	now    func() time.Time
}

// NewBindingService creates a BindingService with the given bucket width.
func NewBindingService(window time.Duration, opts ...BindingOption) *BindingService {
	if window < time.Millisecond {
		window = DefaultBindingWindow
	}
	b := &BindingService{window: window, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BindingOption configures a BindingService.
type BindingOption func(*BindingService)

// WithBindingClock overrides the time source used to select the bucket.
func WithBindingClock(now func() time.Time) BindingOption {
	return func(b *BindingService) {
		b.now = now
	}
}

// Bind returns a 32 hex character tag for token used from bindingCtx.
func (b *BindingService) Bind(token string, bindingCtx domain.BindingContext) (string, error) {
	if token == "" {
		return "", apperrors.Wrap(apperrors.ErrInvalidInput, "token is required")
	}
	tag, err := b.tag(token, bindingCtx, b.bucket(b.now()))
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(tag), nil
}

// Verify reports whether tag matches token and bindingCtx in the current or the
// previous bucket. Comparison is constant time.
func (b *BindingService) Verify(token, tag string, bindingCtx domain.BindingContext) bool {
	if token == "" {
		return false
	}
	supplied, err := hex.DecodeString(tag)
	if err != nil || len(supplied) != domain.BindingTagLength/2 {
		return false
	}

	current := b.bucket(b.now())
	matched := false
	for _, bucket := range []int64{current, current - 1} {
		expected, err := b.tag(token, bindingCtx, bucket)
		if err != nil {
			return false
		}
		if hmac.Equal(expected, supplied) {
			matched = true
		}
	}
	return matched
}

func (b *BindingService) bucket(t time.Time) int64 {
	return t.UTC().UnixMilli() / b.window.Milliseconds()
}

func (b *BindingService) tag(token string, bindingCtx domain.BindingContext, bucket int64) ([]byte, error) {
	key, err := deriveHKDFKey([]byte(token), bindingInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to derive binding key: %w", err)
	}
	defer cryptoDomain.Zero(key)

	buf := make([]byte, 0, 256)
	buf = appendLengthPrefixed(buf, []byte(bindingCtx.UserAgent))
	buf = appendLengthPrefixed(buf, []byte(bindingCtx.IP))
	buf = appendLengthPrefixed(buf, []byte(bindingCtx.DeviceID))
	buf = appendUint64(buf, bucket)

	mac := hmac.New(sha256.New, key)
	mac.Write(buf)
	return mac.Sum(nil)[:domain.BindingTagLength/2], nil
}
