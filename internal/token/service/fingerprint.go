package service

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
	"time"

	"github.com/allisson/tokenvault/internal/token/domain"
)

// Fingerprint returns a keyless 16 hex character digest of a token, the sorted keys
// of its metadata and its creation time truncated to the minute.
//
// It is not secret. It detects substitution of the token or metadata inside a
// payload independently of the AEAD tag.
func Fingerprint(token string, metadata map[string]string, createdAt time.Time) string {
	runes := []rune(token)
	head := runes[:min(10, len(runes))]
	tail := runes[max(0, len(runes)-10):]

	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	buf := make([]byte, 0, 128)
	buf = appendLengthPrefixed(buf, []byte(string(head)+string(tail)))
	buf = appendLengthPrefixed(buf, []byte(strings.Join(keys, ",")))
	buf = appendUint64(buf, createdAt.UTC().Truncate(time.Minute).Unix())

	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])[:domain.FingerprintLength]
}
