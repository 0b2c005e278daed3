package service

import (
	"crypto/sha256"
	"encoding/binary"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	integrityInfo = "token-envelope-integrity-v1"
	bindingInfo   = "token-binding-v1"
)

// deriveHKDFKey derives a 32-byte key from secret for the given purpose.
func deriveHKDFKey(secret []byte, info string) ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), key); err != nil {
		return nil, err
	}
	return key, nil
}

// appendLengthPrefixed adds a 4-byte big-endian length prefix followed by data.
func appendLengthPrefixed(buf []byte, data []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(data))) //nolint:gosec // inputs are size bounded
	return append(buf, data...)
}

func appendUint64(buf []byte, v int64) []byte {
	return binary.BigEndian.AppendUint64(buf, uint64(v)) //nolint:gosec // sign bit preserved by two's complement
}
