package domain

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEnvelope() *Envelope {
	return &Envelope{
		Version:       2,
		Type:          TokenTypeRefresh,
		Salt:          bytes.Repeat([]byte{0x01}, SaltSize),
		IV:            bytes.Repeat([]byte{0x02}, IVSize),
		Ciphertext:    []byte("ciphertext-bytes"),
		AuthTag:       bytes.Repeat([]byte{0x03}, AuthTagSize),
		CreatedAt:     time.UnixMilli(1700000000123).UTC(),
		IntegrityHash: bytes.Repeat([]byte{0x04}, IntegrityHashSize),
	}
}

func TestEnvelope_WireShape(t *testing.T) {
	data, err := newTestEnvelope().Encode()
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))

	assert.Len(t, fields, 8)
	assert.Equal(t, float64(2), fields["v"])
	assert.Equal(t, "refresh", fields["t"])
	assert.Equal(t, float64(1700000000123), fields["c"])
	assert.Equal(t, "0404040404040404040404040404040404040404040404040404040404040404", fields["h"])
	for _, key := range []string{"s", "i", "d", "a"} {
		assert.IsType(t, "", fields[key])
	}
}

func TestDecodeEnvelope(t *testing.T) {
	original := newTestEnvelope()
	data, err := original.Encode()
	require.NoError(t, err)

	t.Run("round trip", func(t *testing.T) {
		decoded, err := DecodeEnvelope(data)
		require.NoError(t, err)
		assert.Equal(t, original, decoded)
	})

	t.Run("unknown fields are ignored", func(t *testing.T) {
		var fields map[string]any
		require.NoError(t, json.Unmarshal(data, &fields))
		fields["x"] = "future-field"
		extended, err := json.Marshal(fields)
		require.NoError(t, err)

		decoded, err := DecodeEnvelope(extended)
		require.NoError(t, err)
		assert.Equal(t, original, decoded)
	})

	for _, key := range []string{"v", "t", "s", "i", "d", "a", "c", "h"} {
		t.Run("missing "+key, func(t *testing.T) {
			var fields map[string]any
			require.NoError(t, json.Unmarshal(data, &fields))
			delete(fields, key)
			truncated, err := json.Marshal(fields)
			require.NoError(t, err)

			_, err = DecodeEnvelope(truncated)
			assert.ErrorIs(t, err, ErrMalformedEnvelope)
		})
	}

	tests := []struct {
		name  string
		key   string
		value any
	}{
		{name: "zero version", key: "v", value: 0},
		{name: "unknown type", key: "t", value: "api-key"},
		{name: "short salt", key: "s", value: "AAEC"},
		{name: "long iv", key: "i", value: "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"},
		{name: "bad ciphertext", key: "d", value: "***"},
		{name: "short tag", key: "a", value: "AA=="},
		{name: "non hex hash", key: "h", value: "zz"},
		{name: "short hash", key: "h", value: "abcd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fields map[string]any
			require.NoError(t, json.Unmarshal(data, &fields))
			fields[tt.key] = tt.value
			mutated, err := json.Marshal(fields)
			require.NoError(t, err)

			_, err = DecodeEnvelope(mutated)
			assert.ErrorIs(t, err, ErrMalformedEnvelope)
		})
	}

	t.Run("not json", func(t *testing.T) {
		_, err := DecodeEnvelope([]byte("not-json"))
		assert.ErrorIs(t, err, ErrMalformedEnvelope)
	})
}
