package domain

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Envelope is the self-describing encrypted form of a token. It is immutable once
// created; re-encryption produces a new Envelope.
type Envelope struct {
	Version       int
	Type          TokenType
	Salt          []byte
	IV            []byte
	Ciphertext    []byte
	AuthTag       []byte
	CreatedAt     time.Time
	IntegrityHash []byte
}

// wireEnvelope is the JSON shape of an envelope. Pointer fields distinguish a
// missing field from a zero value.
type wireEnvelope struct {
	V *int    `json:"v"`
	T *string `json:"t"`
	S *string `json:"s"`
	I *string `json:"i"`
	D *string `json:"d"`
	A *string `json:"a"`
	C *int64  `json:"c"`
	H *string `json:"h"`
}

// MarshalJSON encodes the envelope in its wire form.
func (e *Envelope) MarshalJSON() ([]byte, error) {
	v := e.Version
	t := string(e.Type)
	s := base64.StdEncoding.EncodeToString(e.Salt)
	i := base64.StdEncoding.EncodeToString(e.IV)
	d := base64.StdEncoding.EncodeToString(e.Ciphertext)
	a := base64.StdEncoding.EncodeToString(e.AuthTag)
	c := e.CreatedAt.UnixMilli()
	h := hex.EncodeToString(e.IntegrityHash)
	return json.Marshal(wireEnvelope{V: &v, T: &t, S: &s, I: &i, D: &d, A: &a, C: &c, H: &h})
}

// UnmarshalJSON decodes the wire form. Unknown fields are ignored; every known
// field is required and size checked.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	missing := func(name string) error {
		return fmt.Errorf("%w: missing field %q", ErrMalformedEnvelope, name)
	}
	switch {
	case w.V == nil:
		return missing("v")
	case w.T == nil:
		return missing("t")
	case w.S == nil:
		return missing("s")
	case w.I == nil:
		return missing("i")
	case w.D == nil:
		return missing("d")
	case w.A == nil:
		return missing("a")
	case w.C == nil:
		return missing("c")
	case w.H == nil:
		return missing("h")
	}

	if *w.V <= 0 {
		return fmt.Errorf("%w: version must be positive", ErrMalformedEnvelope)
	}
	tokenType, err := ParseTokenType(*w.T)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	salt, err := decodeFixed("s", *w.S, SaltSize)
	if err != nil {
		return err
	}
	iv, err := decodeFixed("i", *w.I, IVSize)
	if err != nil {
		return err
	}
	authTag, err := decodeFixed("a", *w.A, AuthTagSize)
	if err != nil {
		return err
	}
	ciphertext, err := base64.StdEncoding.DecodeString(*w.D)
	if err != nil || len(ciphertext) == 0 {
		return fmt.Errorf("%w: field \"d\" is not valid base64", ErrMalformedEnvelope)
	}
	hash, err := hex.DecodeString(*w.H)
	if err != nil || len(hash) != IntegrityHashSize {
		return fmt.Errorf("%w: field \"h\" must be %d hex-encoded bytes", ErrMalformedEnvelope, IntegrityHashSize)
	}

	*e = Envelope{
		Version:       *w.V,
		Type:          tokenType,
		Salt:          salt,
		IV:            iv,
		Ciphertext:    ciphertext,
		AuthTag:       authTag,
		CreatedAt:     time.UnixMilli(*w.C).UTC(),
		IntegrityHash: hash,
	}
	return nil
}

func decodeFixed(field, value string, size int) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(value)
	if err != nil || len(b) != size {
		return nil, fmt.Errorf("%w: field %q must be %d base64-encoded bytes", ErrMalformedEnvelope, field, size)
	}
	return b, nil
}

// Encode returns the wire form of the envelope.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEnvelope parses the wire form of an envelope.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		if errors.Is(err, ErrMalformedEnvelope) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return &e, nil
}
