package domain

import (
	"time"
)

// Payload is the plaintext bundle recovered from an envelope.
type Payload struct {
	Token     string
	Type      TokenType
	Version   int
	CreatedAt time.Time
	Metadata  map[string]string
}

// BindingContext describes the client a token is presented from.
type BindingContext struct {
	UserAgent string
	IP        string
	DeviceID  string
}
