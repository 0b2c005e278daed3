// Package service implements the token envelope codec and client binding.
package service

import (
	cryptoDomain "github.com/allisson/tokenvault/internal/crypto/domain"
)

// KeyProvider resolves master keys by version. *cryptoDomain.KeyStore implements it.
type KeyProvider interface {
	Current() (*cryptoDomain.MasterKey, error)
	Get(version int) (*cryptoDomain.MasterKey, error)
}
