package domain

import (
	"fmt"
	"time"
)

// Policy bounds the lifetime of a token type.
type Policy struct {
	// MaxAge is how long an envelope stays decryptable after creation.
	MaxAge time.Duration
	// RotationInterval is the age after which a record is re-encrypted on access.
	RotationInterval time.Duration
}

// PolicySet holds one Policy per token type. Lookups are exhaustive over TokenType.
type PolicySet struct {
	JWT     Policy
	OAuth   Policy
	Session Policy
	Refresh Policy
}

// DefaultPolicySet returns the built-in policies.
func DefaultPolicySet() PolicySet {
	return PolicySet{
		JWT:     Policy{MaxAge: time.Hour, RotationInterval: 30 * time.Minute},
		OAuth:   Policy{MaxAge: 24 * time.Hour, RotationInterval: 12 * time.Hour},
		Session: Policy{MaxAge: 24 * time.Hour, RotationInterval: time.Hour},
		Refresh: Policy{MaxAge: 30 * 24 * time.Hour, RotationInterval: 7 * 24 * time.Hour},
	}
}

// For returns the policy for t. Returns ErrInvalidTokenType for unsupported types.
func (p PolicySet) For(t TokenType) (Policy, error) {
	switch t {
	case TokenTypeJWT:
		return p.JWT, nil
	case TokenTypeOAuth:
		return p.OAuth, nil
	case TokenTypeSession:
		return p.Session, nil
	case TokenTypeRefresh:
		return p.Refresh, nil
	default:
		return Policy{}, t.Validate()
	}
}

// Validate checks every policy has a positive max age and rotation interval.
func (p PolicySet) Validate() error {
	for _, t := range TokenTypes {
		policy, _ := p.For(t)
		if policy.MaxAge <= 0 || policy.RotationInterval <= 0 {
			return fmt.Errorf("%w: %s", ErrInvalidPolicy, t)
		}
	}
	return nil
}
