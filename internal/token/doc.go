/*
Package token provides authenticated encryption and lifecycle management for bearer
tokens (JWT wrappers, OAuth credentials, sessions and refresh tokens).

# Architecture

  - domain: TokenType, Policy, Envelope and the persisted TokenRecord
  - service: envelope Codec (AEAD, integrity hash, fingerprint) and client Binding
  - usecase: lifecycle orchestration (encrypt, decrypt, rotate, re-encrypt) and the
    token gateway used by callers (issue, open, revoke, cleanup)
  - repository: PostgreSQL and MySQL record stores, Redis revocation cache

# Envelope

Every encryption produces a self-describing envelope:

	{"v":1,"t":"refresh","s":"<salt b64>","i":"<iv b64>","d":"<ciphertext b64>",
	 "a":"<tag b64>","c":1700000000000,"h":"<integrity hex>"}

The subkey is PBKDF2-SHA256(masterKey[v], salt || type). The integrity hash is keyed
from the master key of version v, so envelopes keep verifying after a rotation for
as long as that version is retained.

# Errors

Every decryption-side failure (integrity, AEAD, fingerprint, expiry, revocation,
unknown key version) surfaces to token presenters as domain.ErrTokenInvalid. The
specific cause is logged.
*/
package token
