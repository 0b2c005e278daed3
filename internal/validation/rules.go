// Package validation provides custom validation rules for the application.
package validation

import (
	"strconv"
	"strings"
	"unicode"

	validation "github.com/jellydator/validation"

	apperrors "github.com/allisson/tokenvault/internal/errors"
	tokenDomain "github.com/allisson/tokenvault/internal/token/domain"
)

// WrapValidationError wraps validation errors as domain ErrInvalidInput
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// NoWhitespace validates that string doesn't contain leading/trailing whitespace
var NoWhitespace = validation.NewStringRuleWithError(
	func(s string) bool {
		return s == strings.TrimSpace(s)
	},
	validation.NewError("validation_no_whitespace", "must not contain leading or trailing whitespace"),
)

// NotBlank validates that a string is not empty after trimming whitespace
var NotBlank = validation.NewStringRuleWithError(
	func(s string) bool {
		return strings.TrimSpace(s) != ""
	},
	validation.NewError("validation_not_blank", "must not be blank"),
)

// NoControlChars validates that a string has no control characters.
var NoControlChars = validation.NewStringRuleWithError(
	func(s string) bool {
		return strings.IndexFunc(s, unicode.IsControl) < 0
	},
	validation.NewError("validation_no_control_chars", "must not contain control characters"),
)

// TokenType validates that a value is a supported token type.
var TokenType = validation.By(func(value interface{}) error {
	var t tokenDomain.TokenType
	switch v := value.(type) {
	case tokenDomain.TokenType:
		t = v
	case string:
		t = tokenDomain.TokenType(v)
	default:
		return validation.NewError("validation_token_type_type", "must be a token type")
	}
	if t == "" {
		return nil // Let Required handle empty values
	}
	if err := t.Validate(); err != nil {
		return validation.NewError("validation_token_type", "must be one of jwt, oauth, session, refresh")
	}
	return nil
})

// MetadataKeys validates that every key of a string map is non-blank and free of
// control characters.
var MetadataKeys = validation.By(func(value interface{}) error {
	m, ok := value.(map[string]string)
	if !ok {
		return validation.NewError("validation_metadata_type", "must be a string map")
	}
	for k := range m {
		if strings.TrimSpace(k) == "" || strings.IndexFunc(k, unicode.IsControl) >= 0 {
			return validation.NewError("validation_metadata_key", "keys must be non-blank printable strings")
		}
	}
	return nil
})

// MasterKeyList validates the "version:base64,version:base64" master key format.
// Key length is not checked since entries may be KMS ciphertexts.
var MasterKeyList = validation.By(func(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return validation.NewError("validation_master_keys_type", "must be a string")
	}
	if s == "" {
		return nil // Let Required handle empty strings
	}
	seen := make(map[int]bool)
	for entry := range strings.SplitSeq(s, ",") {
		version, key, found := strings.Cut(strings.TrimSpace(entry), ":")
		v, err := strconv.Atoi(version)
		if !found || err != nil || v <= 0 {
			return validation.NewError("validation_master_keys_format", "entries must be version:base64key")
		}
		if seen[v] {
			return validation.NewError("validation_master_keys_duplicate", "versions must be unique")
		}
		seen[v] = true
		if err := Base64.Validate(key); err != nil || key == "" {
			return validation.NewError("validation_master_keys_base64", "keys must be valid base64-encoded data")
		}
	}
	return nil
})
