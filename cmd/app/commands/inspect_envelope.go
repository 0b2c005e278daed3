package commands

import (
	"bytes"
	"fmt"
	"io"
	"time"

	tokenDomain "github.com/allisson/tokenvault/internal/token/domain"
)

// envelopeSummary is the non-secret header of an envelope.
type envelopeSummary struct {
	Version         int       `json:"version"`
	Type            string    `json:"type"`
	CreatedAt       time.Time `json:"created_at"`
	CiphertextBytes int       `json:"ciphertext_bytes"`
}

// RunInspectEnvelope decodes a wire envelope and prints its header without
// decrypting it. When envelope is "-" or empty the envelope is read from reader.
// No key material is needed, so the command also works on envelopes whose key
// version is no longer configured.
func RunInspectEnvelope(reader io.Reader, writer io.Writer, envelope, format string) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	raw := []byte(envelope)
	if envelope == "" || envelope == "-" {
		var err error
		if raw, err = io.ReadAll(reader); err != nil {
			return fmt.Errorf("failed to read envelope: %w", err)
		}
	}

	env, err := tokenDomain.DecodeEnvelope(bytes.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("failed to decode envelope: %w", err)
	}

	summary := envelopeSummary{
		Version:         env.Version,
		Type:            string(env.Type),
		CreatedAt:       env.CreatedAt,
		CiphertextBytes: len(env.Ciphertext),
	}

	if format == "json" {
		return writeJSON(writer, summary)
	}
	_, _ = fmt.Fprintf(writer, "Key version:  %d\n", summary.Version)
	_, _ = fmt.Fprintf(writer, "Token type:   %s\n", summary.Type)
	_, _ = fmt.Fprintf(writer, "Created at:   %s\n", summary.CreatedAt.Format(time.RFC3339))
	_, _ = fmt.Fprintf(writer, "Ciphertext:   %d bytes\n", summary.CiphertextBytes)
	return nil
}
