package commands

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	cryptoDomain "github.com/allisson/tokenvault/internal/crypto/domain"
	cryptoService "github.com/allisson/tokenvault/internal/crypto/service"
)

// RunCreateMasterKey generates a 32-byte master key and prints the MASTER_KEYS and
// ACTIVE_MASTER_KEY_VERSION lines that configure it as the only version.
//
// With a KMS key URI the printed value is KMS ciphertext; without one it is the raw
// key in base64, which is only suitable for development.
func RunCreateMasterKey(
	ctx context.Context,
	kmsService cryptoService.KMSService,
	logger *slog.Logger,
	writer io.Writer,
	version int,
	kmsProvider, kmsKeyURI string,
) error {
	if version <= 0 {
		return fmt.Errorf("version must be a positive integer, got: %d", version)
	}
	if (kmsProvider == "") != (kmsKeyURI == "") {
		return fmt.Errorf("kms-provider and kms-key-uri are required together")
	}

	encodedKey, err := generateMasterKey(ctx, kmsService, kmsKeyURI)
	if err != nil {
		return err
	}

	logger.Info("master key generated",
		slog.Int("version", version),
		slog.Bool("kms", kmsKeyURI != ""),
	)

	_, _ = fmt.Fprintln(writer, "# Master Key Configuration")
	_, _ = fmt.Fprintln(writer, "# Copy these environment variables to your .env file or secrets manager")
	_, _ = fmt.Fprintln(writer)
	writeKMSLines(writer, kmsProvider, kmsKeyURI)
	_, _ = fmt.Fprintf(writer, "MASTER_KEYS=\"%d:%s\"\n", version, encodedKey)
	_, _ = fmt.Fprintf(writer, "ACTIVE_MASTER_KEY_VERSION=\"%d\"\n", version)
	return nil
}

// generateMasterKey returns a fresh key encoded for a MASTER_KEYS entry. The raw
// key is zeroed before returning.
func generateMasterKey(ctx context.Context, kmsService cryptoService.KMSService, kmsKeyURI string) (string, error) {
	masterKey := make([]byte, cryptoDomain.KeySize)
	if _, err := rand.Read(masterKey); err != nil {
		return "", fmt.Errorf("failed to generate master key: %w", err)
	}
	defer cryptoDomain.Zero(masterKey)

	if kmsKeyURI == "" {
		return base64.StdEncoding.EncodeToString(masterKey), nil
	}
	if kmsService == nil {
		return "", fmt.Errorf("no KMS service configured")
	}

	wrapped, err := kmsService.WrapMasterKey(ctx, kmsKeyURI, masterKey)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt master key with KMS: %w", err)
	}
	return wrapped, nil
}

func writeKMSLines(writer io.Writer, kmsProvider, kmsKeyURI string) {
	if kmsKeyURI == "" {
		_, _ = fmt.Fprintln(writer, "# WARNING: plaintext key, use --kms-provider and --kms-key-uri in production")
		return
	}
	_, _ = fmt.Fprintf(writer, "KMS_PROVIDER=\"%s\"\n", kmsProvider)
	_, _ = fmt.Fprintf(writer, "KMS_KEY_URI=\"%s\"\n", kmsKeyURI)
}

// highestVersion returns the largest version named in a MASTER_KEYS value. Only the
// version prefixes are read; key material is not decoded.
func highestVersion(masterKeys string) (int, error) {
	highest := 0
	for part := range strings.SplitSeq(masterKeys, ",") {
		prefix, _, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return 0, fmt.Errorf("%w: %q", cryptoDomain.ErrInvalidMasterKeysFormat, part)
		}
		version, err := strconv.Atoi(prefix)
		if err != nil || version <= 0 {
			return 0, fmt.Errorf("%w: version %q must be a positive integer",
				cryptoDomain.ErrInvalidMasterKeysFormat, prefix)
		}
		highest = max(highest, version)
	}
	return highest, nil
}
