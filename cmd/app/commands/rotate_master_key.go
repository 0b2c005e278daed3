package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	cryptoService "github.com/allisson/tokenvault/internal/crypto/service"
)

// RunRotateMasterKey generates the next master key version and prints the MASTER_KEYS
// value with the new entry appended. The new version is one above the highest
// existing version and becomes the active one. Existing entries are carried over
// unchanged so envelopes sealed under them keep decrypting.
func RunRotateMasterKey(
	ctx context.Context,
	kmsService cryptoService.KMSService,
	logger *slog.Logger,
	writer io.Writer,
	kmsProvider, kmsKeyURI, existingMasterKeys string,
) error {
	existingMasterKeys = strings.TrimSpace(existingMasterKeys)
	if existingMasterKeys == "" {
		return fmt.Errorf("MASTER_KEYS is not set - cannot rotate without existing keys")
	}
	if (kmsProvider == "") != (kmsKeyURI == "") {
		return fmt.Errorf("kms-provider and kms-key-uri are required together")
	}

	highest, err := highestVersion(existingMasterKeys)
	if err != nil {
		return err
	}
	newVersion := highest + 1

	encodedKey, err := generateMasterKey(ctx, kmsService, kmsKeyURI)
	if err != nil {
		return err
	}

	logger.Info("master key rotated",
		slog.Int("old_version", highest),
		slog.Int("new_version", newVersion),
		slog.Bool("kms", kmsKeyURI != ""),
	)

	_, _ = fmt.Fprintln(writer, "# Master Key Rotation")
	_, _ = fmt.Fprintln(writer, "# Update these environment variables in your .env file or secrets manager")
	_, _ = fmt.Fprintln(writer)
	writeKMSLines(writer, kmsProvider, kmsKeyURI)
	_, _ = fmt.Fprintf(writer, "MASTER_KEYS=\"%s,%d:%s\"\n", existingMasterKeys, newVersion, encodedKey)
	_, _ = fmt.Fprintf(writer, "ACTIVE_MASTER_KEY_VERSION=\"%d\"\n", newVersion)
	_, _ = fmt.Fprintln(writer)
	_, _ = fmt.Fprintln(writer, "# Rotation Workflow:")
	_, _ = fmt.Fprintln(writer, "# 1. Update the above environment variables")
	_, _ = fmt.Fprintln(writer, "# 2. Restart the application")
	_, _ = fmt.Fprintln(writer, "# 3. Tokens are re-encrypted under the new version as they are opened")
	_, _ = fmt.Fprintf(writer,
		"# 4. Keep versions up to %d until every token sealed under them has expired\n",
		highest,
	)
	return nil
}
