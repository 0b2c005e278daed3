package service

import (
	"context"
	"encoding/base64"
	"fmt"

	"gocloud.dev/secrets"

	cryptoDomain "github.com/allisson/tokenvault/internal/crypto/domain"

	// Register all KMS provider drivers
	_ "gocloud.dev/secrets/awskms"
	_ "gocloud.dev/secrets/azurekeyvault"
	_ "gocloud.dev/secrets/gcpkms"
	_ "gocloud.dev/secrets/hashivault"
	_ "gocloud.dev/secrets/localsecrets"
)

// kmsService implements KMSService using gocloud.dev/secrets.
type kmsService struct{}

// NewKMSService creates a new KMS service instance.
func NewKMSService() KMSService {
	return &kmsService{}
}

// OpenKeeper opens a secrets.Keeper for the configured KMS provider using the keyURI.
// Supports: gcpkms://, awskms://, azurekeyvault://, hashivault://, base64key://
func (k *kmsService) OpenKeeper(ctx context.Context, keyURI string) (cryptoDomain.KMSKeeper, error) {
	keeper, err := secrets.OpenKeeper(ctx, keyURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open KMS keeper: %w", err)
	}
	return keeper, nil
}

// WrapMasterKey encrypts key with the keeper at keyURI and base64 encodes the result.
func (k *kmsService) WrapMasterKey(ctx context.Context, keyURI string, key []byte) (string, error) {
	keeper, err := k.OpenKeeper(ctx, keyURI)
	if err != nil {
		return "", err
	}
	defer func() { _ = keeper.Close() }()

	ciphertext, err := keeper.Encrypt(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt master key with KMS: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}
