package app

import (
	"context"
	"fmt"

	cryptoDomain "github.com/allisson/tokenvault/internal/crypto/domain"
	cryptoService "github.com/allisson/tokenvault/internal/crypto/service"
)

// KMSService returns the KMS service.
func (c *Container) KMSService() cryptoService.KMSService {
	c.kmsServiceInit.Do(func() {
		c.kmsService = cryptoService.NewKMSService()
	})
	return c.kmsService
}

// AEADManager returns the AEAD manager service.
func (c *Container) AEADManager() cryptoService.AEADManager {
	c.aeadManagerInit.Do(func() {
		c.aeadManager = cryptoService.NewAEADManager()
	})
	return c.aeadManager
}

// KeyDerivation returns the PBKDF2 key derivation configured with KDF_ITERATIONS.
func (c *Container) KeyDerivation() (cryptoService.KeyDerivation, error) {
	var err error
	c.keyDerivationInit.Do(func() {
		c.keyDerivation, err = cryptoService.NewKeyDerivation(c.config.KDFIterations)
		if err != nil {
			c.initErrors["keyDerivation"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["keyDerivation"]; exists {
		return nil, storedErr
	}
	return c.keyDerivation, nil
}

// KeyStore returns the master key store loaded from MASTER_KEYS.
func (c *Container) KeyStore() (*cryptoDomain.KeyStore, error) {
	var err error
	c.keyStoreInit.Do(func() {
		c.keyStore, err = c.initKeyStore()
		if err != nil {
			c.initErrors["keyStore"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["keyStore"]; exists {
		return nil, storedErr
	}
	return c.keyStore, nil
}

// initKeyStore loads the master keys, unwrapping them through KMS when KMS_KEY_URI
// is set. Ephemeral keys are only allowed outside production.
func (c *Container) initKeyStore() (*cryptoDomain.KeyStore, error) {
	keyStore, err := cryptoDomain.LoadKeyStore(
		context.Background(),
		cryptoDomain.KeyStoreConfig{
			MasterKeys:     c.config.MasterKeys,
			ActiveVersion:  c.config.ActiveMasterKeyVersion,
			KMSKeyURI:      c.config.KMSKeyURI,
			AllowEphemeral: !c.config.IsProduction(),
		},
		c.KMSService(),
		c.Logger(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load master keys: %w", err)
	}
	return keyStore, nil
}
