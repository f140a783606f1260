package cryptoconfig

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/hashicorp/vault/api"
)

// VaultPassphraseSource resolves the store's pickle passphrase from
// HashiCorp Vault's KV v2 engine.
type VaultPassphraseSource struct {
	client     *api.Client
	mountPath  string
	secretPath string
	secretKey  string
	logger     *log.Logger
}

// NewVaultPassphraseSource creates a Vault-backed PassphraseSource. addr and
// token authenticate to Vault; mountPath/secretPath/secretKey locate the KV
// v2 entry holding the passphrase string.
func NewVaultPassphraseSource(addr, token, mountPath, secretPath, secretKey string) (*VaultPassphraseSource, error) {
	cfg := &api.Config{Address: addr}
	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("cryptoconfig: create vault client: %w", err)
	}
	client.SetToken(token)

	if _, err := client.Sys().Health(); err != nil {
		return nil, fmt.Errorf("cryptoconfig: vault health check: %w", err)
	}

	return &VaultPassphraseSource{
		client:     client,
		mountPath:  mountPath,
		secretPath: secretPath,
		secretKey:  secretKey,
		logger:     log.New(os.Stdout, "[VAULT] ", log.Ldate|log.Ltime|log.LUTC),
	}, nil
}

// Passphrase implements PassphraseSource.
func (v *VaultPassphraseSource) Passphrase() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	secret, err := v.client.KVv2(v.mountPath).Get(ctx, v.secretPath)
	if err != nil {
		return "", fmt.Errorf("cryptoconfig: read vault secret: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("cryptoconfig: secret not found at %s/%s", v.mountPath, v.secretPath)
	}

	value, ok := secret.Data[v.secretKey].(string)
	if !ok {
		return "", fmt.Errorf("cryptoconfig: secret key %q not found or not a string", v.secretKey)
	}
	v.logger.Printf("pickle passphrase resolved from vault")
	return value, nil
}
