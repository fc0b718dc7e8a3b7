package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"gocloud.dev/secrets"

	// Register KMS provider drivers
	_ "gocloud.dev/secrets/awskms"
	_ "gocloud.dev/secrets/azurekeyvault"
	_ "gocloud.dev/secrets/gcpkms"
	_ "gocloud.dev/secrets/hashivault"
	_ "gocloud.dev/secrets/localsecrets"
)

const sealedPrefix = "sealed:v1:"

// SecretSealer protects endpoint secrets at rest.
type SecretSealer interface {
	Seal(ctx context.Context, plaintext string) (string, error)
	Open(ctx context.Context, stored string) (string, error)
}

// Keeper is the subset of *secrets.Keeper used for sealing.
type Keeper interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// KeeperSealer encrypts secrets with a gocloud.dev secrets keeper.
type KeeperSealer struct {
	keeper Keeper
}

// NewKeeperSealer creates a KeeperSealer.
func NewKeeperSealer(keeper Keeper) *KeeperSealer {
	return &KeeperSealer{keeper: keeper}
}

// OpenKeeper opens a keeper for keyURI.
// Supports: base64key://, hashivault://, awskms://, gcpkms://, azurekeyvault://
func OpenKeeper(ctx context.Context, keyURI string) (*secrets.Keeper, error) {
	keeper, err := secrets.OpenKeeper(ctx, keyURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open secrets keeper: %w", err)
	}
	return keeper, nil
}

func (s *KeeperSealer) Seal(ctx context.Context, plaintext string) (string, error) {
	ciphertext, err := s.keeper.Encrypt(ctx, []byte(plaintext))
	if err != nil {
		return "", fmt.Errorf("failed to seal webhook secret: %w", err)
	}
	return sealedPrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Open decrypts a sealed secret. Values stored before sealing was enabled are
// returned unchanged.
func (s *KeeperSealer) Open(ctx context.Context, stored string) (string, error) {
	encoded, ok := strings.CutPrefix(stored, sealedPrefix)
	if !ok {
		return stored, nil
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode sealed webhook secret: %w", err)
	}
	plaintext, err := s.keeper.Decrypt(ctx, ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to open webhook secret: %w", err)
	}
	return string(plaintext), nil
}

// PlaintextSealer stores secrets as is. Used when no key URI is configured.
type PlaintextSealer struct{}

// NewPlaintextSealer creates a PlaintextSealer.
func NewPlaintextSealer() *PlaintextSealer {
	return &PlaintextSealer{}
}

func (PlaintextSealer) Seal(_ context.Context, plaintext string) (string, error) {
	return plaintext, nil
}

func (PlaintextSealer) Open(_ context.Context, stored string) (string, error) {
	if strings.HasPrefix(stored, sealedPrefix) {
		return "", fmt.Errorf("webhook secret is sealed but no key is configured")
	}
	return stored, nil
}
