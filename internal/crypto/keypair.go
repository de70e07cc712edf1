package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/mr-tron/base58"
)

// SecretKeySize is the length of a vault secret: the 32-byte ed25519 seed
// followed by the 32-byte public key.
const SecretKeySize = ed25519.PrivateKeySize

// VaultKeypair is a freshly generated vault identity.
type VaultKeypair struct {
	secret ed25519.PrivateKey
}

// GenerateVaultKeypair creates a new random ed25519 keypair.
func GenerateVaultKeypair() (*VaultKeypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("crypto: generate vault keypair: %w", err)
	}
	return &VaultKeypair{secret: priv}, nil
}

// VaultKeypairFromSecret rebuilds a keypair from stored secret material. The
// embedded public key must match the one derived from the seed.
func VaultKeypairFromSecret(secret []byte) (*VaultKeypair, error) {
	if len(secret) != SecretKeySize {
		return nil, fmt.Errorf("crypto: vault secret is %d bytes, want %d", len(secret), SecretKeySize)
	}
	priv := ed25519.NewKeyFromSeed(secret[:ed25519.SeedSize])
	if !priv.Equal(ed25519.PrivateKey(secret)) {
		return nil, fmt.Errorf("crypto: vault secret public key does not match seed")
	}
	return &VaultKeypair{secret: priv}, nil
}

// Address returns the base58-encoded public key.
func (k *VaultKeypair) Address() string {
	return base58.Encode(k.secret.Public().(ed25519.PublicKey))
}

// Secret returns a copy of the 64-byte secret key.
func (k *VaultKeypair) Secret() []byte {
	out := make([]byte, len(k.secret))
	copy(out, k.secret)
	return out
}

// AddressFromSecret derives the vault address for stored secret material.
func AddressFromSecret(secret []byte) (string, error) {
	kp, err := VaultKeypairFromSecret(secret)
	if err != nil {
		return "", err
	}
	return kp.Address(), nil
}
