package crypto

import (
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateVaultKeypair(t *testing.T) {
	kp, err := GenerateVaultKeypair()
	require.NoError(t, err)

	secret := kp.Secret()
	assert.Len(t, secret, SecretKeySize)

	pub, err := base58.Decode(kp.Address())
	require.NoError(t, err)
	assert.Equal(t, secret[32:], pub)
}

func TestGenerateVaultKeypair_Unique(t *testing.T) {
	a, err := GenerateVaultKeypair()
	require.NoError(t, err)
	b, err := GenerateVaultKeypair()
	require.NoError(t, err)

	assert.NotEqual(t, a.Address(), b.Address())
}

func TestVaultKeypairFromSecret_RoundTrip(t *testing.T) {
	kp, err := GenerateVaultKeypair()
	require.NoError(t, err)

	addr, err := AddressFromSecret(kp.Secret())
	require.NoError(t, err)
	assert.Equal(t, kp.Address(), addr)
}

func TestVaultKeypairFromSecret_Rejects(t *testing.T) {
	_, err := VaultKeypairFromSecret(make([]byte, 32))
	assert.Error(t, err)

	kp, err := GenerateVaultKeypair()
	require.NoError(t, err)
	tampered := kp.Secret()
	tampered[40] ^= 0xff
	_, err = VaultKeypairFromSecret(tampered)
	assert.Error(t, err)
}

func TestSecret_ReturnsCopy(t *testing.T) {
	kp, err := GenerateVaultKeypair()
	require.NoError(t, err)

	s := kp.Secret()
	s[0] ^= 0xff
	assert.NotEqual(t, s, kp.Secret())
}
