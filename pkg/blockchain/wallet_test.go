package blockchain

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWalletDerivesAddressFromKeypair(t *testing.T) {
	generated, err := newWallet(1000)
	require.NoError(t, err)

	assert.NotEmpty(t, generated.Wallet.Address)
	assert.NotEmpty(t, generated.Wallet.PublicKey)
	assert.NotEmpty(t, generated.PrivateKey)
	assert.NotContains(t, generated.Wallet.EncryptedPrivateKey, generated.PrivateKey)
}

func TestNewWalletAddressesAreUnique(t *testing.T) {
	a, err := newWallet(1000)
	require.NoError(t, err)
	b, err := newWallet(1000)
	require.NoError(t, err)

	assert.NotEqual(t, a.Wallet.Address, b.Wallet.Address)
}

func TestDeriveAddressIsDeterministic(t *testing.T) {
	generated, err := newWallet(1000)
	require.NoError(t, err)
	pub, err := hex.DecodeString(generated.Wallet.PublicKey)
	require.NoError(t, err)

	again, err := deriveAddress(pub)
	require.NoError(t, err)
	assert.Equal(t, generated.Wallet.Address, again)
}
