package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveAddressKeyLength(t *testing.T) {
	key := DeriveAddressKey("mgindb1abc")
	assert.Len(t, key, 32)
}

func TestDeriveAddressKeyDeterministic(t *testing.T) {
	a := DeriveAddressKey("wallet-a")
	b := DeriveAddressKey("wallet-a")
	assert.Equal(t, a, b)
}

func TestDeriveAddressKeyDiffersByAddress(t *testing.T) {
	a := DeriveAddressKey("wallet-a")
	b := DeriveAddressKey("wallet-b")
	assert.NotEqual(t, a, b)
}

func TestTxCipherRoundTrip(t *testing.T) {
	cipher, err := NewTxCipher("wallet-a")
	require.NoError(t, err)

	encoded, err := cipher.Encrypt([]byte("transfer memo"))
	require.NoError(t, err)

	plaintext, err := cipher.Decrypt(encoded)
	require.NoError(t, err)
	assert.Equal(t, "transfer memo", string(plaintext))
}

func TestTxCipherWrongAddressFails(t *testing.T) {
	sender, err := NewTxCipher("wallet-a")
	require.NoError(t, err)
	encoded, err := sender.Encrypt([]byte("secret"))
	require.NoError(t, err)

	other, err := NewTxCipher("wallet-b")
	require.NoError(t, err)
	_, err = other.Decrypt(encoded)
	assert.Error(t, err)
}

func TestTxCipherRejectsTruncatedCiphertext(t *testing.T) {
	cipher, err := NewTxCipher("wallet-a")
	require.NoError(t, err)
	_, err = cipher.Decrypt("YQ==")
	assert.Error(t, err)
}
