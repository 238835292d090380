// Package security implements the blockchain variant's per-sender
// transaction encryption (spec.md §4.15): each wallet address derives
// its own symmetric key, so a transaction's `data` field is legible
// only to parties who know the sender's address. Grounded on
// original_source/mgindb/blockchain_manager.py's use of `cryptography.
// fernet.Fernet` keyed by `base64(sha256(sender_address))`.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
)

// DeriveAddressKey derives the 32-byte AES-256 key used to encrypt a
// transaction's data field, the same way the original derives a Fernet
// key: SHA-256 of the sender's wallet address, base64-encoded for
// storage/display and decoded back to raw bytes for the cipher.
func DeriveAddressKey(address string) []byte {
	sum := sha256.Sum256([]byte(address))
	return sum[:]
}

// DeriveAddressKeyBase64 returns the key in the base64 form the
// original source stores/transmits it in.
func DeriveAddressKeyBase64(address string) string {
	return base64.StdEncoding.EncodeToString(DeriveAddressKey(address))
}

// TxCipher encrypts and decrypts one sender's transaction payloads.
type TxCipher struct {
	gcm cipher.AEAD
}

// NewTxCipher builds a TxCipher for the given sender address.
func NewTxCipher(senderAddress string) (*TxCipher, error) {
	block, err := aes.NewCipher(DeriveAddressKey(senderAddress))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &TxCipher{gcm: gcm}, nil
}

// Encrypt seals plaintext, prepending a fresh nonce, and returns the
// result base64-encoded for storage in a transaction's data field.
func (c *TxCipher) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := c.gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (c *TxCipher) Decrypt(encoded string) ([]byte, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid ciphertext encoding: %w", err)
	}
	nonceSize := c.gcm.NonceSize()
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := c.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}
