// Package blockchain implements the optional ledger described in
// spec.md §3.7/§4.15/§6.3: wallets, a pending-transaction pool, and a
// proof-of-work chain assembled from accumulated transactions.
// Grounded on original_source/mgindb/blockchain_manager.py, with the
// crypto primitives swapped for the ecosystem libraries the retrieved
// pack actually carries for this domain (see DESIGN.md).
package blockchain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/cuemby/mgindb/pkg/security"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // matches the original's hashlib.new('ripemd160') address scheme
)

// addressPrefix is the single byte prepended before the checksum step,
// chosen by the original source so addresses read as starting with
// "M" once base58-encoded.
const addressPrefix = 0x33

// Wallet is the ledger-side record for one address. Balance is the
// amount confirmed by mined blocks; BalancePending is what the wallet
// may still spend once funds already locked in not-yet-mined
// transactions are subtracted — a field the original Python source
// does not have (it carries a single `balance`), added here because
// spec.md §4.15 calls for "balance and balance_pending... debited
// immediately on send, credited on inclusion" (see DESIGN.md).
type Wallet struct {
	Address             string   `json:"address"`
	PublicKey           string   `json:"public_key"`
	EncryptedPrivateKey string   `json:"-"`
	Balance             float64  `json:"balance"`
	BalancePending      float64  `json:"balance_pending"`
	TxCount             int      `json:"tx_count"`
	TxData              []string `json:"tx_data"`
	LastTxTimestamp     int64    `json:"last_tx_timestamp"`
	CreatedAt           int64    `json:"created_at"`
}

// generatedWallet is returned to the caller of NEW_WALLET once, the
// only time the plaintext private key is ever surfaced.
type generatedWallet struct {
	Wallet     *Wallet
	PrivateKey string
}

// newWallet generates a fresh secp256k1 keypair, derives its address,
// and returns both the ledger record (private key encrypted at rest)
// and the plaintext private key for one-time display. The original
// derives the keypair from a BIP-39 mnemonic seed; no mnemonic library
// is available anywhere in the retrieved pack, so this generates the
// private key directly instead of through a mnemonic-derived seed
// (see DESIGN.md) — the mnemonic phrase itself is dropped, not
// replaced.
func newWallet(now int64) (*generatedWallet, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate private key: %w", err)
	}
	privHex := hex.EncodeToString(priv.Serialize())
	pubBytes := priv.PubKey().SerializeUncompressed()
	pubHex := hex.EncodeToString(pubBytes)

	address, err := deriveAddress(pubBytes)
	if err != nil {
		return nil, fmt.Errorf("derive address: %w", err)
	}

	encryptedPriv, err := encryptPrivateKey(privHex)
	if err != nil {
		return nil, fmt.Errorf("encrypt private key: %w", err)
	}

	return &generatedWallet{
		Wallet: &Wallet{
			Address:             address,
			PublicKey:           pubHex,
			EncryptedPrivateKey: encryptedPriv,
			Balance:             0,
			BalancePending:      0,
			TxCount:             0,
			TxData:              []string{},
			LastTxTimestamp:     0,
			CreatedAt:           now,
		},
		PrivateKey: privHex,
	}, nil
}

// deriveAddress reproduces generate_address: SHA-256 the public key,
// RIPEMD-160 that digest, prepend addressPrefix, append a
// double-SHA-256 checksum, and base58-encode the result.
func deriveAddress(publicKey []byte) (string, error) {
	sha := sha256.Sum256(publicKey)

	ripemd := ripemd160.New()
	if _, err := ripemd.Write(sha[:]); err != nil {
		return "", err
	}
	hashed := ripemd.Sum(nil)

	extended := append([]byte{addressPrefix}, hashed...)
	checksum1 := sha256.Sum256(extended)
	checksum2 := sha256.Sum256(checksum1[:])
	checksum := checksum2[:4]

	return base58.Encode(append(extended, checksum...)), nil
}

// encryptPrivateKey seals a wallet's private key with a key derived
// from the private key itself, mirroring the original's
// base64(sha256(private_key_bytes)) Fernet key — keyed at rest by the
// secret it protects, same as the original. pkg/security.NewTxCipher
// already does exactly the sha256-of-an-input-string key derivation
// this needs; it is reused unmodified rather than duplicating an
// identical cipher constructor under a new name.
func encryptPrivateKey(privateKeyHex string) (string, error) {
	cipher, err := security.NewTxCipher(privateKeyHex)
	if err != nil {
		return "", err
	}
	return cipher.Encrypt([]byte(privateKeyHex))
}

func nowUnix() int64 {
	return time.Now().Unix()
}
