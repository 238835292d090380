package blockchain

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store persists the chain, wallets and contracts to
// data/blockchain.db, per spec.md §6.2/§6.3. Grounded on
// _examples/AKJUS-bsc-erigon/go.mod's modernc.org/sqlite dependency;
// no .go usage survives in the retrieved pack for this driver, so the
// schema and query style below follow plain database/sql idiom rather
// than imitating a pack file.
type Store struct {
	db *sql.DB
}

// openStore opens (creating if necessary) the SQLite database rooted
// at baseDir/data/blockchain.db and ensures its schema exists.
func openStore(baseDir string) (*Store, error) {
	path := filepath.Join(baseDir, "data", "blockchain.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open blockchain database: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers on one connection pool

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS blockchain (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			block_index INTEGER NOT NULL,
			timestamp INTEGER NOT NULL,
			nonce INTEGER NOT NULL,
			difficulty INTEGER NOT NULL,
			validation_time REAL NOT NULL,
			size INTEGER NOT NULL,
			previous_hash TEXT NOT NULL,
			hash TEXT NOT NULL,
			checksum TEXT NOT NULL,
			data TEXT NOT NULL,
			fee REAL NOT NULL,
			validator TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS wallets (
			address TEXT PRIMARY KEY,
			tx_count INTEGER NOT NULL,
			tx_data TEXT NOT NULL,
			last_tx_timestamp INTEGER NOT NULL,
			balances TEXT NOT NULL,
			public_key TEXT NOT NULL,
			encrypted_private_key TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS contracts (
			contract_hash TEXT PRIMARY KEY,
			owner_address TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL,
			logo TEXT NOT NULL,
			symbol TEXT NOT NULL,
			supply REAL NOT NULL,
			max_supply REAL NOT NULL,
			can_mint INTEGER NOT NULL,
			can_burn INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate blockchain schema: %w", err)
		}
	}
	return nil
}

// balances is the shape stored in wallets.balances, keeping Balance
// and BalancePending together in one TEXT column per the §6.3 schema,
// which names a single balances field rather than two columns.
type balances struct {
	Balance        float64 `json:"balance"`
	BalancePending float64 `json:"balance_pending"`
}

func (s *Store) saveBlock(b Block) error {
	data, err := json.Marshal(b.Data)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO blockchain (block_index, timestamp, nonce, difficulty, validation_time, size, previous_hash, hash, checksum, data, fee, validator)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.Index, b.Timestamp, b.Nonce, b.Difficulty, b.ValidationTime, b.Size, b.PreviousHash, b.Hash, b.Checksum, string(data), b.Fee, b.Validator,
	)
	return err
}

func (s *Store) loadChain() ([]Block, error) {
	rows, err := s.db.Query(
		`SELECT block_index, timestamp, nonce, difficulty, validation_time, size, previous_hash, hash, checksum, data, fee, validator
		 FROM blockchain ORDER BY block_index ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chain []Block
	for rows.Next() {
		var b Block
		var data string
		if err := rows.Scan(&b.Index, &b.Timestamp, &b.Nonce, &b.Difficulty, &b.ValidationTime, &b.Size, &b.PreviousHash, &b.Hash, &b.Checksum, &data, &b.Fee, &b.Validator); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &b.Data); err != nil {
			return nil, err
		}
		chain = append(chain, b)
	}
	return chain, rows.Err()
}

func (s *Store) saveWallet(w *Wallet) error {
	bal, err := json.Marshal(balances{Balance: w.Balance, BalancePending: w.BalancePending})
	if err != nil {
		return err
	}
	txData, err := json.Marshal(w.TxData)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO wallets (address, tx_count, tx_data, last_tx_timestamp, balances, public_key, encrypted_private_key, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(address) DO UPDATE SET
			tx_count=excluded.tx_count, tx_data=excluded.tx_data, last_tx_timestamp=excluded.last_tx_timestamp,
			balances=excluded.balances`,
		w.Address, w.TxCount, string(txData), w.LastTxTimestamp, string(bal), w.PublicKey, w.EncryptedPrivateKey, w.CreatedAt,
	)
	return err
}

func (s *Store) loadWallets() (map[string]*Wallet, error) {
	rows, err := s.db.Query(
		`SELECT address, tx_count, tx_data, last_tx_timestamp, balances, public_key, encrypted_private_key, created_at FROM wallets`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	wallets := make(map[string]*Wallet)
	for rows.Next() {
		w := &Wallet{}
		var txData, bal string
		if err := rows.Scan(&w.Address, &w.TxCount, &txData, &w.LastTxTimestamp, &bal, &w.PublicKey, &w.EncryptedPrivateKey, &w.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(txData), &w.TxData); err != nil {
			return nil, err
		}
		var b balances
		if err := json.Unmarshal([]byte(bal), &b); err != nil {
			return nil, err
		}
		w.Balance, w.BalancePending = b.Balance, b.BalancePending
		wallets[w.Address] = w
	}
	return wallets, rows.Err()
}
