package blockchain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/mgindb/pkg/config"
	"github.com/cuemby/mgindb/pkg/metrics"
	"github.com/cuemby/mgindb/pkg/persistence"
	"github.com/cuemby/mgindb/pkg/pubsub"
	"github.com/cuemby/mgindb/pkg/security"
	"github.com/rs/zerolog"
)

const (
	minDifficulty   = 1
	maxDifficulty   = 3
	targetBlockTime = 5 * time.Second
)

// Transaction is one transfer awaiting (or now included in) a block,
// per spec.md §3.7. Data carries the sender-encrypted payload, never
// plaintext, once it leaves AddTransaction.
type Transaction struct {
	Sender       string  `json:"sender"`
	Receiver     string  `json:"receiver"`
	Amount       float64 `json:"amount"`
	Symbol       string  `json:"symbol"`
	Data         string  `json:"data"`
	Fee          float64 `json:"fee"`
	Action       string  `json:"action"`
	ContractHash string  `json:"contract_hash,omitempty"`
	Txid         string  `json:"txid"`
	Difficulty   int     `json:"difficulty"`
	Timestamp    int64   `json:"timestamp"`
}

// Block is one mined unit of the chain, per spec.md §6.3.
type Block struct {
	Index          int64         `json:"index"`
	Timestamp      int64         `json:"timestamp"`
	Nonce          int64         `json:"nonce"`
	Difficulty     int           `json:"difficulty"`
	ValidationTime float64       `json:"validation_time"`
	Size           int           `json:"size"`
	PreviousHash   string        `json:"previous_hash"`
	Hash           string        `json:"hash"`
	Checksum       string        `json:"checksum"`
	Data           []Transaction `json:"data"`
	Fee            float64       `json:"fee"`
	Validator      string        `json:"validator"`
}

// Manager implements command.Processor's BlockchainExecute/
// BlockchainAddTx hooks: a pending-transaction pool, PoW block
// assembly, and a wallet ledger. Grounded on
// original_source/mgindb/blockchain_manager.py.
type Manager struct {
	Config *config.Store
	Broker *pubsub.Broker
	Log    zerolog.Logger

	store   *Store
	persist *persistence.Store

	mu           sync.Mutex
	chain        []Block
	wallets      map[string]*Wallet
	pending      []Transaction
	accumulated  []Transaction
	chainLength  int64
	previousHash string
	difficulty   int
	lastBlockAt  time.Time
}

// NewManager opens (or creates) the blockchain database under baseDir
// and loads any existing chain and wallets, creating the genesis
// block on first run.
func NewManager(cfg *config.Store, broker *pubsub.Broker, baseDir string, logger zerolog.Logger) (*Manager, error) {
	store, err := openStore(baseDir)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		Config:       cfg,
		Broker:       broker,
		Log:          logger,
		store:        store,
		persist:      persistence.NewStore(baseDir),
		wallets:      make(map[string]*Wallet),
		difficulty:   cfg.GetInt("BLOCKCHAIN_DIFFICULTY"),
		previousHash: "0",
	}

	pending, err := m.persist.LoadPendingTransactions()
	if err != nil {
		return nil, fmt.Errorf("load pending transactions: %w", err)
	}
	for _, p := range pending {
		m.pending = append(m.pending, fromPendingTransaction(p))
	}
	metrics.PendingTransactionsTotal.Set(float64(len(m.pending)))

	chain, err := store.loadChain()
	if err != nil {
		return nil, fmt.Errorf("load chain: %w", err)
	}
	wallets, err := store.loadWallets()
	if err != nil {
		return nil, fmt.Errorf("load wallets: %w", err)
	}
	m.wallets = wallets
	m.chain = chain

	if len(chain) == 0 {
		if err := m.createGenesisBlock(); err != nil {
			return nil, fmt.Errorf("create genesis block: %w", err)
		}
	} else {
		last := chain[len(chain)-1]
		m.chainLength = int64(len(chain))
		m.previousHash = last.Hash
		m.difficulty = last.Difficulty
	}
	return m, nil
}

// Close flushes the pending transaction pool to disk and releases the
// underlying database handle.
func (m *Manager) Close() error {
	m.mu.Lock()
	err := m.savePendingLocked()
	m.mu.Unlock()
	if err != nil {
		m.Log.Error().Err(err).Msg("save pending transactions")
	}
	return m.store.Close()
}

// savePendingLocked persists the current pending pool, mirroring the
// original's save_pending_transactions call after every add_transaction
// and add_block. Caller holds m.mu.
func (m *Manager) savePendingLocked() error {
	txs := make([]persistence.PendingTransaction, 0, len(m.pending))
	for _, tx := range m.pending {
		txs = append(txs, toPendingTransaction(tx))
	}
	return m.persist.SavePendingTransactions(txs)
}

func toPendingTransaction(tx Transaction) persistence.PendingTransaction {
	return persistence.PendingTransaction{
		Sender:       tx.Sender,
		Receiver:     tx.Receiver,
		Amount:       strconv.FormatFloat(tx.Amount, 'f', -1, 64),
		Symbol:       tx.Symbol,
		Data:         tx.Data,
		Fee:          strconv.FormatFloat(tx.Fee, 'f', -1, 64),
		Action:       tx.Action,
		ContractHash: tx.ContractHash,
		Txid:         tx.Txid,
		Timestamp:    tx.Timestamp,
	}
}

func fromPendingTransaction(p persistence.PendingTransaction) Transaction {
	amount, _ := strconv.ParseFloat(p.Amount, 64)
	fee, _ := strconv.ParseFloat(p.Fee, 64)
	return Transaction{
		Sender:       p.Sender,
		Receiver:     p.Receiver,
		Amount:       amount,
		Symbol:       p.Symbol,
		Data:         p.Data,
		Fee:          fee,
		Action:       p.Action,
		ContractHash: p.ContractHash,
		Txid:         p.Txid,
		Timestamp:    p.Timestamp,
	}
}

func (m *Manager) enabled() bool {
	return m.Config != nil && m.Config.GetBool("BLOCKCHAIN")
}

func (m *Manager) createGenesisBlock() error {
	generated, err := newWallet(nowUnix())
	if err != nil {
		return err
	}
	genesis := generated.Wallet
	if err := m.store.saveWallet(genesis); err != nil {
		return err
	}
	m.wallets[genesis.Address] = genesis

	block := Block{
		Index:        0,
		Timestamp:    nowUnix(),
		Nonce:        0,
		Difficulty:   1,
		PreviousHash: "0",
		Data:         []Transaction{{Receiver: genesis.Address, Data: "Genesis Block"}},
	}
	block.Hash = calculateHash(block)
	block.Checksum = checksumOf(block.Hash)

	if err := m.store.saveBlock(block); err != nil {
		return err
	}
	m.chain = append(m.chain, block)
	m.chainLength = 1
	m.previousHash = block.Hash
	m.difficulty = 1
	m.lastBlockAt = time.Now()
	return nil
}

// calculateHash hashes a block's fields in their fixed struct-declared
// order. The original computes SHA-256 over json.dumps(block,
// sort_keys=True); a Go struct already marshals in a fixed field
// order, which is an equally deterministic canonical form without
// needing a generic key-sorting step.
func calculateHash(b Block) string {
	b.Hash = ""
	payload, _ := json.Marshal(b)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func checksumOf(hash string) string {
	sum := sha256.Sum256([]byte(hash))
	return hex.EncodeToString(sum[:])[:8]
}

func hashTransaction(tx Transaction) string {
	tx.Txid = ""
	payload, _ := json.Marshal(tx)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// mineBlock increments nonce until the hash carries `difficulty`
// leading zero hex digits, per mine_block.
func mineBlock(b Block, difficulty int) Block {
	start := time.Now()
	target := strings.Repeat("0", difficulty)
	b.Difficulty = difficulty
	b.Hash = calculateHash(b)
	for !strings.HasPrefix(b.Hash, target) {
		b.Nonce++
		b.Hash = calculateHash(b)
	}
	b.ValidationTime = time.Since(start).Seconds()
	b.Checksum = checksumOf(b.Hash)
	return b
}

// adjustDifficulty retargets toward a 5-second block time, clamped to
// [1,3], per adjust_difficulty. The Open Question in spec.md §9 over
// whether this narrow a range still makes sense for present-day
// hardware is left as-is — the clamp is preserved rather than widened
// (see DESIGN.md).
func adjustDifficulty(validationTime float64, current int) int {
	target := targetBlockTime.Seconds()
	var next int
	switch {
	case validationTime < target:
		adjustment := int((target - validationTime) * float64(current) / target)
		if adjustment < 1 {
			adjustment = 1
		}
		next = current + adjustment
	case validationTime > target:
		adjustment := int((validationTime - target) * float64(current) / target)
		if adjustment < 1 {
			adjustment = 1
		}
		next = current - adjustment
	default:
		next = current
	}
	if next < minDifficulty {
		next = minDifficulty
	}
	if next > maxDifficulty {
		next = maxDifficulty
	}
	return next
}

// AddTransaction enqueues a transfer into the pending pool, locking
// the sender's spendable balance immediately. Per spec.md §4.15,
// balance is only finalized once the transaction is mined into a
// block (see createAndSaveBlockLocked); BalancePending reflects what the
// wallet may still spend right now.
func (m *Manager) AddTransaction(sender, receiver string, amount, fee float64, data, symbol, action, contractHash string) (Transaction, error) {
	if !m.enabled() {
		return Transaction{}, fmt.Errorf("blockchain feature is not active, use CONFIG SET BLOCKCHAIN 1")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// A sender with no registered wallet (e.g. an audit-trail marker
	// rather than an actual transfer) is allowed through unlocked,
	// matching the original's add_transaction, which performs no
	// balance validation at all. The lock only applies once there is
	// an actual wallet whose BalancePending it would otherwise
	// overdraw.
	if sender != "" {
		if wallet, ok := m.wallets[sender]; ok {
			if wallet.BalancePending < amount+fee {
				return Transaction{}, fmt.Errorf("insufficient balance")
			}
			wallet.BalancePending -= amount + fee
		}
	}

	encryptedData := data
	if sender != "" && data != "" {
		cipher, err := security.NewTxCipher(sender)
		if err != nil {
			return Transaction{}, err
		}
		encryptedData, err = cipher.Encrypt([]byte(data))
		if err != nil {
			return Transaction{}, err
		}
	}

	tx := Transaction{
		Sender:       sender,
		Receiver:     receiver,
		Amount:       amount,
		Symbol:       symbol,
		Data:         encryptedData,
		Fee:          fee,
		Action:       action,
		ContractHash: contractHash,
		Difficulty:   m.difficulty,
		Timestamp:    nowUnix(),
	}
	tx.Txid = hashTransaction(tx)
	m.pending = append(m.pending, tx)
	metrics.PendingTransactionsTotal.Set(float64(len(m.pending)))
	if err := m.savePendingLocked(); err != nil {
		m.Log.Error().Err(err).Msg("save pending transactions")
	}

	if m.Broker != nil {
		payload, _ := json.Marshal(tx)
		m.Broker.NotifyNodes("TRANSACTION", string(payload), "", "", pubsub.NodeFull)
	}

	return tx, nil
}

// AddBlock accepts a JSON-encoded transaction (the BLOCK verb's
// argument) into the accumulation buffer, removes it from the pending
// pool, and triggers block assembly once BLOCKCHAIN_TX_PER_BLOCK
// transactions have accumulated, per add_block.
func (m *Manager) AddBlock(blockData string) (Transaction, error) {
	var tx Transaction
	if err := json.Unmarshal([]byte(blockData), &tx); err != nil {
		return Transaction{}, fmt.Errorf("invalid transaction payload: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	filtered := m.pending[:0:0]
	for _, p := range m.pending {
		if p.Txid != tx.Txid {
			filtered = append(filtered, p)
		}
	}
	m.pending = filtered
	metrics.PendingTransactionsTotal.Set(float64(len(m.pending)))
	if err := m.savePendingLocked(); err != nil {
		m.Log.Error().Err(err).Msg("save pending transactions")
	}

	m.accumulated = append(m.accumulated, tx)

	txPerBlock := m.Config.GetInt("BLOCKCHAIN_TX_PER_BLOCK")
	if txPerBlock <= 0 {
		txPerBlock = 10
	}
	if len(m.accumulated) >= txPerBlock {
		if err := m.createAndSaveBlockLocked(); err != nil {
			return tx, err
		}
	}
	return tx, nil
}

// Tick is the scheduler-driven interval trigger: it forces a block
// even if BLOCKCHAIN_TX_PER_BLOCK has not been reached, once
// BLOCKCHAIN_BLOCK_INTERVAL seconds have passed since the last block
// and there is at least one accumulated transaction. The original has
// no equivalent timer path (its only trigger is the per-transaction
// count check in add_block). These two are the only block triggers:
// the accumulated transactions' size in bytes is never checked, so
// there is no BLOCK_MAX_SIZE limit.
func (m *Manager) Tick() {
	m.mu.Lock()
	defer m.mu.Unlock()

	interval := time.Duration(m.Config.GetInt("BLOCKCHAIN_BLOCK_INTERVAL")) * time.Second
	if interval <= 0 || len(m.accumulated) == 0 {
		return
	}
	if time.Since(m.lastBlockAt) < interval {
		return
	}
	if err := m.createAndSaveBlockLocked(); err != nil {
		m.Log.Error().Err(err).Msg("interval block assembly")
	}
}

// createAndSaveBlockLocked assembles, mines and persists a block from
// the accumulated transactions, then finalizes wallet balances and
// retargets difficulty. Caller holds m.mu.
func (m *Manager) createAndSaveBlockLocked() error {
	txs := m.accumulated
	m.accumulated = nil

	var totalFee float64
	for _, tx := range txs {
		totalFee += tx.Fee
	}
	size, _ := json.Marshal(txs)

	block := Block{
		Index:        m.chainLength,
		Timestamp:    nowUnix(),
		Difficulty:   m.difficulty,
		PreviousHash: m.previousHash,
		Data:         txs,
		Fee:          totalFee,
		Size:         len(size),
		Validator:    m.Config.Get("BLOCKCHAIN_GENESIS_ADDRESS"),
	}

	timer := metrics.NewTimer()
	mined := mineBlock(block, m.difficulty)
	timer.ObserveDuration(metrics.BlockMiningDuration)

	if err := m.store.saveBlock(mined); err != nil {
		return err
	}
	m.chain = append(m.chain, mined)
	m.chainLength++
	m.previousHash = mined.Hash
	m.lastBlockAt = time.Now()
	m.difficulty = adjustDifficulty(mined.ValidationTime, m.difficulty)
	metrics.BlocksMinedTotal.Inc()

	reward, _ := strconv.ParseFloat(m.Config.Get("BLOCKCHAIN_VALIDATOR_REWARD"), 64)
	if mined.Validator != "" {
		if w, ok := m.wallets[mined.Validator]; ok {
			w.Balance += reward
			w.BalancePending += reward
		}
	}

	for _, tx := range mined.Data {
		sender := m.wallets[tx.Sender]
		receiver := m.wallets[tx.Receiver]

		if sender != nil {
			sender.Balance -= tx.Amount + tx.Fee
			sender.TxCount++
			sender.TxData = append(sender.TxData, tx.Txid)
			sender.LastTxTimestamp = mined.Timestamp
			_ = m.store.saveWallet(sender)
		}
		if receiver != nil && receiver != sender {
			receiver.Balance += tx.Amount
			receiver.BalancePending += tx.Amount
			receiver.TxCount++
			receiver.TxData = append(receiver.TxData, tx.Txid)
			receiver.LastTxTimestamp = mined.Timestamp
			_ = m.store.saveWallet(receiver)
		}
	}

	return nil
}

// AddTx matches command.Processor's BlockchainAddTx hook shape exactly
// — it is what cmdSet's audit-trail wiring calls for a SET command
// tagged with wallet markers. Fee and symbol come from config rather
// than from the caller, since the hook signature carries no room for
// them.
func (m *Manager) AddTx(sender, receiver string, amount float64, data string) {
	fee, _ := strconv.ParseFloat(m.Config.Get("BLOCKCHAIN_FEE"), 64)
	symbol := m.Config.Get("BLOCKCHAIN_SYMBOL")
	if _, err := m.AddTransaction(sender, receiver, amount, fee, data, symbol, "AUDIT", ""); err != nil {
		m.Log.Warn().Err(err).Str("sender", sender).Msg("blockchain audit transaction")
	}
}

// Execute dispatches a blockchain-family verb, the BlockchainExecute
// hook target for command.Processor.
func (m *Manager) Execute(verb, args string) string {
	switch verb {
	case "BLOCKCHAIN":
		return m.cmdGetBlockchain()
	case "NEW_WALLET":
		return m.cmdNewWallet()
	case "GET_WALLET":
		return m.cmdGetWallet(args)
	case "BLOCK":
		return m.cmdBlock(args)
	default:
		return fmt.Sprintf("ERROR: unknown blockchain verb %q", verb)
	}
}

func (m *Manager) cmdGetBlockchain() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out, err := json.Marshal(m.chain)
	if err != nil {
		return fmt.Sprintf("ERROR: %s", err)
	}
	return string(out)
}

func (m *Manager) cmdNewWallet() string {
	if !m.enabled() {
		return "Blockchain feature is not active. Use CONFIG SET BLOCKCHAIN 1"
	}
	generated, err := newWallet(nowUnix())
	if err != nil {
		return fmt.Sprintf("ERROR: %s", err)
	}

	m.mu.Lock()
	m.wallets[generated.Wallet.Address] = generated.Wallet
	err = m.store.saveWallet(generated.Wallet)
	m.mu.Unlock()
	if err != nil {
		return fmt.Sprintf("ERROR: %s", err)
	}

	out, _ := json.Marshal(map[string]string{
		"address":     generated.Wallet.Address,
		"public_key":  generated.Wallet.PublicKey,
		"private_key": generated.PrivateKey,
	})
	return string(out)
}

func (m *Manager) cmdGetWallet(address string) string {
	address = strings.TrimSpace(address)
	if address == "" {
		return "No valid address found in args"
	}

	m.mu.Lock()
	wallet, ok := m.wallets[address]
	m.mu.Unlock()
	if !ok {
		return "Wallet not found"
	}

	out, _ := json.Marshal(wallet)
	return string(out)
}

func (m *Manager) cmdBlock(args string) string {
	tx, err := m.AddBlock(args)
	if err != nil {
		return "Error adding transaction"
	}
	out, _ := json.Marshal(map[string]Transaction{"confirmation": tx})
	return string(out)
}
