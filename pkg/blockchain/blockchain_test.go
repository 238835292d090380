package blockchain

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/cuemby/mgindb/pkg/config"
	"github.com/cuemby/mgindb/pkg/pubsub"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg, err := config.Load(t.TempDir() + "/conf.json")
	require.NoError(t, err)
	require.NoError(t, cfg.Set("BLOCKCHAIN", "1"))
	require.NoError(t, cfg.Set("BLOCKCHAIN_TX_PER_BLOCK", "2"))

	m, err := NewManager(cfg, pubsub.NewBroker(), t.TempDir(), zerolog.New(os.Stderr))
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestNewManagerCreatesGenesisBlock(t *testing.T) {
	m := newTestManager(t)
	assert.Len(t, m.chain, 1)
	assert.Equal(t, int64(0), m.chain[0].Index)
	assert.Equal(t, "0", m.chain[0].PreviousHash)
	assert.NotEmpty(t, m.chain[0].Data[0].Receiver)
	assert.Equal(t, int64(1), m.chainLength)
}

func TestAddTransactionRejectsWhenBlockchainDisabled(t *testing.T) {
	cfg, err := config.Load(t.TempDir() + "/conf.json")
	require.NoError(t, err)
	m, err := NewManager(cfg, pubsub.NewBroker(), t.TempDir(), zerolog.New(os.Stderr))
	require.NoError(t, err)
	defer m.Close()

	_, err = m.AddTransaction("", "someone", 1, 0, "payload", "MGDB", "TRANSFER", "")
	assert.Error(t, err)
}

func TestAddTransactionEncryptsDataAndQueues(t *testing.T) {
	m := newTestManager(t)

	tx, err := m.AddTransaction("sender-addr", "receiver-addr", 5, 0.1, "hello", "MGDB", "TRANSFER", "")
	require.NoError(t, err)
	assert.NotEqual(t, "hello", tx.Data)
	assert.NotEmpty(t, tx.Txid)
	assert.Len(t, m.pending, 1)
}

func TestAddBlockAssemblesOnceThresholdReached(t *testing.T) {
	m := newTestManager(t)

	tx1, err := m.AddTransaction("", "addr-1", 1, 0, "", "MGDB", "TRANSFER", "")
	require.NoError(t, err)
	tx2, err := m.AddTransaction("", "addr-2", 1, 0, "", "MGDB", "TRANSFER", "")
	require.NoError(t, err)

	for _, tx := range []Transaction{tx1, tx2} {
		payload, _ := json.Marshal(tx)
		_, err := m.AddBlock(string(payload))
		require.NoError(t, err)
	}

	assert.Len(t, m.chain, 2) // genesis + the assembled block
	assert.Empty(t, m.pending)
	assert.Empty(t, m.accumulated)
}

func TestMineBlockSatisfiesDifficultyPrefix(t *testing.T) {
	block := Block{Index: 1, PreviousHash: "abc"}
	mined := mineBlock(block, 1)
	assert.Equal(t, "0", mined.Hash[:1])
}

func TestAdjustDifficultyClampsToRange(t *testing.T) {
	assert.Equal(t, 3, adjustDifficulty(0, 3))
	assert.Equal(t, 1, adjustDifficulty(100, 1))
	assert.GreaterOrEqual(t, adjustDifficulty(1, 2), 1)
}

func TestExecuteNewWalletThenGetWallet(t *testing.T) {
	m := newTestManager(t)

	out := m.Execute("NEW_WALLET", "")
	var created map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	require.NotEmpty(t, created["address"])
	assert.NotContains(t, out, `"private_key":""`)

	got := m.Execute("GET_WALLET", created["address"])
	var wallet Wallet
	require.NoError(t, json.Unmarshal([]byte(got), &wallet))
	assert.Equal(t, created["address"], wallet.Address)
	assert.Equal(t, float64(0), wallet.Balance)
}

func TestExecuteGetWalletMissingAddress(t *testing.T) {
	m := newTestManager(t)
	assert.Equal(t, "Wallet not found", m.Execute("GET_WALLET", "nobody"))
}

func TestExecuteUnknownVerb(t *testing.T) {
	m := newTestManager(t)
	assert.Contains(t, m.Execute("WHATEVER", ""), "ERROR")
}

func TestAddTxHookMatchesProcessorSignature(t *testing.T) {
	m := newTestManager(t)
	m.AddTx("unregistered-sender", "unregistered-receiver", 0, `{"command":"SET"}`)
	assert.Len(t, m.pending, 1)
}
