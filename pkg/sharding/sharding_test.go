package sharding

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/cuemby/mgindb/pkg/backup"
	"github.com/cuemby/mgindb/pkg/config"
	"github.com/cuemby/mgindb/pkg/document"
	"github.com/cuemby/mgindb/pkg/index"
	"github.com/cuemby/mgindb/pkg/types"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg, err := config.Load(t.TempDir() + "/conf.json")
	require.NoError(t, err)
	return NewManager(cfg, document.NewTree(), index.NewEngine(), backup.NewManager(t.TempDir()), zerolog.New(os.Stderr))
}

func TestShardForIsDeterministic(t *testing.T) {
	shards := []string{"a", "b", "c"}
	first := ShardFor("users:1", shards)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ShardFor("users:1", shards))
	}
}

func TestCheckShardingLocalWhenDisabled(t *testing.T) {
	m := newTestManager(t)
	assert.Equal(t, "LOCAL", m.CheckSharding("SET", "SET users:1:name Alice", "users:1"))
}

func TestCheckShardingLocalWhenKeyOwnedBySelf(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Config.Set("HOST", "node-a"))
	require.NoError(t, m.Config.Set("SHARDING", "1"))
	require.NoError(t, m.Config.Set("SHARDING_TYPE", "MASTER"))
	require.NoError(t, m.Config.Set("SHARDS", "node-a"))

	assert.Equal(t, "LOCAL", m.CheckSharding("SET", "SET users:1:name Alice", "users:1"))
}

type fakeConn struct {
	reads  [][]byte
	idx    int
	writes [][]byte
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.writes = append(f.writes, data)
	return nil
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	if f.idx >= len(f.reads) {
		return 0, nil, errors.New("fakeConn: no more scripted reads")
	}
	d := f.reads[f.idx]
	f.idx++
	return websocket.TextMessage, d, nil
}

func (f *fakeConn) Close() error { return nil }

func TestCheckShardingProxiesToRemoteShard(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Config.Set("HOST", "node-a"))
	require.NoError(t, m.Config.Set("PORT", "6380"))
	require.NoError(t, m.Config.Set("SHARDING", "1"))
	require.NoError(t, m.Config.Set("SHARDING_TYPE", "MASTER"))
	require.NoError(t, m.Config.Set("SHARDS", "node-a,node-b"))

	owner := ShardFor("orders:1", []string{"node-a", "node-b"})
	require.NotEqual(t, "node-a", owner, "pick a key whose owner is the remote peer")

	conn := &fakeConn{reads: [][]byte{
		[]byte("MginDB server connected... Welcome!"),
		[]byte("OK"),
	}}
	m.Dial = func(uri string) (wsConn, error) {
		assert.Equal(t, owner+":6380", uri)
		return conn, nil
	}

	out := m.CheckSharding("SET", "SET orders:1:status shipped", "orders:1")
	assert.Equal(t, "OK", out)
	require.Len(t, conn.writes, 2)
	assert.Contains(t, string(conn.writes[0]), "username")
	assert.Equal(t, "SET orders:1:status shipped", string(conn.writes[1]))
}

func TestCheckShardingReturnsErrorWhenPeerUnreachable(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Config.Set("HOST", "node-a"))
	require.NoError(t, m.Config.Set("SHARDING", "1"))
	require.NoError(t, m.Config.Set("SHARDING_TYPE", "MASTER"))
	require.NoError(t, m.Config.Set("SHARDS", "node-a,node-b"))
	m.Dial = func(string) (wsConn, error) { return nil, errors.New("connection refused") }

	out := m.CheckSharding("SET", "SET orders:1:status shipped", "orders:1")
	assert.Equal(t, "ERROR", out)
}

func TestReshardNonMasterDumpsAndClearsLocalState(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Config.Set("SHARDING", "1"))
	require.NoError(t, m.Config.Set("SHARDING_TYPE", "SLAVE"))
	m.Tree.Set("users:1:name", types.Str("Alice"))

	out := m.Reshard()
	assert.Contains(t, out, `"data"`)
	_, ok := m.Tree.Get("users")
	assert.False(t, ok, "dump-and-clear empties local state once the master has the snapshot")
}

func TestReshardMasterRollsBackWhenPeerUnresponsive(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Config.Set("HOST", "node-a"))
	require.NoError(t, m.Config.Set("SHARDING", "1"))
	require.NoError(t, m.Config.Set("SHARDING_TYPE", "MASTER"))
	require.NoError(t, m.Config.Set("SHARDS", "node-a,node-b"))
	m.Dial = func(string) (wsConn, error) { return nil, errors.New("connection refused") }

	out := m.Reshard()
	assert.Contains(t, out, "not all shards responded")
}

func TestReshardMasterRedistributesSingleShardLocally(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Config.Set("HOST", "node-a"))
	require.NoError(t, m.Config.Set("SHARDING", "1"))
	require.NoError(t, m.Config.Set("SHARDING_TYPE", "MASTER"))
	require.NoError(t, m.Config.Set("SHARDS", "node-a"))
	m.Tree.Set("users:1:name", types.Str("Alice"))
	require.NoError(t, m.Index.Create("users:name", index.KindString))

	var applied []string
	m.ApplyLocal = func(command string) string {
		applied = append(applied, command)
		return "OK"
	}

	out := m.Reshard()
	assert.Equal(t, "Resharding completed successfully.", out)
	require.NotEmpty(t, applied)

	var sawData, sawIndex bool
	for _, c := range applied {
		if strings.HasPrefix(c, "SET users:1 ") {
			sawData = true
			assert.Contains(t, c, `"name":"Alice"`)
		}
		if c == "INDICES CREATE users:name string" {
			sawIndex = true
		}
	}
	assert.True(t, sawData, "expected a SET command redistributing the merged users:1 entity")
	assert.True(t, sawIndex, "expected the index definition to be recreated on the owning shard")
}
