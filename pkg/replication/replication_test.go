package replication

import (
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/cuemby/mgindb/pkg/config"
	"github.com/cuemby/mgindb/pkg/document"
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
	return NewManager(cfg, document.NewTree(), zerolog.New(os.Stderr))
}

func TestIsReplicationMasterRequiresBothFlags(t *testing.T) {
	m := newTestManager(t)
	assert.False(t, m.IsReplicationMaster())

	require.NoError(t, m.Config.Set("REPLICATION", "1"))
	assert.False(t, m.IsReplicationMaster())

	require.NoError(t, m.Config.Set("REPLICATION_TYPE", "MASTER"))
	assert.True(t, m.IsReplicationMaster())
	assert.False(t, m.IsReplicationSlave())
}

func TestServeReplicateRejectsNonMaster(t *testing.T) {
	m := newTestManager(t)
	out := m.ServeReplicate("sid-1")
	assert.Contains(t, out, "ERROR")
}

func TestServeReplicateReturnsCurrentSnapshot(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Config.Set("REPLICATION", "1"))
	require.NoError(t, m.Config.Set("REPLICATION_TYPE", "MASTER"))
	m.Tree.Set("users:1:name", types.Str("Alice"))
	m.DumpIndices = func() (json.RawMessage, error) { return json.RawMessage(`[{"path":"users:name"}]`), nil }

	out := m.ServeReplicate("sid-1")
	var snap snapshot
	require.NoError(t, json.Unmarshal([]byte(out), &snap))
	assert.Contains(t, string(snap.Data), "Alice")
	assert.Contains(t, string(snap.Indices), "users:name")
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

func TestBroadcastToSlavesSendsAuthThenCommand(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Config.Set("REPLICATION_SLAVES", "slave-1,slave-2"))

	var dialed []string
	var conns []*fakeConn
	m.Dial = func(uri string) (wsConn, error) {
		dialed = append(dialed, uri)
		c := &fakeConn{reads: [][]byte{[]byte("MginDB server connected... Welcome!")}}
		conns = append(conns, c)
		return c, nil
	}

	m.BroadcastToSlaves("SET users:1:name Alice")
	assert.ElementsMatch(t, []string{"slave-1", "slave-2"}, dialed)
	require.Len(t, conns, 2)
	for _, c := range conns {
		require.Len(t, c.writes, 2)
		assert.Equal(t, "SET users:1:name Alice", string(c.writes[1]))
	}
}

func TestRequestFullSyncAppliesReceivedSnapshot(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Config.Set("REPLICATION_MASTER", "master-1"))

	dataJSON, _ := json.Marshal(types.Str("snapshot-from-master"))
	payload, _ := json.Marshal(snapshot{Data: dataJSON, Indices: json.RawMessage(`[]`)})
	conn := &fakeConn{reads: [][]byte{
		[]byte("MginDB server connected... Welcome!"),
		payload,
	}}
	m.Dial = func(uri string) (wsConn, error) {
		assert.Equal(t, "master-1", uri)
		return conn, nil
	}

	var restored types.Value
	m.RestoreData = func(v types.Value) error { restored = v; return nil }
	m.RestoreIndices = func(json.RawMessage) error { return nil }

	out := m.RequestFullSync()
	assert.Equal(t, "Replication data received and processed.", out)
	assert.Equal(t, "snapshot-from-master", restored.S)
	require.Len(t, conn.writes, 2)
	assert.Equal(t, "REPLICATE", string(conn.writes[1]))
}

func TestRequestFullSyncFailsAuthentication(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Config.Set("REPLICATION_MASTER", "master-1"))
	conn := &fakeConn{reads: [][]byte{[]byte("Authentication failed: Incorrect username or password.")}}
	m.Dial = func(string) (wsConn, error) { return conn, nil }

	out := m.RequestFullSync()
	assert.Contains(t, out, "Authentication failed")
}
