package engine

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().String()
}

func TestNewLoadsDefaultsOnEmptyDataDir(t *testing.T) {
	eng, err := New(t.TempDir())
	require.NoError(t, err)
	defer eng.Blockchain.Close()

	assert.Equal(t, "0.0.0.0", eng.Config.Get("HOST"))
	assert.NotNil(t, eng.Processor)
	assert.NotNil(t, eng.WS)
}

func TestStartServesCommandsOverWebsocket(t *testing.T) {
	dir := t.TempDir()
	eng, err := New(dir)
	require.NoError(t, err)

	addr := freePort(t)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- eng.Start(ctx, addr) }()

	var conn *websocket.Conn
	require.Eventually(t, func() bool {
		c, _, dialErr := websocket.DefaultDialer.Dial("ws://"+addr+"/", nil)
		if dialErr != nil {
			return false
		}
		conn = c
		return true
	}, 2*time.Second, 20*time.Millisecond)
	require.NotNil(t, conn)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{}))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(msg), "Welcome!")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("SET users:1:name Alice")))
	_, reply, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "OK", string(reply))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("KEYS users")))
	_, reply, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(reply), "1")

	cancel()
	require.NoError(t, <-errCh)
	eng.Stop()
}

func TestStopPersistsDataAcrossRestart(t *testing.T) {
	dir := t.TempDir()

	eng, err := New(dir)
	require.NoError(t, err)
	require.Equal(t, "OK", eng.Processor.Execute("SET orders:1:total 42", ""))
	eng.Stop()

	reopened, err := New(dir)
	require.NoError(t, err)
	defer reopened.Blockchain.Close()

	out := reopened.Processor.Execute("KEYS orders", "")
	assert.True(t, strings.Contains(out, "1"))
}

func TestReplaceIndicesRoundTripsThroughBackupHooks(t *testing.T) {
	dir := t.TempDir()
	eng, err := New(dir)
	require.NoError(t, err)
	defer eng.Blockchain.Close()

	require.Equal(t, "Index created successfully.", eng.Processor.Execute("INDICES CREATE users:name string", ""))
	require.Equal(t, "OK", eng.Processor.Execute("SET users:1:name Alice", ""))

	raw, err := eng.Backup.LoadIndices()
	require.NoError(t, err)
	require.NoError(t, eng.Backup.RestoreIndices(raw))

	assert.NotNil(t, eng.Index)
}
