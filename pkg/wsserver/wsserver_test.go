package wsserver

import (
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/cuemby/mgindb/pkg/cache"
	"github.com/cuemby/mgindb/pkg/command"
	"github.com/cuemby/mgindb/pkg/config"
	"github.com/cuemby/mgindb/pkg/document"
	"github.com/cuemby/mgindb/pkg/index"
	"github.com/cuemby/mgindb/pkg/pubsub"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	cfg, err := config.Load(t.TempDir() + "/conf.json")
	require.NoError(t, err)
	broker := pubsub.NewBroker()
	proc := command.NewProcessor(document.NewTree(), document.NewTTLStore(), index.NewEngine(), cache.NewCache(), broker, cfg, nil, nil, zerolog.New(os.Stderr))
	srv := NewServer(cfg, proc, broker, zerolog.New(os.Stderr))
	ts := httptest.NewServer(srv.Handler())
	return srv, ts
}

func dialURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/"
}

func TestAuthenticateSucceedsWithMatchingCredentials(t *testing.T) {
	srv, ts := newTestServer(t)
	defer ts.Close()
	require.NoError(t, srv.Config.Set("USERNAME", "admin"))
	require.NoError(t, srv.Config.Set("PASSWORD", "secret"))

	conn, _, err := websocket.DefaultDialer.Dial(dialURL(ts), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(credentials{Username: "admin", Password: "secret"}))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), "Welcome!")
}

func TestAuthenticateRejectsBadCredentials(t *testing.T) {
	srv, ts := newTestServer(t)
	defer ts.Close()
	require.NoError(t, srv.Config.Set("USERNAME", "admin"))
	require.NoError(t, srv.Config.Set("PASSWORD", "secret"))

	conn, _, err := websocket.DefaultDialer.Dial(dialURL(ts), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(credentials{Username: "admin", Password: "wrong"}))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), "Authentication failed")

	_, _, err = conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
}

func TestCommandRoundTripAfterAuth(t *testing.T) {
	srv, ts := newTestServer(t)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(dialURL(ts), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(credentials{}))
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
}

func TestDisconnectRemovesSessionFromBroker(t *testing.T) {
	srv, ts := newTestServer(t)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(dialURL(ts), nil)
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(credentials{}))
	_, _, err = conn.ReadMessage()
	require.NoError(t, err)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("SUB users")))
	_, _, err = conn.ReadMessage()
	require.NoError(t, err)

	conn.Close()
	require.Eventually(t, func() bool {
		return len(srv.Broker.List()) == 0
	}, time.Second, 10*time.Millisecond)
}
