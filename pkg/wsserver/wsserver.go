// Package wsserver implements the WebSocket front door described in
// spec.md §4.14/§6.1: one text-framed bidirectional channel per
// client, a {username, password} handshake as the first frame, and
// every subsequent frame dispatched as a command line through
// pkg/command.Processor. Grounded on the teacher's pkg/api.Server
// (listener lifecycle, graceful Stop) generalized from a TLS gRPC
// listener to a plain upgraded HTTP listener, since the wire protocol
// itself has no teacher precedent to keep.
package wsserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/mgindb/pkg/command"
	"github.com/cuemby/mgindb/pkg/config"
	"github.com/cuemby/mgindb/pkg/metrics"
	"github.com/cuemby/mgindb/pkg/pubsub"
	"github.com/cuemby/mgindb/pkg/types"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	closeServerShutdown = websocket.CloseGoingAway
	closeAuthFailure    = websocket.ClosePolicyViolation

	welcomeMessage = "MginDB server connected... Welcome!"
	authFailedMsg  = "Authentication failed: Incorrect username or password."
	shutdownMsg    = "Server shutdown"

	inboundQueueSize  = 64
	outboundQueueSize = 64
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Server upgrades incoming HTTP connections to WebSocket sessions and
// feeds every authenticated frame to a command.Processor.
type Server struct {
	Config    *config.Store
	Processor *command.Processor
	Broker    *pubsub.Broker
	Log       zerolog.Logger

	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]*types.Session
	conns    map[string]*websocket.Conn

	httpServer *http.Server
}

// NewServer wires a Server against the engine's shared Processor and
// Broker, and registers itself as the Processor's session lookup hook
// so SUB/UNSUB can resolve a sid back to a live Session.
func NewServer(cfg *config.Store, proc *command.Processor, broker *pubsub.Broker, logger zerolog.Logger) *Server {
	s := &Server{
		Config:    cfg,
		Processor: proc,
		Broker:    broker,
		Log:       logger,
		upgrader:  websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096, CheckOrigin: func(*http.Request) bool { return true }},
		sessions:  make(map[string]*types.Session),
		conns:     make(map[string]*websocket.Conn),
	}
	proc.Sessions = s.sessionFor
	proc.Stop = s.Shutdown
	return s
}

func (s *Server) sessionFor(sid string) (*types.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sid]
	return sess, ok
}

// Handler returns the HTTP handler that upgrades connections to
// WebSocket sessions, exposed separately from Start so tests can serve
// it from an httptest.Server without binding a real port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleUpgrade)
	return mux
}

// Start listens on addr and serves upgraded WebSocket connections at
// "/", until the context is cancelled or ListenAndServe fails.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.Log.Info().Str("addr", addr).Msg("wsserver listening")
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.Shutdown()
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// Shutdown closes every live session with the shutdown close code and
// stops accepting new connections. It is the Processor.Stop hook
// target for the SERVERSTOP verb.
func (s *Server) Shutdown() {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		closeMsg := websocket.FormatCloseMessage(closeServerShutdown, shutdownMsg)
		_ = c.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
		_ = c.Close()
	}

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(ctx)
	}
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Error().Err(err).Msg("websocket upgrade")
		return
	}
	s.serve(conn)
}

// serve drives one connection's whole lifecycle: the auth handshake,
// then the read/dispatch loop, then cleanup, per spec.md §4.14.
func (s *Server) serve(conn *websocket.Conn) {
	defer conn.Close()

	sess, ok := s.authenticate(conn)
	if !ok {
		return
	}

	s.register(sess, conn)
	defer s.unregister(sess, conn)

	done := make(chan struct{})
	go s.writeLoop(conn, sess, done)
	defer close(done)

	s.readLoop(conn, sess)
}

func (s *Server) authenticate(conn *websocket.Conn) (*types.Session, bool) {
	_, frame, err := conn.ReadMessage()
	if err != nil {
		return nil, false
	}

	var creds credentials
	if err := json.Unmarshal(frame, &creds); err != nil {
		s.rejectAuth(conn)
		return nil, false
	}

	wantUser := s.Config.Get("USERNAME")
	wantPass := s.Config.Get("PASSWORD")
	if wantUser != "" || wantPass != "" {
		if creds.Username != wantUser || creds.Password != wantPass {
			s.rejectAuth(conn)
			return nil, false
		}
	}

	sid := uuid.New().String()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(welcomeMessage+" sid:"+sid)); err != nil {
		return nil, false
	}
	return types.NewSession(sid, outboundQueueSize), true
}

func (s *Server) rejectAuth(conn *websocket.Conn) {
	_ = conn.WriteMessage(websocket.TextMessage, []byte(authFailedMsg))
	closeMsg := websocket.FormatCloseMessage(closeAuthFailure, authFailedMsg)
	_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
}

func (s *Server) register(sess *types.Session, conn *websocket.Conn) {
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.conns[sess.ID] = conn
	s.mu.Unlock()
	metrics.SessionsTotal.Inc()
}

func (s *Server) unregister(sess *types.Session, conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.sessions, sess.ID)
	delete(s.conns, sess.ID)
	s.mu.Unlock()
	metrics.SessionsTotal.Dec()
	if s.Broker != nil {
		s.Broker.RemoveSession(sess)
	}
}

// writeLoop drains sess.Send into the connection until done fires or
// the channel closes.
func (s *Server) writeLoop(conn *websocket.Conn, sess *types.Session, done <-chan struct{}) {
	for {
		select {
		case payload, ok := <-sess.Send:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// readLoop enqueues inbound frames on a bounded channel and dispatches
// them to the Processor one at a time, so a burst of commands cannot
// outrun command execution without blocking the websocket's own read
// pump indefinitely.
func (s *Server) readLoop(conn *websocket.Conn, sess *types.Session) {
	queue := make(chan string, inboundQueueSize)
	go func() {
		for line := range queue {
			result := s.Processor.Execute(line, sess.ID)
			s.respond(conn, result)
		}
	}()
	defer close(queue)

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		line := strings.TrimSpace(string(frame))
		if line == "" {
			continue
		}
		select {
		case queue <- line:
		default:
			s.Log.Warn().Str("sid", sess.ID).Msg("inbound command queue full, dropping frame")
		}
	}
}

// respond writes a handler's return value back to the client as-is;
// handlers that return JSON already encode it as a string, so there
// is nothing further to marshal here.
func (s *Server) respond(conn *websocket.Conn, result string) {
	if err := conn.WriteMessage(websocket.TextMessage, []byte(result)); err != nil {
		return
	}
}
