package bridge

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/pastelink/internal/config"
	"github.com/1ureka/pastelink/internal/negotiate"
	"github.com/1ureka/pastelink/internal/util"
)

const (
	pinLength    = 6
	writeTimeout = 2 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Controller is the input side of the orchestrator.
// *negotiate.Orchestrator implements it.
type Controller interface {
	SelectRole(ctx context.Context, role config.Role) error
	Paste(ctx context.Context, blob string) error
	Send(ctx context.Context, text string) error
	Snapshot() negotiate.Snapshot
}

var _ Controller = (*negotiate.Orchestrator)(nil)

// Server is the local WebSocket bridge. It also acts as a StatusReporter
// and MessageSink, forwarding everything to the connected page; frames are
// dropped while no page is connected.
type Server struct {
	pin      string
	listener net.Listener
	httpSrv  *http.Server
	connCh   chan *websocket.Conn
	claimed  atomic.Bool

	mu   sync.Mutex // guards conn and serializes writes
	conn *websocket.Conn
}

// NewServer creates a bridge with the configured PIN, or a random one.
func NewServer(cfg config.BridgeConfig) *Server {
	pin := cfg.PIN
	if pin == "" {
		pin = generatePIN(pinLength)
	}
	return &Server{
		pin:    pin,
		connCh: make(chan *websocket.Conn, 1),
	}
}

// PIN returns the PIN a page must present as ?pin=.
func (s *Server) PIN() string { return s.pin }

// Start begins listening on addr. Returns the bound address.
func (s *Server) Start(addr string) (string, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to start bridge: %w", err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	s.httpSrv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		_ = s.httpSrv.Serve(listener)
	}()

	return listener.Addr().String(), nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	pin := r.URL.Query().Get("pin")
	if subtle.ConstantTimeCompare([]byte(pin), []byte(s.pin)) != 1 {
		http.Error(w, "Invalid PIN", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	// Only accept the first client.
	if !s.claimed.CompareAndSwap(false, true) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "already connected"))
		conn.Close()
		return
	}
	s.connCh <- conn
}

// Serve waits for the page to connect, then forwards its frames to ctrl
// until the page disconnects or ctx is cancelled. The PIN slot stays taken
// after the page leaves.
func (s *Server) Serve(ctx context.Context, ctrl Controller) error {
	var conn *websocket.Conn
	select {
	case conn = <-s.connCh:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	util.LogSuccess("bridge client connected from %s", conn.RemoteAddr())

	stop := make(chan struct{})
	defer func() {
		close(stop)
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		conn.Close()
	}()
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	s.sendSnapshot(ctrl.Snapshot())
	return s.watch(ctx, conn, ctrl)
}

// Close shuts down the listener and any connected page.
func (s *Server) Close() {
	if s.httpSrv != nil {
		s.httpSrv.Close()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
	}
}

// send writes one frame to the page, guarded by a mutex.
func (s *Server) send(frame OutFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteJSON(frame); err != nil {
		util.LogDebug("bridge write failed: %v", err)
	}
}

// generatePIN returns a random numeric PIN of the specified length.
func generatePIN(length int) string {
	digits := make([]byte, length)
	for i := range digits {
		n, _ := rand.Int(rand.Reader, big.NewInt(10))
		digits[i] = byte('0') + byte(n.Int64())
	}
	return string(digits)
}

// isClosed reports whether err just means the page went away.
func isClosed(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) ||
		errors.Is(err, net.ErrClosed)
}
