package signaling

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/1ureka/netshim/internal/transport/rtc"
	"github.com/1ureka/netshim/internal/util"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server is the host-side signaling endpoint. Every client that connects to
// /ws with the right PIN gets its own Peer, which is bound into the hub once
// its DataChannel opens.
type Server struct {
	api *rtc.API
	hub *rtc.Hub
	pin string

	listener net.Listener
	srv      *http.Server
	clients  atomic.Uint64

	peerCtx context.Context // lifetime of accepted peers
	ctx     context.Context // lifetime of pending handshakes
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a signaling server. An empty pin accepts every client.
func NewServer(ctx context.Context, api *rtc.API, hub *rtc.Hub, pin string) *Server {
	sCtx, sCancel := context.WithCancel(ctx)
	return &Server{
		api:     api,
		hub:     hub,
		pin:     pin,
		peerCtx: ctx,
		ctx:     sCtx,
		cancel:  sCancel,
	}
}

// Start begins listening on addr (":0" picks a random port) and returns the
// bound port.
func (s *Server) Start(addr string) (int, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("failed to start signaling server: %w", err)
	}
	s.listener = listener
	port := listener.Addr().(*net.TCPAddr).Port

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	s.srv = &http.Server{Handler: mux}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.LogError("signaling server stopped: %v", err)
		}
	}()

	return port, nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.pin != "" && r.URL.Query().Get("pin") != s.pin {
		http.Error(w, "Invalid PIN", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// The counter keeps a reconnecting client from landing on the address
	// of its previous, closed session.
	key := fmt.Sprintf("%s#%d", r.RemoteAddr, s.clients.Add(1))
	util.LogInfo("signaling client %s connected", r.RemoteAddr)

	peer, err := rtc.NewPeer(s.peerCtx, s.api)
	if err != nil {
		util.LogError("failed to create peer for %s: %v", r.RemoteAddr, err)
		return
	}

	if err := exchange(s.ctx, conn, peer, true); err != nil {
		util.LogWarning("handshake with %s failed: %v", r.RemoteAddr, err)
		peer.Close()
		return
	}

	if _, err := s.hub.Add(peer, key); err != nil {
		util.LogError("failed to bind peer %s: %v", r.RemoteAddr, err)
		peer.Close()
	}
}

// Close stops accepting clients and aborts pending handshakes. Already bound
// peers stay in the hub.
func (s *Server) Close() error {
	s.cancel()
	var err error
	if s.srv != nil {
		err = s.srv.Close()
	}
	s.wg.Wait()
	return err
}

// GeneratePIN returns a random numeric PIN of the specified length.
func GeneratePIN(length int) string {
	digits := make([]byte, length)
	for i := range digits {
		n, _ := rand.Int(rand.Reader, big.NewInt(10))
		digits[i] = byte('0') + byte(n.Int64())
	}
	return string(digits)
}
