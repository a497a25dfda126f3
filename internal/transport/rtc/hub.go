package rtc

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/1ureka/netshim/internal/sockaddr"
	"github.com/1ureka/netshim/internal/transport"
	"github.com/1ureka/netshim/internal/util"
)

var ErrAddrInUse = errors.New("rtc: virtual address already bound")

// Hub multiplexes many Peers behind transport.Transport. Each peer is bound
// to a virtual IPv4 socket address that the engine sees as the peer's source
// and uses as destination.
type Hub struct {
	local sockaddr.Addr
	port  uint16

	handler atomic.Pointer[transport.FrameHandler]

	mu    sync.RWMutex
	peers map[string]*Peer
	gone  []func(sockaddr.Addr)

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

var _ transport.Transport = (*Hub)(nil)
var _ transport.PeerNotifier = (*Hub)(nil)

// NewHub creates a hub whose own virtual address is local. Peers added with
// Add get addresses in 10.0.0.0/8 on local's port.
func NewHub(ctx context.Context, local netip.AddrPort) *Hub {
	hCtx, hCancel := context.WithCancel(ctx)
	return &Hub{
		local:  sockaddr.FromAddrPort(local),
		port:   local.Port(),
		peers:  make(map[string]*Peer),
		ctx:    hCtx,
		cancel: hCancel,
	}
}

// VirtualAddr derives a stable 10.x.y.z address from key. The low octet is
// never 0 or 255.
func VirtualAddr(key string, port uint16) netip.AddrPort {
	h := fnv.New32a()
	h.Write([]byte(key))
	sum := h.Sum32()

	ip := [4]byte{10, byte(sum >> 16), byte(sum >> 8), byte(sum)}
	if ip[3] == 0 || ip[3] == 255 {
		ip[3] = 1 + byte(sum>>24)%254
	}
	return netip.AddrPortFrom(netip.AddrFrom4(ip), port)
}

// Add binds p to an address derived from key, probing further keys on
// collision, and returns it.
func (h *Hub) Add(p *Peer, key string) (sockaddr.Addr, error) {
	for i := 0; i < 16; i++ {
		k := key
		if i > 0 {
			k = fmt.Sprintf("%s#%d", key, i)
		}
		addr := sockaddr.FromAddrPort(VirtualAddr(k, h.port))
		err := h.AddAt(p, addr)
		if err == nil {
			return addr, nil
		}
		if !errors.Is(err, ErrAddrInUse) {
			return sockaddr.Addr{}, err
		}
	}
	return sockaddr.Addr{}, fmt.Errorf("%w: no free address for %q", ErrAddrInUse, key)
}

// AddAt binds p to addr. The peer leaves the hub when it closes.
func (h *Hub) AddAt(p *Peer, addr sockaddr.Addr) error {
	if h.ctx.Err() != nil {
		return transport.ErrClosed
	}

	h.mu.Lock()
	if _, ok := h.peers[addr.Key()]; ok || addr == h.local {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAddrInUse, addr)
	}
	h.peers[addr.Key()] = p
	h.mu.Unlock()

	p.OnMessage(func(data []byte) {
		if fn := h.handler.Load(); fn != nil {
			(*fn)(data, addr)
		}
	})

	go func() {
		select {
		case <-p.Done():
		case <-h.ctx.Done():
			p.Close()
		}
		h.remove(addr, p)
	}()

	util.LogInfo("peer bound to %s", addr)
	return nil
}

// Peers returns how many peers are bound.
func (h *Hub) Peers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

func (h *Hub) remove(addr sockaddr.Addr, p *Peer) {
	h.mu.Lock()
	if h.peers[addr.Key()] != p {
		h.mu.Unlock()
		return
	}
	delete(h.peers, addr.Key())
	gone := append([]func(sockaddr.Addr){}, h.gone...)
	h.mu.Unlock()

	util.LogInfo("peer %s left", addr)
	for _, fn := range gone {
		fn(addr)
	}
}

func (h *Hub) WriteFrame(ctx context.Context, frame []byte, dst sockaddr.Addr) error {
	if h.ctx.Err() != nil {
		return transport.ErrClosed
	}

	h.mu.RLock()
	p, ok := h.peers[dst.Key()]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", transport.ErrUnknownPeer, dst)
	}

	select {
	case <-p.Ready():
	default:
		return transport.Temporary(fmt.Errorf("DataChannel to %s not open yet", dst))
	}

	if err := p.Send(ctx, frame); err != nil {
		if errors.Is(err, ErrPeerClosed) {
			return fmt.Errorf("%w: %s", transport.ErrPeerClosed, dst)
		}
		return err
	}
	return nil
}

func (h *Hub) OnFrame(fn transport.FrameHandler) {
	if fn == nil {
		h.handler.Store(nil)
		return
	}
	h.handler.Store(&fn)
}

func (h *Hub) OnPeerGone(fn func(addr sockaddr.Addr)) {
	h.mu.Lock()
	h.gone = append(h.gone, fn)
	h.mu.Unlock()
}

func (h *Hub) LocalAddr() sockaddr.Addr { return h.local }

func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

// Close closes every bound peer.
func (h *Hub) Close() error {
	h.closeOnce.Do(func() {
		h.cancel()

		h.mu.RLock()
		peers := make([]*Peer, 0, len(h.peers))
		for _, p := range h.peers {
			peers = append(peers, p)
		}
		h.mu.RUnlock()

		for _, p := range peers {
			p.Close()
		}
	})
	return nil
}
