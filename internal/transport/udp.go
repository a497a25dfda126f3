package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/1ureka/netshim/internal/sockaddr"
	"github.com/1ureka/netshim/internal/util"
)

const (
	maxUDPPayload    = 65507
	defaultReadBatch = 8
)

// batchReader is satisfied by both ipv4.PacketConn and ipv6.PacketConn.
// On Linux ReadBatch is one recvmmsg call; elsewhere it reads one message.
type batchReader interface {
	ReadBatch(ms []ipv4.Message, flags int) (int, error)
}

// UDPOptions configures ListenUDP.
type UDPOptions struct {
	// ReadBatch is how many datagrams one read syscall may return.
	ReadBatch int
	// Peer, when set, is the only address WriteFrame will accept.
	Peer sockaddr.Addr
}

// UDP carries one frame per datagram over a single bound socket.
type UDP struct {
	conn   *net.UDPConn
	reader batchReader
	local  sockaddr.Addr
	peer   sockaddr.Addr

	handler atomic.Pointer[FrameHandler]

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// ListenUDP binds addr and starts the read loop. The loop stops when ctx is
// cancelled or Close is called.
func ListenUDP(ctx context.Context, addr string, opts UDPOptions) (*UDP, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	if opts.ReadBatch <= 0 {
		opts.ReadBatch = defaultReadBatch
	}

	bound := conn.LocalAddr().(*net.UDPAddr)
	var reader batchReader
	if bound.IP.To4() != nil {
		reader = ipv4.NewPacketConn(conn)
	} else {
		reader = ipv6.NewPacketConn(conn)
	}

	uCtx, uCancel := context.WithCancel(ctx)
	u := &UDP{
		conn:   conn,
		reader: reader,
		local:  sockaddr.FromUDPAddr(bound),
		peer:   opts.Peer,
		ctx:    uCtx,
		cancel: uCancel,
	}

	u.wg.Add(2)
	go u.readLoop(opts.ReadBatch)
	go func() {
		defer u.wg.Done()
		<-uCtx.Done()
		conn.Close()
	}()

	util.LogInfo("UDP transport listening on %s", u.local)
	return u, nil
}

func (u *UDP) WriteFrame(ctx context.Context, frame []byte, dst sockaddr.Addr) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if u.ctx.Err() != nil {
		return ErrClosed
	}
	if len(frame) > maxUDPPayload {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(frame))
	}
	if !u.peer.IsZero() && dst != u.peer {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, dst)
	}

	ap, err := dst.AddrPort()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnknownPeer, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := u.conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
	}

	_, err = u.conn.WriteToUDPAddrPort(frame, ap)
	return err
}

func (u *UDP) OnFrame(fn FrameHandler) {
	if fn == nil {
		u.handler.Store(nil)
		return
	}
	u.handler.Store(&fn)
}

func (u *UDP) LocalAddr() sockaddr.Addr { return u.local }

func (u *UDP) Done() <-chan struct{} { return u.ctx.Done() }

func (u *UDP) Close() error {
	u.closeOnce.Do(func() {
		u.cancel()
		u.wg.Wait()
	})
	return nil
}

func (u *UDP) readLoop(batch int) {
	defer u.wg.Done()
	defer u.cancel()

	msgs := make([]ipv4.Message, batch)
	for i := range msgs {
		msgs[i].Buffers = [][]byte{make([]byte, maxUDPPayload)}
	}

	for {
		n, err := u.reader.ReadBatch(msgs, 0)
		if err != nil {
			if u.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			if IsTemporary(err) {
				continue
			}
			util.LogError("UDP read failed: %v", err)
			return
		}

		fn := u.handler.Load()
		for _, m := range msgs[:n] {
			if fn == nil {
				continue
			}
			src, ok := m.Addr.(*net.UDPAddr)
			if !ok {
				continue
			}
			frame := make([]byte, m.N)
			copy(frame, m.Buffers[0][:m.N])
			(*fn)(frame, sockaddr.FromUDPAddr(src))
		}
	}
}
