package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/1ureka/netshim/internal/sockaddr"
)

// Loopback is one end of an in-memory transport pair. Frames written on one
// end are handed to the other end's handler synchronously, on the writer's
// goroutine.
type Loopback struct {
	local sockaddr.Addr
	peer  *Loopback

	handler atomic.Pointer[FrameHandler]

	done      chan struct{}
	closeOnce sync.Once
}

// NewLoopbackPair links two endpoints addressed as a and b.
func NewLoopbackPair(a, b sockaddr.Addr) (*Loopback, *Loopback) {
	la := &Loopback{local: a, done: make(chan struct{})}
	lb := &Loopback{local: b, done: make(chan struct{})}
	la.peer, lb.peer = lb, la
	return la, lb
}

func (l *Loopback) WriteFrame(ctx context.Context, frame []byte, dst sockaddr.Addr) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-l.done:
		return ErrClosed
	default:
	}

	if dst != l.peer.local {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, dst)
	}

	select {
	case <-l.peer.done:
		return fmt.Errorf("%w: %s", ErrPeerClosed, dst)
	default:
	}

	if fn := l.peer.handler.Load(); fn != nil {
		(*fn)(append([]byte(nil), frame...), l.local)
	}
	return nil
}

func (l *Loopback) OnFrame(fn FrameHandler) {
	if fn == nil {
		l.handler.Store(nil)
		return
	}
	l.handler.Store(&fn)
}

func (l *Loopback) LocalAddr() sockaddr.Addr { return l.local }

func (l *Loopback) Done() <-chan struct{} { return l.done }

func (l *Loopback) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	return nil
}
