// Package transport owns the channel that carries encoded batch frames between
// peers. A Transport is the pluggable strategy (UDP socket, WebRTC relay,
// in-memory loopback); Delivery sits on top of it and adds retry, a bounded
// receive inbox and the per-peer lifecycle.
package transport

import (
	"context"
	"errors"
	"net"

	"github.com/1ureka/netshim/internal/sockaddr"
)

var (
	ErrTransportFailure = errors.New("transport: channel persistently unusable")
	ErrPeerClosed       = errors.New("transport: peer closed")
	ErrUnknownPeer      = errors.New("transport: no route to peer")
	ErrClosed           = errors.New("transport: closed")
	ErrFrameTooLarge    = errors.New("transport: frame exceeds transport limit")
)

// FrameHandler receives one raw frame. The slice belongs to the callee.
type FrameHandler func(frame []byte, src sockaddr.Addr)

// Transport moves opaque frames to and from peers identified by sockaddr.Addr.
type Transport interface {
	// WriteFrame sends one frame to dst. Errors for which IsTemporary is true
	// may succeed on a later attempt.
	WriteFrame(ctx context.Context, frame []byte, dst sockaddr.Addr) error

	// OnFrame installs the handler called for every inbound frame. It is
	// called from transport goroutines and must not block.
	OnFrame(fn FrameHandler)

	// LocalAddr is the address peers see this side as.
	LocalAddr() sockaddr.Addr

	// Done is closed once the transport can no longer carry frames.
	Done() <-chan struct{}

	Close() error
}

// PeerNotifier is implemented by transports that know when a peer leaves.
type PeerNotifier interface {
	OnPeerGone(fn func(addr sockaddr.Addr))
}

// TemporaryError marks an error as transient.
type TemporaryError struct {
	Err error
}

func (e *TemporaryError) Error() string   { return e.Err.Error() }
func (e *TemporaryError) Unwrap() error   { return e.Err }
func (e *TemporaryError) Temporary() bool { return true }

// Temporary wraps err so that IsTemporary reports true for it.
func Temporary(err error) error {
	if err == nil {
		return nil
	}
	return &TemporaryError{Err: err}
}

// IsTemporary reports whether a WriteFrame error is worth retrying.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var te interface{ Temporary() bool }
	if errors.As(err, &te) && te.Temporary() {
		return true
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}

	return isTemporaryErrno(err)
}
