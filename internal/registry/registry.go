// Package registry holds the process-wide pair of socket callbacks the engine
// calls into.
//
// Lifecycle: the host registers both callbacks, calls Seal, then starts the
// engine loop. The engine reads the callbacks from its own threads without
// locking. Registration after Seal fails with ErrSealed; the native contract
// leaves that case undefined. Reset clears everything on shutdown.
package registry

import (
	"errors"
	"sync/atomic"
	"syscall"

	"github.com/1ureka/netshim/internal/sockaddr"
)

var ErrSealed = errors.New("registry: callbacks are sealed while the engine runs")

// RecvFromFunc fills buf with one datagram and returns its length and source,
// or -1 and an errno.
type RecvFromFunc func(fd int, buf []byte, flags int) (int, sockaddr.Addr, syscall.Errno)

// SendToFunc sends one batch to a destination and returns the byte count, or
// -1 and an errno.
type SendToFunc func(fd int, packets [][]byte, sizes []int, seq int, to sockaddr.Addr) (int, syscall.Errno)

// Registry holds at most one callback per direction.
type Registry struct {
	recv   atomic.Pointer[RecvFromFunc]
	send   atomic.Pointer[SendToFunc]
	sealed atomic.Bool
}

// Default is the registry the native boundary dispatches through.
var Default = &Registry{}

// RegisterRecvFromCallback replaces the receive callback. nil unregisters.
func (r *Registry) RegisterRecvFromCallback(fn RecvFromFunc) error {
	if r.sealed.Load() {
		return ErrSealed
	}
	if fn == nil {
		r.recv.Store(nil)
		return nil
	}
	r.recv.Store(&fn)
	return nil
}

// RegisterSendToCallback replaces the send callback. nil unregisters.
func (r *Registry) RegisterSendToCallback(fn SendToFunc) error {
	if r.sealed.Load() {
		return ErrSealed
	}
	if fn == nil {
		r.send.Store(nil)
		return nil
	}
	r.send.Store(&fn)
	return nil
}

// RecvFrom returns the active receive callback, or nil.
func (r *Registry) RecvFrom() RecvFromFunc {
	if fn := r.recv.Load(); fn != nil {
		return *fn
	}
	return nil
}

// SendTo returns the active send callback, or nil.
func (r *Registry) SendTo() SendToFunc {
	if fn := r.send.Load(); fn != nil {
		return *fn
	}
	return nil
}

// Seal freezes the current registration. Call it right before the engine
// loop starts.
func (r *Registry) Seal() { r.sealed.Store(true) }

// Sealed reports whether Seal was called since the last Reset.
func (r *Registry) Sealed() bool { return r.sealed.Load() }

// Reset unregisters both callbacks and lifts the seal.
func (r *Registry) Reset() {
	r.recv.Store(nil)
	r.send.Store(nil)
	r.sealed.Store(false)
}
