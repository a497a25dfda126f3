// Package engine binds the native game engine: its two entry points and the
// socket callbacks it calls back into. The binding itself needs cgo and the
// engine library and is only compiled with the xash build tag; everything
// else in this package is plain Go.
package engine

import (
	"errors"
	"syscall"

	"github.com/1ureka/netshim/internal/registry"
	"github.com/1ureka/netshim/internal/sockaddr"
)

var ErrUnavailable = errors.New("engine: binary built without the native engine (rebuild with -tags xash)")

// Engine is the external engine. Exactly one of the entry points is called per
// process, after the callbacks are registered and sealed.
type Engine interface {
	LauncherMain(args []string) int
	HostMain(args []string, progname string, changeGame bool) int
}

// dispatchRecv runs the registered receive callback. addr is the caller's
// sockaddr buffer; the full source address length is returned even when addr
// was too small and the copy got truncated, as recvfrom(2) does.
func dispatchRecv(r *registry.Registry, fd int, buf []byte, flags int, addr []byte) (n, addrLen int, errno syscall.Errno) {
	fn := r.RecvFrom()
	if fn == nil {
		return -1, 0, syscall.ENOTCONN
	}

	n, src, errno := fn(fd, buf, flags)
	if n < 0 {
		return -1, 0, errno
	}
	return n, fillAddr(addr, src), 0
}

// dispatchSend runs the registered send callback. to is the raw destination
// as the engine passed it.
func dispatchSend(r *registry.Registry, fd int, packets [][]byte, sizes []int, seq int, to []byte) (int, syscall.Errno) {
	fn := r.SendTo()
	if fn == nil {
		return -1, syscall.ENOTCONN
	}
	if len(to) == 0 {
		return -1, syscall.EDESTADDRREQ
	}

	n, errno := fn(fd, packets, sizes, seq, destAddr(to))
	if n < 0 {
		return -1, errno
	}
	return n, 0
}

func fillAddr(dst []byte, a sockaddr.Addr) int {
	if a.IsZero() {
		return 0
	}
	copy(dst, a.Bytes())
	return a.Len()
}

// destAddr trims an inet address passed in a sockaddr_storage to its real
// length, so padding bytes never end up in the per-destination key.
func destAddr(raw []byte) sockaddr.Addr {
	a := sockaddr.FromBytes(raw)
	if ap, err := a.AddrPort(); err == nil {
		return sockaddr.FromAddrPort(ap)
	}
	return a
}
