// Package sockaddr carries engine socket addresses as opaque values.
//
// The batching and sequencing layers only compare and copy an Addr; they never
// look inside it. Transports that talk to a real network (UDP) convert it to and
// from net.UDPAddr with the helpers in this package.
package sockaddr

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/netip"
)

var (
	ErrUnsupportedFamily = errors.New("sockaddr: unsupported address family")
	ErrShortAddr         = errors.New("sockaddr: address too short")
)

// Addr is an immutable, comparable copy of a raw sockaddr as the engine passed it.
// The zero value means "no address".
type Addr struct {
	raw string
}

// FromBytes copies b into a new Addr.
func FromBytes(b []byte) Addr {
	return Addr{raw: string(b)}
}

// Bytes returns a fresh copy of the raw address bytes.
func (a Addr) Bytes() []byte {
	return []byte(a.raw)
}

// Len returns the raw address length (the socklen the engine expects back).
func (a Addr) Len() int { return len(a.raw) }

// IsZero reports whether a carries no address.
func (a Addr) IsZero() bool { return a.raw == "" }

// Key returns a value usable as a map key for per-peer state.
func (a Addr) Key() string { return a.raw }

// String renders IPv4/IPv6 addresses as host:port and anything else as hex.
func (a Addr) String() string {
	if a.IsZero() {
		return "<nil>"
	}
	if ap, err := a.AddrPort(); err == nil {
		return ap.String()
	}
	return "raw:" + hex.EncodeToString([]byte(a.raw))
}

// FromAddrPort builds a Linux-layout sockaddr_in or sockaddr_in6.
func FromAddrPort(ap netip.AddrPort) Addr {
	ip := ap.Addr()
	if ip.Is4() || ip.Is4In6() {
		b := make([]byte, sizeofSockaddrInet4)
		binary.NativeEndian.PutUint16(b[0:2], afInet)
		binary.BigEndian.PutUint16(b[2:4], ap.Port())
		v4 := ip.Unmap().As4()
		copy(b[4:8], v4[:])
		return Addr{raw: string(b)}
	}

	b := make([]byte, sizeofSockaddrInet6)
	binary.NativeEndian.PutUint16(b[0:2], afInet6)
	binary.BigEndian.PutUint16(b[2:4], ap.Port())
	v6 := ip.As16()
	copy(b[8:24], v6[:])
	return Addr{raw: string(b)}
}

// Parse builds an Addr from a host:port literal such as "10.0.0.2:27015".
func Parse(s string) (Addr, error) {
	ap, err := netip.ParseAddrPort(s)
	if err != nil {
		return Addr{}, err
	}
	return FromAddrPort(ap), nil
}

// FromUDPAddr converts a resolved UDP address.
func FromUDPAddr(u *net.UDPAddr) Addr {
	if u == nil {
		return Addr{}
	}
	return FromAddrPort(u.AddrPort())
}

// AddrPort decodes an AF_INET or AF_INET6 address.
func (a Addr) AddrPort() (netip.AddrPort, error) {
	b := []byte(a.raw)
	if len(b) < 2 {
		return netip.AddrPort{}, ErrShortAddr
	}

	switch binary.NativeEndian.Uint16(b[0:2]) {
	case afInet:
		if len(b) < 8 {
			return netip.AddrPort{}, ErrShortAddr
		}
		ip := netip.AddrFrom4([4]byte(b[4:8]))
		return netip.AddrPortFrom(ip, binary.BigEndian.Uint16(b[2:4])), nil

	case afInet6:
		if len(b) < 24 {
			return netip.AddrPort{}, ErrShortAddr
		}
		ip := netip.AddrFrom16([16]byte(b[8:24]))
		return netip.AddrPortFrom(ip, binary.BigEndian.Uint16(b[2:4])), nil
	}

	return netip.AddrPort{}, fmt.Errorf("%w: %d", ErrUnsupportedFamily, binary.NativeEndian.Uint16(b[0:2]))
}

// UDPAddr decodes a into a net.UDPAddr.
func (a Addr) UDPAddr() (*net.UDPAddr, error) {
	ap, err := a.AddrPort()
	if err != nil {
		return nil, err
	}
	return net.UDPAddrFromAddrPort(ap), nil
}
