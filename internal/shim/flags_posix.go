//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package shim

import "golang.org/x/sys/unix"

// MsgDontWait is the platform's MSG_DONTWAIT, the per-call non-blocking flag.
const MsgDontWait = unix.MSG_DONTWAIT
