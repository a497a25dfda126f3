//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd && !dragonfly

package shim

// MsgDontWait mirrors Linux MSG_DONTWAIT where the platform has none.
const MsgDontWait = 0x40
