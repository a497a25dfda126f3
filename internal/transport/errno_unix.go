//go:build unix

package transport

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Kernel conditions that clear on their own. ECONNREFUSED is the ICMP port
// unreachable of a peer that has not bound its socket yet.
var temporaryErrnos = []unix.Errno{
	unix.EAGAIN,
	unix.EINTR,
	unix.ENOBUFS,
	unix.ENOMEM,
	unix.ECONNREFUSED,
}

func isTemporaryErrno(err error) bool {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return false
	}
	for _, e := range temporaryErrnos {
		if errno == e {
			return true
		}
	}
	return false
}
