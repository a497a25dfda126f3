//go:build !unix

package transport

func isTemporaryErrno(error) bool { return false }
