//go:build !xash || !cgo

package engine

// Native reports that this binary carries no engine.
func Native() (Engine, error) {
	return nil, ErrUnavailable
}
