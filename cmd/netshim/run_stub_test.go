//go:build !xash || !cgo

package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/1ureka/netshim/internal/engine"
)

func TestRunWithoutEngine(t *testing.T) {
	cfg, _, err := execute(t, "run", "--listen", "127.0.0.1:0", "--engine", "host", "--progname", "cstrike")
	require.ErrorIs(t, err, engine.ErrUnavailable)
	require.Equal(t, "cstrike", cfg.Progname)
}
