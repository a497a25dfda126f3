package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/netshim/internal/config"
)

// execute runs the command tree with args against a fresh config. The config
// file points into a temp dir so the user's own file is never read.
func execute(t *testing.T, args ...string) (config.Config, string, error) {
	t.Helper()
	cfg := config.DefaultConfig()
	buf := new(bytes.Buffer)

	root := newRootCmd(context.Background(), &cfg)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(append(args, "--config", filepath.Join(t.TempDir(), "missing.toml")))
	err := root.Execute()
	return cfg, buf.String(), err
}

func TestFlagsBindIntoConfig(t *testing.T) {
	cfg, _, err := execute(t, "probe",
		"--listen", "127.0.0.1:0",
		"--gap-timeout", "75ms",
		"--max-ready", "16",
		"--to", "127.0.0.1:9",
		"--count", "0",
	)
	require.ErrorContains(t, err, "positive count and batch")

	assert.Equal(t, config.TransportUDP, cfg.Transport)
	assert.Equal(t, "127.0.0.1:0", cfg.Listen)
	assert.Equal(t, 75*time.Millisecond, cfg.GapTimeout)
	assert.Equal(t, 16, cfg.MaxReady)
}

func TestInvalidTransportRejected(t *testing.T) {
	_, _, err := execute(t, "echo", "--transport", "carrier-pigeon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transport")
}

func TestInvalidConfigRejectedBeforeRun(t *testing.T) {
	_, _, err := execute(t, "probe", "--listen", "127.0.0.1:0", "--log-level", "loud")
	require.ErrorContains(t, err, `invalid log-level "loud"`)

	_, _, err = execute(t, "probe", "--listen", "127.0.0.1:0", "--gap-timeout", "0s")
	require.ErrorContains(t, err, "gap timeout must be positive")
}

func TestProbeArgumentValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad destination", []string{"--to", "not-an-address"}, ""},
		{"no destination", nil, "missing destination address"},
		{"zero batch", []string{"--to", "127.0.0.1:9", "--batch", "0"}, "positive count and batch"},
		{"negative count", []string{"--to", "127.0.0.1:9", "--count", "-1"}, "positive count and batch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"probe", "--listen", "127.0.0.1:0"}, tt.args...)
			_, _, err := execute(t, args...)
			require.Error(t, err)
			if tt.want != "" {
				assert.Contains(t, err.Error(), tt.want)
			}
		})
	}
}

func TestUnknownFlagRejected(t *testing.T) {
	_, _, err := execute(t, "probe", "--listen", "127.0.0.1:0", "--bogus")
	require.ErrorContains(t, err, "unknown flag")
}
