// Package config holds the runtime configuration and its loading from file,
// environment and command-line flags.
package config

import (
	"fmt"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Transport selects how frames leave the process.
type Transport string

const (
	TransportUDP       Transport = "udp"
	TransportRTCHost   Transport = "rtc-host"
	TransportRTCClient Transport = "rtc-client"
)

// EngineMode selects the engine entry point.
type EngineMode string

const (
	EngineLauncher EngineMode = "launcher"
	EngineHost     EngineMode = "host"
)

// Config holds every tunable of a netshim process.
type Config struct {
	Transport Transport

	// UDP
	Listen    string // local bind address
	Peer      string // optional: the only address sends may go to
	ReadBatch int

	// WebRTC
	SignalListen string // rtc-host: WebSocket signaling listen address
	SignalURL    string // rtc-client: host's signaling URL
	PIN          string // rtc-host: generated when empty
	HostAddr     string // the rtc host's address as the engine sees it
	VirtualAddr  string // this side's address; derived when empty
	ICEPort      int
	PublicIPs    []string
	STUNServers  []string

	// Shim
	NonBlocking bool
	RecvTimeout time.Duration
	SendTimeout time.Duration
	MaxReady    int
	MaxRetries  int
	GapTimeout  time.Duration
	MaxPending  int

	// Engine
	Engine     EngineMode
	Progname   string
	ChangeGame bool

	LogLevel      string
	StatsInterval time.Duration
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Transport:     TransportUDP,
		Listen:        "0.0.0.0:27015",
		ReadBatch:     8,
		SignalListen:  ":0",
		HostAddr:      "10.0.0.1:27015",
		NonBlocking:   true,
		SendTimeout:   time.Second,
		MaxReady:      1024,
		MaxRetries:    3,
		GapTimeout:    50 * time.Millisecond,
		MaxPending:    64,
		Engine:        EngineLauncher,
		Progname:      "valve",
		LogLevel:      "info",
		StatsInterval: 10 * time.Second,
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportUDP:
		if c.Listen == "" {
			return fmt.Errorf("listen is required for the udp transport")
		}
		if c.Peer != "" {
			if _, err := netip.ParseAddrPort(c.Peer); err != nil {
				return fmt.Errorf("invalid peer %q: %w", c.Peer, err)
			}
		}

	case TransportRTCHost:
		if c.SignalListen == "" {
			return fmt.Errorf("signal-listen is required for the rtc-host transport")
		}

	case TransportRTCClient:
		if c.SignalURL == "" {
			return fmt.Errorf("signal-url is required for the rtc-client transport")
		}
		u, err := NormalizeWSURL(c.SignalURL)
		if err != nil {
			return err
		}
		c.SignalURL = u

	default:
		return fmt.Errorf("invalid transport %q: must be udp, rtc-host or rtc-client", c.Transport)
	}

	if c.Transport != TransportUDP {
		host, err := parseVirtual("host-addr", c.HostAddr)
		if err != nil {
			return err
		}
		if c.VirtualAddr == "" {
			c.VirtualAddr = c.HostAddr
			if c.Transport == TransportRTCClient {
				c.VirtualAddr = netip.AddrPortFrom(netip.AddrFrom4([4]byte{10, 0, 0, 2}), host.Port()).String()
			}
		}
		local, err := parseVirtual("virtual-addr", c.VirtualAddr)
		if err != nil {
			return err
		}
		if c.Transport == TransportRTCClient && local == host {
			return fmt.Errorf("virtual-addr must differ from host-addr on the client")
		}
		if c.ICEPort < 0 || c.ICEPort > 65535 {
			return fmt.Errorf("invalid ice-port %d", c.ICEPort)
		}
	}

	switch c.Engine {
	case EngineLauncher, EngineHost:
	default:
		return fmt.Errorf("invalid engine mode %q: must be launcher or host", c.Engine)
	}
	if c.Engine == EngineHost && c.Progname == "" {
		return fmt.Errorf("progname is required in host mode")
	}

	switch strings.ToLower(c.LogLevel) {
	case "trace", "debug", "info", "warn", "warning", "error":
	case "":
		c.LogLevel = "info"
	default:
		return fmt.Errorf("invalid log-level %q", c.LogLevel)
	}

	if c.GapTimeout <= 0 {
		return fmt.Errorf("gap timeout must be positive")
	}
	if c.SendTimeout <= 0 {
		return fmt.Errorf("send timeout must be positive")
	}
	if c.RecvTimeout < 0 {
		return fmt.Errorf("recv timeout must not be negative")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative")
	}
	if c.MaxReady <= 0 || c.MaxPending <= 0 {
		return fmt.Errorf("queue bounds must be positive")
	}

	return nil
}

func parseVirtual(flag, s string) (netip.AddrPort, error) {
	ap, err := netip.ParseAddrPort(s)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("invalid %s %q: %w", flag, s, err)
	}
	if !ap.Addr().Is4() {
		return netip.AddrPort{}, fmt.Errorf("%s must be IPv4: %s", flag, s)
	}
	return ap, nil
}

// NormalizeWSURL validates a signaling URL and points it at the /ws endpoint.
// A bare host gets wss.
func NormalizeWSURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "wss://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid WebSocket URL: %s", raw)
	}

	scheme := "wss"
	if u.Scheme == "ws" || u.Scheme == "wss" {
		scheme = u.Scheme
	}
	out := url.URL{Scheme: scheme, Host: u.Host, Path: "/ws", RawQuery: u.RawQuery}
	return out.String(), nil
}

// configSetter applies values while respecting flag precedence. It only
// applies a value if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setStrings(flag string, value []string, dst *[]string) {
	if len(value) == 0 || s.changed[flag] {
		return
	}
	*dst = append([]string(nil), value...)
}

// setList splits a comma-separated value.
func (s *configSetter) setList(flag, value string, dst *[]string) {
	var items []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			items = append(items, v)
		}
	}
	s.setStrings(flag, items, dst)
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses an environment value. Non-positive values are
// ignored, as in setInt.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString accepts "true" and "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
