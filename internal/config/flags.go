package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// BindFlags registers cfg's fields on fs, using the current values as
// defaults. The flag names are the keys ApplyFileConfig and ApplyEnvConfig
// check for precedence.
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.Var(newEnumValue((*string)(&cfg.Transport), "udp", "rtc-host", "rtc-client"), "transport", "frame transport: udp, rtc-host or rtc-client")
	fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "UDP bind address")
	fs.StringVar(&cfg.Peer, "peer", cfg.Peer, "UDP peer address; when set, sends to any other address fail")
	fs.IntVar(&cfg.ReadBatch, "read-batch", cfg.ReadBatch, "datagrams read per syscall")

	fs.StringVar(&cfg.SignalListen, "signal-listen", cfg.SignalListen, "rtc-host: WebSocket signaling listen address")
	fs.StringVar(&cfg.SignalURL, "signal-url", cfg.SignalURL, "rtc-client: host signaling URL")
	fs.StringVar(&cfg.PIN, "pin", cfg.PIN, "rtc-host: signaling PIN (generated when empty)")
	fs.StringVar(&cfg.HostAddr, "host-addr", cfg.HostAddr, "rtc: the host's address as seen by the engine")
	fs.StringVar(&cfg.VirtualAddr, "virtual-addr", cfg.VirtualAddr, "rtc: this side's address as seen by the engine (derived when empty)")
	fs.IntVar(&cfg.ICEPort, "ice-port", cfg.ICEPort, "rtc: serve all ICE traffic from this UDP port (0 = ephemeral ports)")
	fs.StringSliceVar(&cfg.PublicIPs, "public-ip", cfg.PublicIPs, "rtc: public IPs to advertise as host candidates")
	fs.StringSliceVar(&cfg.STUNServers, "stun", cfg.STUNServers, "rtc: STUN server URLs")

	fs.BoolVar(&cfg.NonBlocking, "non-blocking", cfg.NonBlocking, "recvfrom never waits")
	fs.DurationVar(&cfg.RecvTimeout, "recv-timeout", cfg.RecvTimeout, "blocking recvfrom timeout (0 = wait forever)")
	fs.DurationVar(&cfg.SendTimeout, "send-timeout", cfg.SendTimeout, "sendto timeout including retries")
	fs.IntVar(&cfg.MaxReady, "max-ready", cfg.MaxReady, "datagrams held for recvfrom before dropping the oldest")
	fs.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "transmit retries on transient errors")
	fs.DurationVar(&cfg.GapTimeout, "gap-timeout", cfg.GapTimeout, "how long a sequence gap is waited on")
	fs.IntVar(&cfg.MaxPending, "max-pending", cfg.MaxPending, "out-of-order frames buffered per source")

	fs.Var(newEnumValue((*string)(&cfg.Engine), "launcher", "host"), "engine", "engine entry point: launcher or host")
	fs.StringVar(&cfg.Progname, "progname", cfg.Progname, "host mode: game directory")
	fs.BoolVar(&cfg.ChangeGame, "change-game", cfg.ChangeGame, "host mode: allow the engine to switch games")

	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: trace, debug, info, warn, error")
	fs.DurationVar(&cfg.StatsInterval, "stats-interval", cfg.StatsInterval, "traffic report interval (0 = off)")
}

// ChangedFlags returns the names of the flags set on the command line.
func ChangedFlags(fs *pflag.FlagSet) map[string]bool {
	changed := map[string]bool{}
	fs.Visit(func(f *pflag.Flag) { changed[f.Name] = true })
	return changed
}

// Load resolves cfg in order of precedence: explicitly set flags, then
// NETSHIM_* variables, then the TOML file at path, then the values cfg
// already holds. A missing file is skipped. The result is validated.
func Load(cfg *Config, fs *pflag.FlagSet, path string) error {
	changed := ChangedFlags(fs)

	if path != "" && FileExists(path) {
		fc, err := LoadFileConfig(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := ApplyFileConfig(cfg, fc, changed); err != nil {
			return err
		}
	}

	if err := ApplyEnvConfig(cfg, changed); err != nil {
		return err
	}

	return cfg.Validate()
}

// enumValue is a string flag restricted to a fixed set.
type enumValue struct {
	dst     *string
	allowed []string
}

func newEnumValue(dst *string, allowed ...string) *enumValue {
	return &enumValue{dst: dst, allowed: allowed}
}

func (e *enumValue) String() string { return *e.dst }

func (e *enumValue) Set(v string) error {
	for _, a := range e.allowed {
		if v == a {
			*e.dst = v
			return nil
		}
	}
	return fmt.Errorf("must be one of %v", e.allowed)
}

func (e *enumValue) Type() string { return "string" }
