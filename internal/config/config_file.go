package config

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config with TOML-friendly field types.
type FileConfig struct {
	Transport    string   `toml:"transport"`
	Listen       string   `toml:"listen"`
	Peer         string   `toml:"peer"`
	ReadBatch    int      `toml:"read_batch"`
	SignalListen string   `toml:"signal_listen"`
	SignalURL    string   `toml:"signal_url"`
	PIN          string   `toml:"pin"`
	HostAddr     string   `toml:"host_addr"`
	VirtualAddr  string   `toml:"virtual_addr"`
	ICEPort      int      `toml:"ice_port"`
	PublicIPs    []string `toml:"public_ips"`
	STUNServers  []string `toml:"stun_servers"`

	NonBlocking *bool  `toml:"non_blocking"`
	RecvTimeout string `toml:"recv_timeout"`
	SendTimeout string `toml:"send_timeout"`
	MaxReady    int    `toml:"max_ready"`
	MaxRetries  int    `toml:"max_retries"`
	GapTimeout  string `toml:"gap_timeout"`
	MaxPending  int    `toml:"max_pending"`

	Engine     string `toml:"engine"`
	Progname   string `toml:"progname"`
	ChangeGame *bool  `toml:"change_game"`

	LogLevel      string `toml:"log_level"`
	StatsInterval string `toml:"stats_interval"`
}

// LoadFileConfig reads and parses a TOML config file.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.netshim/config.toml, or "" if there is no home
// directory.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".netshim", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies fc to cfg, skipping flags that were explicitly set.
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	var transport, engine string
	s.setString("transport", fc.Transport, &transport)
	if transport != "" {
		cfg.Transport = Transport(transport)
	}
	s.setString("listen", fc.Listen, &cfg.Listen)
	s.setString("peer", fc.Peer, &cfg.Peer)
	s.setInt("read-batch", fc.ReadBatch, &cfg.ReadBatch)
	s.setString("signal-listen", fc.SignalListen, &cfg.SignalListen)
	s.setString("signal-url", fc.SignalURL, &cfg.SignalURL)
	s.setString("pin", fc.PIN, &cfg.PIN)
	s.setString("host-addr", fc.HostAddr, &cfg.HostAddr)
	s.setString("virtual-addr", fc.VirtualAddr, &cfg.VirtualAddr)
	s.setInt("ice-port", fc.ICEPort, &cfg.ICEPort)
	s.setStrings("public-ip", fc.PublicIPs, &cfg.PublicIPs)
	s.setStrings("stun", fc.STUNServers, &cfg.STUNServers)

	s.setBool("non-blocking", fc.NonBlocking, &cfg.NonBlocking)
	if err := s.setDuration("recv-timeout", fc.RecvTimeout, &cfg.RecvTimeout); err != nil {
		return err
	}
	if err := s.setDuration("send-timeout", fc.SendTimeout, &cfg.SendTimeout); err != nil {
		return err
	}
	if err := s.setDuration("gap-timeout", fc.GapTimeout, &cfg.GapTimeout); err != nil {
		return err
	}
	s.setInt("max-ready", fc.MaxReady, &cfg.MaxReady)
	s.setInt("max-retries", fc.MaxRetries, &cfg.MaxRetries)
	s.setInt("max-pending", fc.MaxPending, &cfg.MaxPending)

	s.setString("engine", fc.Engine, &engine)
	if engine != "" {
		cfg.Engine = EngineMode(engine)
	}
	s.setString("progname", fc.Progname, &cfg.Progname)
	s.setBool("change-game", fc.ChangeGame, &cfg.ChangeGame)

	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	if err := s.setDuration("stats-interval", fc.StatsInterval, &cfg.StatsInterval); err != nil {
		return err
	}

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
