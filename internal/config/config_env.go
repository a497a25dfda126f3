package config

import "os"

// ApplyEnvConfig applies NETSHIM_* environment variables to cfg, skipping
// flags that were explicitly set. It fails on a malformed value.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	var transport, engine string
	s.setString("transport", os.Getenv("NETSHIM_TRANSPORT"), &transport)
	if transport != "" {
		cfg.Transport = Transport(transport)
	}
	s.setString("listen", os.Getenv("NETSHIM_LISTEN"), &cfg.Listen)
	s.setString("peer", os.Getenv("NETSHIM_PEER"), &cfg.Peer)
	if err := s.setIntFromString("read-batch", os.Getenv("NETSHIM_READ_BATCH"), &cfg.ReadBatch); err != nil {
		return err
	}
	s.setString("signal-listen", os.Getenv("NETSHIM_SIGNAL_LISTEN"), &cfg.SignalListen)
	s.setString("signal-url", os.Getenv("NETSHIM_SIGNAL_URL"), &cfg.SignalURL)
	s.setString("pin", os.Getenv("NETSHIM_PIN"), &cfg.PIN)
	s.setString("host-addr", os.Getenv("NETSHIM_HOST_ADDR"), &cfg.HostAddr)
	s.setString("virtual-addr", os.Getenv("NETSHIM_VIRTUAL_ADDR"), &cfg.VirtualAddr)
	if err := s.setIntFromString("ice-port", os.Getenv("NETSHIM_ICE_PORT"), &cfg.ICEPort); err != nil {
		return err
	}
	s.setList("public-ip", os.Getenv("NETSHIM_PUBLIC_IPS"), &cfg.PublicIPs)
	s.setList("stun", os.Getenv("NETSHIM_STUN_SERVERS"), &cfg.STUNServers)

	s.setBoolFromString("non-blocking", os.Getenv("NETSHIM_NON_BLOCKING"), &cfg.NonBlocking)
	if err := s.setDuration("recv-timeout", os.Getenv("NETSHIM_RECV_TIMEOUT"), &cfg.RecvTimeout); err != nil {
		return err
	}
	if err := s.setDuration("send-timeout", os.Getenv("NETSHIM_SEND_TIMEOUT"), &cfg.SendTimeout); err != nil {
		return err
	}
	if err := s.setDuration("gap-timeout", os.Getenv("NETSHIM_GAP_TIMEOUT"), &cfg.GapTimeout); err != nil {
		return err
	}
	if err := s.setIntFromString("max-ready", os.Getenv("NETSHIM_MAX_READY"), &cfg.MaxReady); err != nil {
		return err
	}
	if err := s.setIntFromString("max-retries", os.Getenv("NETSHIM_MAX_RETRIES"), &cfg.MaxRetries); err != nil {
		return err
	}
	if err := s.setIntFromString("max-pending", os.Getenv("NETSHIM_MAX_PENDING"), &cfg.MaxPending); err != nil {
		return err
	}

	s.setString("engine", os.Getenv("NETSHIM_ENGINE"), &engine)
	if engine != "" {
		cfg.Engine = EngineMode(engine)
	}
	s.setString("progname", os.Getenv("NETSHIM_PROGNAME"), &cfg.Progname)
	s.setBoolFromString("change-game", os.Getenv("NETSHIM_CHANGE_GAME"), &cfg.ChangeGame)

	s.setString("log-level", os.Getenv("NETSHIM_LOG_LEVEL"), &cfg.LogLevel)
	if err := s.setDuration("stats-interval", os.Getenv("NETSHIM_STATS_INTERVAL"), &cfg.StatsInterval); err != nil {
		return err
	}

	return nil
}
