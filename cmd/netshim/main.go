// netshim: CLI entry point.
//
// netshim sits behind the engine's raw socket calls. Every sendto batch is
// framed, sequenced and carried over UDP or a WebRTC DataChannel; recvfrom
// gets the datagrams back one at a time and in order.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/netshim/internal/app"
	"github.com/1ureka/netshim/internal/config"
	"github.com/1ureka/netshim/internal/engine"
	"github.com/1ureka/netshim/internal/registry"
	"github.com/1ureka/netshim/internal/sockaddr"
	"github.com/1ureka/netshim/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.DefaultConfig()
	if err := newRootCmd(ctx, &cfg).Execute(); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Flags and the config file resolve into
// cfg before any subcommand runs.
func newRootCmd(ctx context.Context, cfg *config.Config) *cobra.Command {
	var (
		cfgPath string
		debug   bool
	)

	root := &cobra.Command{
		Use:           "netshim",
		Short:         "Batching and sequencing socket layer for the engine",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path := cfgPath
			if path == "" {
				path = config.DefaultConfigPath()
			}
			if err := config.Load(cfg, cmd.Flags(), path); err != nil {
				return err
			}
			if err := util.SetLevel(cfg.LogLevel); err != nil {
				return err
			}
			if debug {
				util.EnableDebug()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.netshim/config.toml)")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging (same as --log-level debug)")
	config.BindFlags(root.PersistentFlags(), cfg)

	root.AddCommand(
		runCmd(ctx, cfg),
		echoCmd(ctx, cfg),
		probeCmd(ctx, cfg),
	)

	return root
}

func banner() {
	pterm.Info.Println(fmt.Sprintf("netshim v%s", version))
	pterm.Println()
}

// runCmd starts the transport, registers the socket callbacks and hands the
// process to the engine.
func runCmd(ctx context.Context, cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "run [-- engine args...]",
		Short: "Run the engine with its sockets routed through netshim",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := engine.Native()
			if err != nil {
				return err
			}
			banner()

			rt, err := app.New(ctx, *cfg, registry.Default)
			if err != nil {
				return err
			}
			defer rt.Close()

			argv := append([]string{os.Args[0]}, args...)
			code, err := rt.RunEngine(eng, argv)
			if err != nil {
				return err
			}
			if code != 0 {
				return fmt.Errorf("engine exited with code %d", code)
			}
			util.LogInfo("engine exited")
			return nil
		},
	}
}

// blocking makes a config suitable for the CLI's own receive loops.
func blocking(cfg config.Config) config.Config {
	cfg.NonBlocking = false
	if cfg.RecvTimeout <= 0 {
		cfg.RecvTimeout = 250 * time.Millisecond
	}
	return cfg
}

func echoCmd(ctx context.Context, cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "echo",
		Short: "Send every received datagram back to its source",
		RunE: func(cmd *cobra.Command, args []string) error {
			banner()

			rt, err := app.New(ctx, blocking(*cfg), registry.Default)
			if err != nil {
				return err
			}
			defer rt.Close()

			return rt.Echo(ctx)
		},
	}
}

func probeCmd(ctx context.Context, cfg *config.Config) *cobra.Command {
	var (
		to   string
		opts = app.ProbeOptions{
			Count: 10,
			Batch: 4,
			Size:  64,
			Wait:  2 * time.Second,
		}
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Send stamped batches to an echo peer and report what came back",
		RunE: func(cmd *cobra.Command, args []string) error {
			banner()

			rt, err := app.New(ctx, blocking(*cfg), registry.Default)
			if err != nil {
				return err
			}
			defer rt.Close()

			dst := rt.Remote()
			if to != "" {
				dst, err = sockaddr.Parse(to)
				if err != nil {
					return err
				}
			}

			spinner, _ := pterm.DefaultSpinner.Start(fmt.Sprintf("probing %s", dst))
			res, err := rt.Probe(ctx, dst, opts)
			if err != nil {
				spinner.Fail(err.Error())
				return err
			}
			if res.Lost() > 0 {
				spinner.Warning(res.String())
			} else {
				spinner.Success(res.String())
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&to, "to", "", "destination host:port (default: --peer, or the rtc host)")
	f.IntVar(&opts.Count, "count", opts.Count, "batches to send")
	f.IntVar(&opts.Batch, "batch", opts.Batch, "packets per batch")
	f.IntVar(&opts.Size, "size", opts.Size, "bytes per packet")
	f.DurationVar(&opts.Interval, "interval", opts.Interval, "pause between batches")
	f.DurationVar(&opts.Wait, "wait", opts.Wait, "how long to wait for echoes")
	return cmd
}
