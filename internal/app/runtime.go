// Package app contains the top-level orchestration: it builds the transport
// named by the configuration, stacks the delivery engine, sequencer and shim
// on it, and hands the shim's socket calls to the engine.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"github.com/pterm/pterm"

	"github.com/1ureka/netshim/internal/config"
	"github.com/1ureka/netshim/internal/engine"
	"github.com/1ureka/netshim/internal/registry"
	"github.com/1ureka/netshim/internal/sequencer"
	"github.com/1ureka/netshim/internal/shim"
	"github.com/1ureka/netshim/internal/signaling"
	"github.com/1ureka/netshim/internal/sockaddr"
	"github.com/1ureka/netshim/internal/transport"
	"github.com/1ureka/netshim/internal/transport/rtc"
	"github.com/1ureka/netshim/internal/util"
)

// Runtime owns one transport and everything stacked on it.
type Runtime struct {
	cfg config.Config
	reg *registry.Registry

	transport transport.Transport
	delivery  *transport.Delivery
	shim      *shim.Shim

	// remote is where probes go by default: the UDP peer or the rtc host.
	remote sockaddr.Addr

	closers []func() error
	ctx     context.Context
	cancel  context.CancelFunc
}

// New builds the transport for cfg and the stack on top of it. cfg must have
// passed Validate. Callbacks are registered on reg by Register.
func New(ctx context.Context, cfg config.Config, reg *registry.Registry) (*Runtime, error) {
	rCtx, rCancel := context.WithCancel(ctx)
	r := &Runtime{cfg: cfg, reg: reg, ctx: rCtx, cancel: rCancel}

	t, err := r.openTransport()
	if err != nil {
		r.Close()
		return nil, err
	}
	r.stack(t)
	return r, nil
}

// newWithTransport stacks the runtime on an existing transport.
func newWithTransport(ctx context.Context, cfg config.Config, reg *registry.Registry, t transport.Transport, remote sockaddr.Addr) *Runtime {
	rCtx, rCancel := context.WithCancel(ctx)
	r := &Runtime{cfg: cfg, reg: reg, remote: remote, ctx: rCtx, cancel: rCancel}
	r.stack(t)
	return r
}

func (r *Runtime) stack(t transport.Transport) {
	r.transport = t
	r.delivery = transport.NewDelivery(t, transport.DeliveryOptions{
		MaxRetries: r.cfg.MaxRetries,
	})
	seq := sequencer.New(sequencer.Options{
		GapTimeout: r.cfg.GapTimeout,
		MaxPending: r.cfg.MaxPending,
	})
	r.shim = shim.New(r.delivery, seq, shim.Options{
		NonBlocking: r.cfg.NonBlocking,
		RecvTimeout: r.cfg.RecvTimeout,
		MaxReady:    r.cfg.MaxReady,
		SendTimeout: r.cfg.SendTimeout,
	})
}

func (r *Runtime) openTransport() (transport.Transport, error) {
	switch r.cfg.Transport {
	case config.TransportUDP:
		var peer sockaddr.Addr
		if r.cfg.Peer != "" {
			ap, err := netip.ParseAddrPort(r.cfg.Peer)
			if err != nil {
				return nil, fmt.Errorf("invalid peer %q: %w", r.cfg.Peer, err)
			}
			peer = sockaddr.FromAddrPort(ap)
			r.remote = peer
		}
		return transport.ListenUDP(r.ctx, r.cfg.Listen, transport.UDPOptions{
			ReadBatch: r.cfg.ReadBatch,
			Peer:      peer,
		})

	case config.TransportRTCHost:
		return r.openRTCHost()

	case config.TransportRTCClient:
		return r.openRTCClient()
	}
	return nil, fmt.Errorf("unknown transport %q", r.cfg.Transport)
}

func (r *Runtime) newAPI() (*rtc.API, error) {
	api, err := rtc.NewAPI(rtc.Options{
		ICEPort:     r.cfg.ICEPort,
		PublicIPs:   r.cfg.PublicIPs,
		STUNServers: r.cfg.STUNServers,
	})
	if err != nil {
		return nil, err
	}
	r.closers = append(r.closers, api.Close)
	return api, nil
}

// openRTCHost starts the signaling server. Clients join the hub as they
// complete their handshake.
func (r *Runtime) openRTCHost() (transport.Transport, error) {
	api, err := r.newAPI()
	if err != nil {
		return nil, err
	}

	local, err := netip.ParseAddrPort(r.cfg.VirtualAddr)
	if err != nil {
		return nil, err
	}
	hub := rtc.NewHub(r.ctx, local)

	pin := r.cfg.PIN
	if pin == "" {
		pin = signaling.GeneratePIN(4)
	}
	srv := signaling.NewServer(r.ctx, api, hub, pin)
	port, err := srv.Start(r.cfg.SignalListen)
	if err != nil {
		hub.Close()
		return nil, err
	}
	r.closers = append(r.closers, srv.Close)

	pterm.DefaultBox.WithTitle("Signaling").Println(fmt.Sprintf(
		"Port  : %d\nPIN   : %s\nHost  : %s", port, pin, local))
	util.LogInfo("waiting for clients on :%d/ws", port)

	return hub, nil
}

// openRTCClient dials the host and binds it at the configured host address.
func (r *Runtime) openRTCClient() (transport.Transport, error) {
	api, err := r.newAPI()
	if err != nil {
		return nil, err
	}

	hostAddr, err := netip.ParseAddrPort(r.cfg.HostAddr)
	if err != nil {
		return nil, err
	}
	local, err := netip.ParseAddrPort(r.cfg.VirtualAddr)
	if err != nil {
		return nil, err
	}

	peer, err := signaling.Dial(r.ctx, r.cfg.SignalURL, api)
	if err != nil {
		return nil, err
	}

	hub := rtc.NewHub(r.ctx, local)
	r.remote = sockaddr.FromAddrPort(hostAddr)
	if err := hub.AddAt(peer, r.remote); err != nil {
		peer.Close()
		hub.Close()
		return nil, err
	}
	return hub, nil
}

// Shim returns the socket surface.
func (r *Runtime) Shim() *shim.Shim { return r.shim }

// LocalAddr is the address peers see this side as.
func (r *Runtime) LocalAddr() sockaddr.Addr { return r.transport.LocalAddr() }

// Remote is the configured remote peer, zero when there is none.
func (r *Runtime) Remote() sockaddr.Addr { return r.remote }

// Register installs the shim's socket calls in the registry and seals it.
func (r *Runtime) Register() error {
	if err := r.reg.RegisterRecvFromCallback(r.shim.RecvfromNative); err != nil {
		return err
	}
	if err := r.reg.RegisterSendToCallback(r.shim.Sendto); err != nil {
		return err
	}
	r.reg.Seal()
	util.LogDebug("socket callbacks registered")
	return nil
}

// RunEngine registers the callbacks and enters the engine's main loop. It
// returns the engine's exit code once the loop ends.
func (r *Runtime) RunEngine(e engine.Engine, args []string) (int, error) {
	if err := r.Register(); err != nil {
		return 1, err
	}

	util.StartStatsReporter(r.ctx, r.cfg.StatsInterval)

	switch r.cfg.Engine {
	case config.EngineHost:
		util.LogInfo("entering Host_Main (%s)", r.cfg.Progname)
		return e.HostMain(args, r.cfg.Progname, r.cfg.ChangeGame), nil
	default:
		util.LogInfo("entering Launcher_Main")
		return e.LauncherMain(args), nil
	}
}

// Close clears the registry and tears the stack down.
func (r *Runtime) Close() error {
	r.reg.Reset()
	r.cancel()

	var errs []error
	if r.shim != nil {
		errs = append(errs, r.shim.Close())
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	return errors.Join(errs...)
}
