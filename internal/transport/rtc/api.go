// Package rtc carries batch frames over WebRTC DataChannels. Each remote peer
// gets one PeerConnection with a pre-negotiated, unordered, zero-retransmit
// DataChannel, so frames travel with datagram semantics and the sequencer
// above restores order.
package rtc

import (
	"fmt"

	"github.com/pion/ice/v4"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/netshim/internal/util"
)

// DefaultSTUNServers are used when Options.STUNServers is empty. No TURN:
// peers that cannot reach each other directly use the UDP transport instead.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// Options configures the WebRTC stack.
type Options struct {
	// ICEPort, when non-zero, multiplexes all ICE traffic on this single UDP port.
	ICEPort int
	// PublicIPs are announced as host candidates in place of local addresses
	// (NAT 1:1 mapping, e.g. a container behind a static public IP).
	PublicIPs []string
	// STUNServers overrides DefaultSTUNServers. Use an empty non-nil slice to
	// disable STUN.
	STUNServers []string
}

// API builds PeerConnections that share one SettingEngine.
type API struct {
	api *webrtc.API
	cfg webrtc.Configuration
	mux *ice.MultiUDPMuxDefault
}

// NewAPI prepares the pion API for opts.
func NewAPI(opts Options) (*API, error) {
	se := webrtc.SettingEngine{LoggerFactory: loggerFactory{}}

	var mux *ice.MultiUDPMuxDefault
	if opts.ICEPort > 0 {
		var err error
		mux, err = ice.NewMultiUDPMuxFromPort(opts.ICEPort,
			ice.UDPMuxFromPortWithLogger(loggerFactory{}.NewLogger("ice-mux")))
		if err != nil {
			return nil, fmt.Errorf("ICE UDP mux on port %d: %w", opts.ICEPort, err)
		}
		se.SetICEUDPMux(mux)
		util.LogInfo("ICE traffic multiplexed on UDP port %d", opts.ICEPort)
	}

	if len(opts.PublicIPs) > 0 {
		se.SetNAT1To1IPs(opts.PublicIPs, webrtc.ICECandidateTypeHost)
	}

	stun := opts.STUNServers
	if stun == nil {
		stun = DefaultSTUNServers
	}
	var cfg webrtc.Configuration
	if len(stun) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: stun}}
	}

	return &API{
		api: webrtc.NewAPI(webrtc.WithSettingEngine(se)),
		cfg: cfg,
		mux: mux,
	}, nil
}

func (a *API) newPeerConnection() (*webrtc.PeerConnection, error) {
	return a.api.NewPeerConnection(a.cfg)
}

// Close releases the shared ICE port, if any.
func (a *API) Close() error {
	if a.mux == nil {
		return nil
	}
	return a.mux.Close()
}
