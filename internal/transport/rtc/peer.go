package rtc

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/netshim/internal/util"
)

var ErrPeerClosed = errors.New("rtc: peer closed")

// Peer wraps a single PeerConnection + DataChannel pair, providing the
// signaling surface and frame I/O with backpressure.
//
// Its lifecycle is governed by the DataChannel state and the context passed
// at construction time. The PeerConnection state is recorded, except that a
// failed connection closes the peer.
type Peer struct {
	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	sender     *sender
	openSignal chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	pcState webrtc.PeerConnectionState
}

// NewPeer creates a Peer backed by a new PeerConnection and a pre-negotiated
// DataChannel. The caller performs signaling via the exposed methods and then
// uses Send / OnMessage.
func NewPeer(ctx context.Context, api *API) (*Peer, error) {
	pc, err := api.newPeerConnection()
	if err != nil {
		return nil, err
	}

	dc, err := newDataChannel(pc)
	if err != nil {
		pc.Close()
		return nil, err
	}

	pCtx, pCancel := context.WithCancel(ctx)

	p := &Peer{
		pc:         pc,
		dc:         dc,
		openSignal: make(chan struct{}),
		ctx:        pCtx,
		cancel:     pCancel,
		pcState:    webrtc.PeerConnectionStateNew,
	}

	// DC open gate.
	var openOnce sync.Once
	dc.OnOpen(func() {
		openOnce.Do(func() { close(p.openSignal) })
	})

	// DC close → cancel peer context.
	dc.OnClose(func() {
		util.LogDebug("DataChannel closed")
		pCancel()
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("PeerConnection state: %s", state.String())
		p.mu.Lock()
		p.pcState = state
		p.mu.Unlock()

		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			pCancel()
		}
	})

	p.sender = newSender(pCtx, pCancel, dc, p.openSignal)

	return p, nil
}

// newDataChannel creates a pre-negotiated DataChannel with datagram semantics.
// Negotiated mode (ID 0) lets both sides create the channel independently
// without relying on OnDataChannel. Unordered with zero retransmits means a
// lost frame stays lost; the sequencer skips over it.
func newDataChannel(pc *webrtc.PeerConnection) (*webrtc.DataChannel, error) {
	ordered := false
	negotiated := true
	id := uint16(0)
	retransmits := uint16(0)

	return pc.CreateDataChannel("frames", &webrtc.DataChannelInit{
		Ordered:        &ordered,
		Negotiated:     &negotiated,
		ID:             &id,
		MaxRetransmits: &retransmits,
	})
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Ready returns a channel that is closed when the DataChannel is open.
func (p *Peer) Ready() <-chan struct{} {
	return p.openSignal
}

// Done returns a channel that is closed when the Peer is shut down
// (DataChannel closed, connection failed or parent context cancelled).
func (p *Peer) Done() <-chan struct{} {
	return p.ctx.Done()
}

// Close shuts down the DataChannel and PeerConnection.
func (p *Peer) Close() error {
	p.cancel()
	return errors.Join(p.dc.Close(), p.pc.Close())
}

// ConnectionState returns the last observed PeerConnection state.
func (p *Peer) ConnectionState() webrtc.PeerConnectionState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pcState
}

// ---------------------------------------------------------------------------
// Signaling
// ---------------------------------------------------------------------------

// CreateOffer generates an SDP offer.
func (p *Peer) CreateOffer() (webrtc.SessionDescription, error) {
	return p.pc.CreateOffer(nil)
}

// CreateAnswer generates an SDP answer.
func (p *Peer) CreateAnswer() (webrtc.SessionDescription, error) {
	return p.pc.CreateAnswer(nil)
}

// SetLocalDescription applies the local SDP.
func (p *Peer) SetLocalDescription(sdp webrtc.SessionDescription) error {
	return p.pc.SetLocalDescription(sdp)
}

// SetRemoteDescription applies the remote SDP.
func (p *Peer) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	return p.pc.SetRemoteDescription(sdp)
}

// OnICECandidate registers a callback invoked whenever a new local ICE
// candidate is gathered. A nil candidate signals the end of gathering.
func (p *Peer) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	p.pc.OnICECandidate(fn)
}

// AddICECandidate adds a remote ICE candidate received through signaling.
func (p *Peer) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(candidate)
}

// ---------------------------------------------------------------------------
// Data
// ---------------------------------------------------------------------------

// Send enqueues one frame. It blocks while the send queue is full and fails
// once the peer is closed or ctx is done.
func (p *Peer) Send(ctx context.Context, frame []byte) error {
	return p.sender.send(ctx, p.ctx, frame)
}

// OnMessage registers a callback invoked for every inbound DataChannel message.
func (p *Peer) OnMessage(fn func([]byte)) {
	p.dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		fn(msg.Data)
	})
}
