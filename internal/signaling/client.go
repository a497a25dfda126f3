package signaling

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/1ureka/netshim/internal/transport/rtc"
	"github.com/1ureka/netshim/internal/util"
)

// Dial connects to a host's signaling server, answers its offer and returns
// the connected Peer. The URL carries the PIN as a query parameter, e.g.:
//
//	wss://example.devtunnels.ms/ws?pin=1234
//
// ctx bounds the handshake and the lifetime of the returned Peer.
func Dial(ctx context.Context, url string, api *rtc.API) (*rtc.Peer, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to signaling server: %w", err)
	}
	defer conn.Close()
	util.LogDebug("signaling connected: %s", url)

	peer, err := rtc.NewPeer(ctx, api)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer: %w", err)
	}

	if err := exchange(ctx, conn, peer, false); err != nil {
		peer.Close()
		return nil, err
	}

	util.LogSuccess("DataChannel to host established")
	return peer, nil
}
