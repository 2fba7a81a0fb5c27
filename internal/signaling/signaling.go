// Package signaling brings players to the host. A player dials the host's
// WebSocket server announcing its id and name; the host answers with its own.
// The WebSocket then either carries the bus itself or is used once for an
// SDP/ICE exchange that opens a WebRTC DataChannel. Either way both sides
// end up with a plain byte stream for their hub.
package signaling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/starbus/internal/transport"
	"github.com/1ureka/starbus/internal/util"
)

// DefaultNegotiationTimeout bounds the SDP/ICE exchange of one player.
const DefaultNegotiationTimeout = 30 * time.Second

var (
	// ErrRejected is returned by Dial when the host refuses the handshake.
	ErrRejected = errors.New("host rejected the connection")

	// ErrProtocol is returned when the remote side breaks the signaling flow.
	ErrProtocol = errors.New("signaling protocol error")
)

// negotiateAsHost sends the offer and exchanges ICE candidates until the
// DataChannel opens. The WebSocket may be closed by the caller afterwards.
func negotiateAsHost(ctx context.Context, ws *websocket.Conn, peer *transport.Peer) error {
	s := &sender{peer: peer, conn: ws}
	r := &receiver{peer: peer, conn: ws, sender: s}
	s.trickle()

	errCh := make(chan error, 1)
	go func() {
		errCh <- r.watch() // Exits when the caller closes ws.
	}()

	// Host sends the Offer first.
	if err := s.sendOffer(); err != nil {
		return fmt.Errorf("send offer: %w", err)
	}
	return awaitReady(ctx, peer, errCh)
}

// negotiateAsPlayer answers the host's offer and exchanges ICE candidates
// until the DataChannel opens.
func negotiateAsPlayer(ctx context.Context, ws *websocket.Conn, peer *transport.Peer) error {
	s := &sender{peer: peer, conn: ws}
	r := &receiver{peer: peer, conn: ws, sender: s}
	s.trickle()

	errCh := make(chan error, 1)
	go func() {
		errCh <- r.watch()
	}()

	return awaitReady(ctx, peer, errCh)
}

func awaitReady(ctx context.Context, peer *transport.Peer, errCh <-chan error) error {
	select {
	case <-peer.Ready():
		util.LogDebug("WebRTC DataChannel established, closing WS")
		return nil

	case err := <-errCh:
		// The remote side may close the WS right after the channel opened.
		select {
		case <-peer.Ready():
			return nil
		default:
			return fmt.Errorf("signaling failed: %w", err)
		}

	case <-peer.Done():
		return fmt.Errorf("signaling failed: %w", transport.ErrClosed)

	case <-ctx.Done():
		return ctx.Err()
	}
}
