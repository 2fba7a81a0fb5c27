package signaling

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/starbus/internal/config"
	"github.com/1ureka/starbus/internal/transport"
	"github.com/1ureka/starbus/internal/util"
)

// DialConfig describes the player side of signaling.
type DialConfig struct {
	URL         string // host WebSocket URL, e.g. ws://host:7275/ws
	PIN         string // added to the URL when non-empty
	ID          string // this player's device id
	Name        string // this player's display name
	Transport   config.TransportKind
	STUNServers []string
}

// Session is a player's established link to the host.
type Session struct {
	Stream   io.ReadWriteCloser
	HostID   string
	HostName string
}

// Dial connects to the host, exchanges identities and returns the stream to
// hand to the player's hub as its host link. ctx bounds the handshake and, in
// WebRTC mode, the lifetime of the peer connection.
func Dial(ctx context.Context, cfg DialConfig) (*Session, error) {
	kind := cfg.Transport
	if kind == "" {
		kind = config.TransportWS
	}

	target, err := dialURL(cfg, kind)
	if err != nil {
		return nil, err
	}

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: %s", ErrRejected, resp.Status)
		}
		return nil, fmt.Errorf("failed to connect to WS server: %w", err)
	}
	util.LogDebug("WS connected: %s", cfg.URL)

	var welcome message
	if dl, ok := ctx.Deadline(); ok {
		_ = ws.SetReadDeadline(dl)
	}
	if err := ws.ReadJSON(&welcome); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("read welcome: %w", err)
	}
	_ = ws.SetReadDeadline(time.Time{})
	if welcome.Type != msgTypeWelcome {
		_ = ws.Close()
		return nil, fmt.Errorf("%w: expected welcome, got %q", ErrProtocol, welcome.Type)
	}
	sess := &Session{HostID: welcome.ID, HostName: welcome.Name}

	switch kind {
	case config.TransportWS:
		sess.Stream = transport.NewWSStream(ws)
		return sess, nil

	case config.TransportWebRTC:
		defer ws.Close()

		peer, err := transport.NewPeer(ctx, cfg.STUNServers)
		if err != nil {
			return nil, fmt.Errorf("failed to create peer: %w", err)
		}

		nCtx, nCancel := context.WithTimeout(ctx, DefaultNegotiationTimeout)
		defer nCancel()

		if err := negotiateAsPlayer(nCtx, ws, peer); err != nil {
			_ = peer.Close()
			return nil, err
		}
		sess.Stream = peer
		return sess, nil
	}

	_ = ws.Close()
	return nil, fmt.Errorf("unsupported transport %q", kind)
}

// dialURL adds the player's identity to the host URL.
func dialURL(cfg DialConfig, kind config.TransportKind) (string, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return "", fmt.Errorf("invalid host URL %q: %w", cfg.URL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("invalid host URL %q: scheme must be ws or wss", cfg.URL)
	}

	q := u.Query()
	if cfg.PIN != "" {
		q.Set(paramPIN, cfg.PIN)
	}
	if cfg.ID != "" {
		q.Set(paramID, cfg.ID)
	}
	q.Set(paramName, cfg.Name)
	q.Set(paramTransport, string(kind))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
