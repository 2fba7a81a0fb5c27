package signaling

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"golang.org/x/net/netutil"

	"github.com/1ureka/starbus/internal/config"
	"github.com/1ureka/starbus/internal/transport"
	"github.com/1ureka/starbus/internal/util"
)

// AcceptFunc hands a player's established stream to the host's hub.
type AcceptFunc func(stream io.ReadWriteCloser, id, name string) error

// ServerConfig describes the host side of signaling.
type ServerConfig struct {
	Listen      string   // TCP address, e.g. ":7275"; ":0" picks a free port
	PIN         string   // required from players when non-empty
	HostID      string   // announced to players in the welcome message
	HostName    string   // announced to players in the welcome message
	STUNServers []string // ICE servers for WebRTC players
	MaxConns    int      // concurrent WebSocket connections; <= 0 means unlimited
}

// Server is the host-side WebSocket server. Unlike a one-shot pairing, it
// keeps accepting players until it is closed.
type Server struct {
	cfg    ServerConfig
	accept AcceptFunc

	ctx      context.Context
	cancel   context.CancelFunc
	listener net.Listener
	httpSrv  *http.Server

	mu sync.Mutex // orders wg.Add against Close
	wg sync.WaitGroup
}

// NewServer creates a signaling server that passes every player's stream to
// accept.
func NewServer(cfg ServerConfig, accept AcceptFunc) *Server {
	return &Server{cfg: cfg, accept: accept}
}

// Start begins listening and serving in the background. It returns the
// address actually bound. The server stops when ctx is cancelled or Close is
// called.
func (s *Server) Start(ctx context.Context) (net.Addr, error) {
	listen := s.cfg.Listen
	if listen == "" {
		listen = ":0"
	}
	listener, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, fmt.Errorf("failed to start WS server: %w", err)
	}

	if s.cfg.MaxConns > 0 {
		// A WebSocket player holds its slot for the whole session, a WebRTC
		// player only while signaling.
		listener = netutil.LimitListener(listener, s.cfg.MaxConns)
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	s.httpSrv = &http.Server{Handler: mux}

	go func() {
		if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.LogError("signaling server stopped: %v", err)
		}
	}()
	go func() {
		<-s.ctx.Done()
		_ = s.httpSrv.Close()
	}()

	return listener.Addr(), nil
}

// Close stops accepting players and waits for requests in flight, pending
// negotiations included. Streams already handed to the hub are unaffected.
func (s *Server) Close() error {
	if s.cancel == nil {
		return nil
	}
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	err := s.httpSrv.Close()
	s.wg.Wait()
	return err
}

// track registers an in-flight request. It fails once Close has begun, so
// every wg.Add happens before Close waits.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.track() {
		http.Error(w, "server closing", http.StatusServiceUnavailable)
		return
	}
	defer s.wg.Done()

	q := r.URL.Query()
	if s.cfg.PIN != "" && q.Get(paramPIN) != s.cfg.PIN {
		http.Error(w, "Invalid PIN", http.StatusUnauthorized)
		return
	}

	kind := config.TransportWS
	if v := q.Get(paramTransport); v != "" {
		k, err := config.ParseTransport(v)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		kind = k
	}

	name := q.Get(paramName)
	if name == "" {
		http.Error(w, "missing player name", http.StatusBadRequest)
		return
	}
	id := q.Get(paramID)
	if id == "" {
		id = util.DeviceIDFromAddr(r.RemoteAddr)
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	welcome := message{Type: msgTypeWelcome, ID: s.cfg.HostID, Name: s.cfg.HostName, Transport: string(kind)}
	if err := ws.WriteJSON(welcome); err != nil {
		util.LogWarning("[%s] welcome to %q failed: %v", id, name, err)
		_ = ws.Close()
		return
	}
	util.LogInfo("[%s] %q signaling over %s from %s", id, name, kind, r.RemoteAddr)

	switch kind {
	case config.TransportWS:
		s.hand(transport.NewWSStream(ws), id, name)

	case config.TransportWebRTC:
		// The handler goroutine owns the negotiation.
		s.negotiate(ws, id, name)
	}
}

// negotiate opens a DataChannel to one player and closes the WebSocket.
func (s *Server) negotiate(ws *websocket.Conn, id, name string) {
	// The peer outlives the server: once handed over it belongs to the hub.
	peer, err := transport.NewPeer(context.WithoutCancel(s.ctx), s.cfg.STUNServers)
	if err != nil {
		util.LogError("[%s] cannot create peer connection: %v", id, err)
		closeWS(ws, websocket.CloseInternalServerErr, "peer setup failed")
		return
	}

	nCtx, nCancel := context.WithTimeout(s.ctx, DefaultNegotiationTimeout)
	defer nCancel()

	err = negotiateAsHost(nCtx, ws, peer)
	_ = ws.Close()
	if err != nil {
		util.LogError("[%s] WebRTC negotiation with %q failed: %v", id, name, err)
		_ = peer.Close()
		return
	}
	s.hand(peer, id, name)
}

func (s *Server) hand(stream io.ReadWriteCloser, id, name string) {
	if err := s.accept(stream, id, name); err != nil {
		util.LogError("[%s] player %q not accepted: %v", id, name, err)
	}
}
