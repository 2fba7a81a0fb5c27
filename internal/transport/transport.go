// Package transport adapts the links a player can have to its host into
// plain byte streams (io.ReadWriteCloser) that the hub can own: a WebSocket
// carrying binary messages, or a WebRTC DataChannel negotiated over one.
package transport

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/starbus/internal/util"
)

// ErrClosed is returned by Write once the stream has been shut down.
var ErrClosed = errors.New("transport closed")

// Peer wraps a single PeerConnection + DataChannel pair. It exposes the
// signaling steps (offer / answer / ICE) and, once the DataChannel is open,
// behaves as an ordered byte stream: every DataChannel message is returned
// by Read without being merged with the next one.
//
// Its lifecycle is governed by the DataChannel state, the PeerConnection
// reaching a terminal state, and the context passed at construction time.
type Peer struct {
	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	sender     *sender
	in         *inbox
	openSignal chan struct{}

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu      sync.RWMutex
	pcState webrtc.PeerConnectionState
}

// NewPeer creates a Peer backed by a new PeerConnection and a pre-negotiated
// DataChannel. The caller performs signaling through the exposed methods and
// then hands the Peer to the hub as a stream.
func NewPeer(ctx context.Context, stunServers []string) (*Peer, error) {
	pc, err := newPeerConnection(stunServers)
	if err != nil {
		return nil, err
	}

	dc, err := newDataChannel(pc)
	if err != nil {
		_ = pc.Close()
		return nil, err
	}

	pCtx, pCancel := context.WithCancel(ctx)

	p := &Peer{
		pc:         pc,
		dc:         dc,
		in:         newInbox(pCtx.Done(), sendBufferSize),
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

	// DC close ends the stream.
	dc.OnClose(func() {
		util.LogDebug("DataChannel closed")
		pCancel()
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		data := make([]byte, len(msg.Data))
		copy(data, msg.Data)
		p.in.push(data)
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

	p.sender = newSender(pCtx, dc, p.openSignal, func(error) { pCancel() })

	return p, nil
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

// Close shuts down the DataChannel and PeerConnection. It is idempotent.
func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.cancel()
		err = errors.Join(p.dc.Close(), p.pc.Close())
	})
	return err
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
// io.ReadWriteCloser
// ---------------------------------------------------------------------------

// Read returns the next chunk of the next DataChannel message. It returns
// io.EOF once the Peer is shut down and every received message was read.
func (p *Peer) Read(b []byte) (int, error) {
	return p.in.Read(b)
}

// Write queues b as one DataChannel message. Delivery happens on the sender
// goroutine once the channel is open.
func (p *Peer) Write(b []byte) (int, error) {
	data := make([]byte, len(b))
	copy(data, b)
	if !p.sender.send(p.ctx, data) {
		return 0, ErrClosed
	}
	return len(b), nil
}
