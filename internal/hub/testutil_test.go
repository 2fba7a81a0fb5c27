package hub

import (
	"context"
	"net"
	"slices"
	"testing"
	"time"

	"github.com/1ureka/starbus/internal/config"
	"github.com/1ureka/starbus/internal/frame"
)

const (
	hostID   = "00:00:00:00:00:01"
	hostName = "Host"
	waitFor  = 2 * time.Second
	quiet    = 100 * time.Millisecond
)

// newTestHub starts a hub without pacing and closes it when the test ends.
func newTestHub(t *testing.T, role config.Role, selfID, selfName string) *Hub {
	t.Helper()

	cfg := config.DefaultHubConfig()
	cfg.Role = role
	cfg.SelfID = selfID
	cfg.SelfName = selfName
	cfg.PacingDelay = 0

	h := New(context.Background(), cfg)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

// ---------------------------------------------------------------------------
// Remote peer
// ---------------------------------------------------------------------------

// testPeer is the far end of one hub connection. Everything the hub writes
// to the connection shows up on frames, one read per entry.
type testPeer struct {
	id     string
	name   string
	remote net.Conn
	frames chan []byte
}

// attach connects a new in-memory peer to h.
func attach(t *testing.T, h *Hub, id, name string, hostLink bool) *testPeer {
	t.Helper()

	local, remote := net.Pipe()
	p := &testPeer{id: id, name: name, remote: remote, frames: make(chan []byte, 64)}

	go func() {
		buf := make([]byte, 8192)
		for {
			n, err := remote.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				p.frames <- data
			}
			if err != nil {
				return
			}
		}
	}()

	if err := h.OpenConnection(local, id, name, hostLink); err != nil {
		t.Fatalf("OpenConnection(%s) failed: %v", id, err)
	}
	t.Cleanup(func() { _ = remote.Close() })
	return p
}

// inject writes an encoded frame as if the remote device had sent it.
func (p *testPeer) inject(t *testing.T, f *frame.Frame) []byte {
	t.Helper()
	raw, err := frame.Encode(f)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if _, err := p.remote.Write(raw); err != nil {
		t.Fatalf("inject from %s failed: %v", p.id, err)
	}
	return raw
}

func (p *testPeer) expectFrame(t *testing.T) []byte {
	t.Helper()
	select {
	case data := <-p.frames:
		return data
	case <-time.After(waitFor):
		t.Fatalf("peer %s: timed out waiting for a frame", p.id)
		return nil
	}
}

func (p *testPeer) expectNothing(t *testing.T) {
	t.Helper()
	select {
	case data := <-p.frames:
		t.Fatalf("peer %s: unexpected frame %q", p.id, data)
	case <-time.After(quiet):
	}
}

// ---------------------------------------------------------------------------
// Listener events
// ---------------------------------------------------------------------------

// collector records listener events of the selected types.
type collector struct {
	events chan Event
}

func collect(h *Hub, types ...EventType) *collector {
	c := &collector{events: make(chan Event, 64)}
	h.RegisterListener(func(e Event) {
		if len(types) == 0 || slices.Contains(types, e.Type) {
			c.events <- e
		}
	})
	return c
}

func (c *collector) expect(t *testing.T) Event {
	t.Helper()
	select {
	case e := <-c.events:
		return e
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for a listener event")
		return Event{}
	}
}

func (c *collector) expectNothing(t *testing.T) {
	t.Helper()
	select {
	case e := <-c.events:
		t.Fatalf("unexpected listener event: %+v", e)
	case <-time.After(quiet):
	}
}

// waitPeers polls until h has want live connections.
func waitPeers(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(waitFor)
	for time.Now().Before(deadline) {
		if len(h.Peers()) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for peers: have=%d want=%d", len(h.Peers()), want)
}
