package signaling

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/1ureka/starbus/internal/config"
	"github.com/1ureka/starbus/internal/hub"
)

func newHub(t *testing.T, role config.Role, id, name string) *hub.Hub {
	t.Helper()
	cfg := config.DefaultHubConfig()
	cfg.Role = role
	cfg.SelfID = id
	cfg.SelfName = name
	cfg.PacingDelay = 0
	h := hub.New(context.Background(), cfg)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

// startHost runs a host hub behind a signaling server on a loopback port.
func startHost(t *testing.T, pin string) (*hub.Hub, string) {
	t.Helper()
	return startLimitedHost(t, pin, 0)
}

func startLimitedHost(t *testing.T, pin string, maxConns int) (*hub.Hub, string) {
	t.Helper()

	h := newHub(t, config.RoleHost, "00:00:00:00:00:01", "Host")
	srv := NewServer(ServerConfig{
		Listen:   "127.0.0.1:0",
		PIN:      pin,
		HostID:   h.SelfID(),
		HostName: h.SelfName(),
		MaxConns: maxConns,
	}, func(stream io.ReadWriteCloser, id, name string) error {
		return h.OpenConnection(stream, id, name, false)
	})

	addr, err := srv.Start(context.Background())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })

	return h, fmt.Sprintf("ws://%s/ws", addr.String())
}

func waitEvent(t *testing.T, ch <-chan hub.Event) hub.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for an event")
		return hub.Event{}
	}
}

func TestWSPlayersJoinAndChat(t *testing.T) {
	host, url := startHost(t, "1234")

	hostEvents := make(chan hub.Event, 16)
	host.RegisterListener(func(e hub.Event) { hostEvents <- e })

	player := newHub(t, config.RolePlayer, "AA:BB", "Bob")
	playerEvents := make(chan hub.Event, 16)
	player.RegisterListener(func(e hub.Event) { playerEvents <- e })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := Dial(ctx, DialConfig{URL: url, PIN: "1234", ID: "AA:BB", Name: "Bob", Transport: config.TransportWS})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	if sess.HostID != "00:00:00:00:00:01" || sess.HostName != "Host" {
		t.Fatalf("welcome = %q/%q", sess.HostID, sess.HostName)
	}
	if err := player.OpenConnection(sess.Stream, sess.HostID, sess.HostName, true); err != nil {
		t.Fatalf("OpenConnection failed: %v", err)
	}

	if e := waitEvent(t, hostEvents); e.Type != hub.EventConnected || e.Peer != "Bob" || e.PeerID != "AA:BB" {
		t.Fatalf("unexpected host event: %+v", e)
	}
	waitEvent(t, playerEvents) // connected

	if err := player.SendGlobal([]byte("hello host"), 4); err != nil {
		t.Fatal(err)
	}

	e := waitEvent(t, hostEvents)
	if e.Type != hub.EventMessage || string(e.Payload) != "hello host" || e.Source != "AA:BB" {
		t.Fatalf("unexpected host event: %+v", e)
	}

	// The host relays the broadcast back to its origin.
	e = waitEvent(t, playerEvents)
	if e.Type != hub.EventMessage || string(e.Payload) != "hello host" {
		t.Fatalf("unexpected player event: %+v", e)
	}
}

func TestDialRejectsWrongPIN(t *testing.T) {
	_, url := startHost(t, "1234")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := Dial(ctx, DialConfig{URL: url, PIN: "0000", Name: "Mallory"})
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("err = %v, want ErrRejected", err)
	}
}

func TestDialRejectsMissingName(t *testing.T) {
	_, url := startHost(t, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := Dial(ctx, DialConfig{URL: url})
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("err = %v, want ErrRejected", err)
	}
}

func TestHostDerivesIDWhenPlayerSendsNone(t *testing.T) {
	host, url := startHost(t, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := Dial(ctx, DialConfig{URL: url, Name: "Anon"})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { _ = sess.Stream.Close() })

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if id, ok := host.Lookup("Anon"); ok {
			if strings.Count(id, ":") != 5 {
				t.Errorf("derived id %q is not MAC-like", id)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("player never registered on the host")
}

func TestMaxConnsHoldsBackExtraPlayers(t *testing.T) {
	_, url := startLimitedHost(t, "", 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first, err := Dial(ctx, DialConfig{URL: url, Name: "First"})
	if err != nil {
		t.Fatalf("first Dial failed: %v", err)
	}
	t.Cleanup(func() { _ = first.Stream.Close() })

	shortCtx, shortCancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer shortCancel()

	if _, err := Dial(shortCtx, DialConfig{URL: url, Name: "Second"}); err == nil {
		t.Fatal("second player should not get through while the only slot is taken")
	}
}

func TestDialURL(t *testing.T) {
	tests := []struct {
		name    string
		cfg     DialConfig
		want    []string
		wantErr bool
	}{
		{
			name: "identity and pin",
			cfg:  DialConfig{URL: "ws://h:1/ws", PIN: "42", ID: "AA:BB", Name: "Bob"},
			want: []string{"pin=42", "id=AA%3ABB", "name=Bob", "transport=ws"},
		},
		{
			name: "keeps existing query",
			cfg:  DialConfig{URL: "wss://h/ws?pin=7", Name: "Bob"},
			want: []string{"pin=7", "name=Bob"},
		},
		{
			name:    "http scheme",
			cfg:     DialConfig{URL: "http://h/ws", Name: "Bob"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := dialURL(tt.cfg, config.TransportWS)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			for _, part := range tt.want {
				if !strings.Contains(got, part) {
					t.Errorf("%q does not contain %q", got, part)
				}
			}
		})
	}
}

func TestGeneratePIN(t *testing.T) {
	pin := GeneratePIN(6)
	if len(pin) != 6 {
		t.Fatalf("len = %d, want 6", len(pin))
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			t.Fatalf("non-digit %q in %q", r, pin)
		}
	}
}

func TestServerRefusesRequestsAfterClose(t *testing.T) {
	srv := NewServer(ServerConfig{Listen: "127.0.0.1:0"}, func(io.ReadWriteCloser, string, string) error {
		t.Error("no stream should be accepted after Close")
		return nil
	})
	if _, err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	rec := httptest.NewRecorder()
	srv.handleWS(rec, httptest.NewRequest(http.MethodGet, "/ws?name=Late&transport=webrtc", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}
