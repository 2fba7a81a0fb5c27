package transport

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// wsPair returns the server and client ends of one WebSocket connection.
func wsPair(t *testing.T) (server, client *WSStream) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	accepted := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted <- ws
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	select {
	case sws := <-accepted:
		server = NewWSStream(sws)
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted")
	}
	client = NewWSStream(ws)

	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})
	return server, client
}

func TestWSStreamPreservesMessages(t *testing.T) {
	server, client := wsPair(t)

	for _, msg := range []string{"005false", "hello world"} {
		if _, err := client.Write([]byte(msg)); err != nil {
			t.Fatalf("Write(%q) failed: %v", msg, err)
		}
	}

	buf := make([]byte, 1024)
	for _, want := range []string{"005false", "hello world"} {
		n, err := server.Read(buf)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if got := string(buf[:n]); got != want {
			t.Errorf("Read = %q, want %q", got, want)
		}
	}
}

func TestWSStreamSplitsLongMessage(t *testing.T) {
	server, client := wsPair(t)

	if _, err := client.Write([]byte("abcdefgh")); err != nil {
		t.Fatal(err)
	}
	if _, err := client.Write([]byte("ij")); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 3)
	var got []string
	for len(got) < 4 {
		n, err := server.Read(buf)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		got = append(got, string(buf[:n]))
	}

	// Chunks of one message never include bytes of the next.
	if strings.Join(got, "|") != "abc|def|gh|ij" {
		t.Errorf("chunks = %q", got)
	}
}

func TestWSStreamCloseWriteEndsRemoteRead(t *testing.T) {
	server, client := wsPair(t)

	if err := client.CloseWrite(); err != nil {
		t.Fatalf("CloseWrite failed: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := server.Read(make([]byte, 16))
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if err != io.EOF {
			t.Errorf("err = %v, want io.EOF", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("remote Read did not return")
	}
}

func TestWSStreamCloseIsIdempotent(t *testing.T) {
	_, client := wsPair(t)

	if err := client.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := client.Write([]byte("late")); err == nil {
		t.Error("Write after Close should fail")
	}
}
