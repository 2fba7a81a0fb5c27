package transport

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const closeGrace = time.Second

// WSStream carries the bus over a WebSocket. Every Write is sent as one
// binary message and a Read never spans two messages.
type WSStream struct {
	ws *websocket.Conn

	readMu sync.Mutex
	cur    io.Reader // unread part of the current message

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// NewWSStream takes ownership of ws.
func NewWSStream(ws *websocket.Conn) *WSStream {
	return &WSStream{ws: ws}
}

// Read returns data from the current message, moving to the next one when it
// is exhausted. A normal close from the remote side is reported as io.EOF.
func (s *WSStream) Read(p []byte) (int, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()

	for {
		if s.cur == nil {
			typ, r, err := s.ws.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			if typ != websocket.BinaryMessage && typ != websocket.TextMessage {
				continue
			}
			s.cur = r
		}

		n, err := s.cur.Read(p)
		if errors.Is(err, io.EOF) {
			s.cur = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

// Write sends p as one binary message.
func (s *WSStream) Write(p []byte) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// CloseWrite tells the remote side no more messages will follow.
func (s *WSStream) CloseWrite() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	return s.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
}

// Close closes the underlying connection, unblocking a pending Read. It is
// idempotent.
func (s *WSStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.ws.Close()
	})
	return err
}
