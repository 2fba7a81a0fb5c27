package transport

import (
	"io"
	"sync"
)

// inbox turns message callbacks into a blocking Read. A message longer than
// the caller's buffer is returned over several reads, and one read never
// spans two messages.
type inbox struct {
	ch   chan []byte
	done <-chan struct{}

	mu   sync.Mutex
	rest []byte
}

func newInbox(done <-chan struct{}, size int) *inbox {
	return &inbox{ch: make(chan []byte, size), done: done}
}

// push queues one message. It blocks while the inbox is full and drops the
// message once done is closed.
func (in *inbox) push(data []byte) bool {
	select {
	case in.ch <- data:
		return true
	case <-in.done:
		return false
	}
}

// Read drains messages already queued before reporting io.EOF after done.
func (in *inbox) Read(p []byte) (int, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if len(in.rest) == 0 {
		select {
		case data := <-in.ch:
			in.rest = data
		case <-in.done:
			select {
			case data := <-in.ch:
				in.rest = data
			default:
				return 0, io.EOF
			}
		}
	}

	n := copy(p, in.rest)
	in.rest = in.rest[n:]
	return n, nil
}
