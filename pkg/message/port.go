package message

import (
	"context"
	"errors"
	"sync"
)

// ErrPortClosed is returned when posting to, or receiving from, a released port.
var ErrPortClosed = errors.New("message port closed")

// portBuffer bounds how many undelivered messages a port holds.
// Reply channels carry a single message, so a small buffer keeps Post non-blocking.
const portBuffer = 8

// Message is one delivered event: the payload plus any transferred ports.
type Message struct {
	Data   any
	Ports  []*Port
	Origin string
}

// Port is one half of a two-endpoint channel.
// Messages posted on a port are received by its peer.
type Port struct {
	inbox chan Message
	done  chan struct{}
	once  sync.Once
	peer  *Port
}

// NewChannel creates two entangled ports.
func NewChannel() (*Port, *Port) {
	a := newPort()
	b := newPort()
	a.peer = b
	b.peer = a
	return a, b
}

func newPort() *Port {
	return &Port{
		inbox: make(chan Message, portBuffer),
		done:  make(chan struct{}),
	}
}

// Post delivers data (and optionally transferred ports) to the peer.
// It fails with ErrPortClosed once either side has been closed.
func (p *Port) Post(ctx context.Context, data any, ports ...*Port) error {
	if p.Closed() || p.peer.Closed() {
		return ErrPortClosed
	}

	select {
	case p.peer.inbox <- Message{Data: data, Ports: ports}:
		return nil
	case <-p.peer.done:
		return ErrPortClosed
	case <-p.done:
		return ErrPortClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv waits for the next message posted by the peer. A message already
// queued is returned even when ctx is done.
func (p *Port) Recv(ctx context.Context) (Message, error) {
	select {
	case msg := <-p.inbox:
		return msg, nil
	default:
	}

	select {
	case msg := <-p.inbox:
		return msg, nil
	case <-p.done:
		return Message{}, ErrPortClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Close releases the port. Pending messages are dropped. Safe to call twice.
func (p *Port) Close() {
	p.once.Do(func() {
		close(p.done)
	})
}

// Done is closed when the port is released.
func (p *Port) Done() <-chan struct{} {
	return p.done
}

// Closed reports whether Close has been called.
func (p *Port) Closed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}
