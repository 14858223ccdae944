package message

import (
	"context"
	"errors"
	"sync"

	"github.com/aretw0/servicemocker/pkg/domain"
)

// ErrBusClosed is returned when posting to a closed Bus.
var ErrBusClosed = errors.New("message bus closed")

type listenerEntry struct {
	fn Listener
}

// Bus is a same-context event target: messages posted to it are delivered
// to its own listeners, one at a time, in listener registration order.
// Ports carried by a message that reaches no listener are closed.
// It implements Source, Target and SelfTarget.
type Bus struct {
	origin string

	mu        sync.Mutex
	listeners []*listenerEntry
	queue     []Message
	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithOrigin sets the origin stamped on messages posted through PostMessage.
func WithOrigin(origin string) BusOption {
	return func(b *Bus) {
		b.origin = origin
	}
}

// NewBus creates a Bus and starts its dispatch goroutine. Call Close to stop it.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	go b.loop()
	return b
}

// AddMessageListener registers fn. The returned function removes it.
func (b *Bus) AddMessageListener(fn Listener) func() {
	entry := &listenerEntry{fn: fn}

	b.mu.Lock()
	b.listeners = append(b.listeners, entry)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, l := range b.listeners {
			if l == entry {
				b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
				return
			}
		}
	}
}

// PostMessage queues data for the bus listeners.
func (b *Bus) PostMessage(ctx context.Context, data any, ports ...*Port) error {
	return b.PostMessageTo(ctx, data, b.origin, ports...)
}

// PostMessageTo queues data for the bus listeners, addressed to targetOrigin.
func (b *Bus) PostMessageTo(ctx context.Context, data any, targetOrigin string, ports ...*Port) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.Dispatch(Message{Data: data, Ports: ports, Origin: targetOrigin})
}

// Dispatch queues an already-built message.
func (b *Bus) Dispatch(msg Message) error {
	b.mu.Lock()
	select {
	case <-b.done:
		b.mu.Unlock()
		return ErrBusClosed
	default:
	}
	b.queue = append(b.queue, msg)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
	return nil
}

// Close stops delivery. Queued messages are dropped.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		close(b.done)
		b.queue = nil
		b.mu.Unlock()
	})
}

func (b *Bus) loop() {
	for {
		select {
		case <-b.done:
			return
		case <-b.wake:
		}

		for {
			b.mu.Lock()
			if len(b.queue) == 0 {
				b.mu.Unlock()
				break
			}
			msg := b.queue[0]
			b.queue = b.queue[1:]
			listeners := make([]*listenerEntry, len(b.listeners))
			copy(listeners, b.listeners)
			b.mu.Unlock()

			if !wantsOrigin(msg.Origin, b.origin) || len(listeners) == 0 {
				release(msg.Ports)
				continue
			}
			for _, l := range listeners {
				l.fn(msg)
			}
		}
	}
}

// release closes ports of a message no listener received.
func release(ports []*Port) {
	for _, p := range ports {
		p.Close()
	}
}

func wantsOrigin(targetOrigin, origin string) bool {
	return targetOrigin == "" || targetOrigin == domain.WildcardOrigin || targetOrigin == origin
}
