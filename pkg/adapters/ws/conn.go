// Package ws carries message links over gorilla/websocket.
//
// Each frame is a JSON object {kind, port, data, ports}. Ports transferred
// with a message are replaced by ids on the wire; the receiving side hands
// its listeners a fresh local port and forwards the first reply posted on
// it back as a "reply" frame addressed to the id. A sender that gives up on
// a port sends a "release" frame so the peer stops waiting for that reply.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/servicemocker/internal/logging"
	"github.com/aretw0/servicemocker/pkg/message"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	kindMessage = "message"
	kindReply   = "reply"
	kindRelease = "release"

	writeTimeout = 10 * time.Second
)

// ErrClosed is returned when posting on a closed connection.
var ErrClosed = errors.New("websocket link closed")

type frame struct {
	Kind  string          `json:"kind"`
	Port  string          `json:"port,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ports []string        `json:"ports,omitempty"`
}

// Conn is a message.Link over a websocket connection.
type Conn struct {
	ws      *websocket.Conn
	logger  *slog.Logger
	inbound *message.Bus

	writeMu sync.Mutex // serialises all conn writes

	mu         sync.Mutex
	pending    map[string]*message.Port // ports we sent, awaiting a reply
	forwarding map[string]*message.Port // ports the peer sent, awaiting our reply

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Option configures a Conn.
type Option func(*Conn)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Conn) {
		c.logger = logger
	}
}

// NewConn wraps ws and starts reading from it.
func NewConn(ws *websocket.Conn, opts ...Option) *Conn {
	c := &Conn{
		ws:      ws,
		logger:  logging.NewNop(),
		inbound: message.NewBus(),
		pending:    make(map[string]*message.Port),
		forwarding: make(map[string]*message.Port),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	go c.readLoop()
	return c
}

// PostMessage sends data to the peer. Each port is kept until the peer
// replies on it or the port is closed locally.
func (c *Conn) PostMessage(ctx context.Context, data any, ports ...*message.Port) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ids := make([]string, 0, len(ports))
	for _, p := range ports {
		id := uuid.NewString()
		c.track(id, p)
		ids = append(ids, id)
	}

	if err := c.write(ctx, frame{Kind: kindMessage, Data: payload, Ports: ids}); err != nil {
		c.untrack(ids...)
		return err
	}
	return nil
}

// AddMessageListener registers fn for messages sent by the peer.
func (c *Conn) AddMessageListener(fn message.Listener) func() {
	return c.inbound.AddMessageListener(fn)
}

// Done is closed once the connection is gone.
func (c *Conn) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Close closes the connection.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		c.inbound.Close()

		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()

		err = c.ws.Close()
	})
	return err
}

func (c *Conn) readLoop() {
	defer c.Close()
	for {
		var f frame
		if err := c.ws.ReadJSON(&f); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && c.ctx.Err() == nil {
				c.logger.Debug("websocket read failed", "err", err)
			}
			return
		}
		c.handle(f)
	}
}

func (c *Conn) handle(f frame) {
	data, err := decode(f.Data)
	if err != nil {
		c.logger.Warn("dropping malformed frame", "kind", f.Kind, "err", err)
		return
	}

	switch f.Kind {
	case kindMessage:
		ports := make([]*message.Port, 0, len(f.Ports))
		for _, id := range f.Ports {
			local, remote := message.NewChannel()
			c.mu.Lock()
			c.forwarding[id] = local
			c.mu.Unlock()
			ports = append(ports, remote)
			go c.forwardReply(id, local, remote)
		}
		_ = c.inbound.Dispatch(message.Message{Data: data, Ports: ports})

	case kindReply:
		c.mu.Lock()
		p, ok := c.pending[f.Port]
		delete(c.pending, f.Port)
		c.mu.Unlock()
		if !ok {
			// settled or released already
			return
		}
		if err := p.Post(c.ctx, data); err != nil {
			c.logger.Debug("late reply dropped", "port", f.Port, "err", err)
		}
		p.Close()

	case kindRelease:
		c.mu.Lock()
		p, ok := c.forwarding[f.Port]
		c.mu.Unlock()
		if ok {
			p.Close()
		}

	default:
		c.logger.Warn("unknown frame kind", "kind", f.Kind)
	}
}

// forwardReply sends the first message posted on local back to the peer as
// a reply to id. It gives up once the receiving handler closes remote, the
// peer releases the port or the connection ends.
func (c *Conn) forwardReply(id string, local, remote *message.Port) {
	defer func() {
		local.Close()
		c.mu.Lock()
		delete(c.forwarding, id)
		c.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(c.ctx)
	defer cancel()
	go func() {
		select {
		case <-remote.Done():
		case <-local.Done():
		case <-ctx.Done():
		}
		cancel()
	}()

	msg, err := local.Recv(ctx)
	if err != nil {
		// A handler may reply and close its port in one go.
		if msg, err = local.Recv(ctx); err != nil {
			return
		}
	}

	payload, err := json.Marshal(msg.Data)
	if err != nil {
		c.logger.Warn("failed to marshal reply", "port", id, "err", err)
		return
	}
	if err := c.write(c.ctx, frame{Kind: kindReply, Port: id, Data: payload}); err != nil {
		c.logger.Debug("reply not sent", "port", id, "err", err)
	}
}

func (c *Conn) write(ctx context.Context, f frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.ctx.Err() != nil {
		return ErrClosed
	}

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteJSON(f); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

func (c *Conn) track(id string, p *message.Port) {
	c.mu.Lock()
	c.pending[id] = p
	c.mu.Unlock()

	go func() {
		select {
		case <-p.Done():
			// Still pending means no reply came: tell the peer to stop waiting.
			if c.untrack(id) {
				if err := c.write(c.ctx, frame{Kind: kindRelease, Port: id}); err != nil {
					c.logger.Debug("release not sent", "port", id, "err", err)
				}
			}
		case <-c.ctx.Done():
			c.untrack(id)
		}
	}()
}

// untrack forgets ids and reports whether any of them was still pending.
func (c *Conn) untrack(ids ...string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	found := false
	for _, id := range ids {
		if _, ok := c.pending[id]; ok {
			found = true
			delete(c.pending, id)
		}
	}
	return found
}

func (c *Conn) pendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Conn) forwardingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.forwarding)
}

func decode(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
