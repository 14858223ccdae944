// Package container is the client-side view of a worker runtime reached
// over a message.Link: registration, the connect handshake and
// controller-change notifications.
package container

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/servicemocker/internal/logging"
	"github.com/aretw0/servicemocker/pkg/domain"
	"github.com/aretw0/servicemocker/pkg/message"
	"github.com/aretw0/servicemocker/pkg/ports"
)

// Container implements ports.Container over a dialed link.
type Container struct {
	dialer   ports.Dialer
	logger   *slog.Logger
	timeout  time.Duration
	observer message.Observer

	// inbound re-dispatches worker messages to message listeners.
	inbound *message.Bus
	// changes serializes controller-change notifications.
	changes *message.Bus

	mu     sync.Mutex
	link   message.Link
	detach func()
	newest *Registration
}

// Option configures a Container.
type Option func(*Container)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Container) {
		c.logger = logger
	}
}

// WithTimeout bounds every exchange with the worker (default message.DefaultTimeout).
func WithTimeout(d time.Duration) Option {
	return func(c *Container) {
		c.timeout = d
	}
}

// WithObserver reports every exchange outcome to o.
func WithObserver(o message.Observer) Option {
	return func(c *Container) {
		c.observer = o
	}
}

// New creates a Container. The link is dialed on the first Register.
func New(dialer ports.Dialer, opts ...Option) *Container {
	c := &Container{
		dialer:  dialer,
		logger:  logging.NewNop(),
		timeout: message.DefaultTimeout,
		inbound: message.NewBus(),
		changes: message.NewBus(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register installs the worker script at path for opts.Scope and returns its registration.
func (c *Container) Register(ctx context.Context, path string, opts domain.RegisterOptions) (ports.Registration, error) {
	scope := opts.Scope
	if scope == "" {
		scope = domain.DefaultScope
	}

	link, err := c.dial(ctx, scope)
	if err != nil {
		return nil, err
	}

	info, err := c.exchangeInfo(ctx, link, domain.Envelope{
		Action: domain.ActionRegister,
		Key:    path,
		Scope:  scope,
	})
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", path, err)
	}

	c.logger.Debug("registered", "id", info.ID, "scope", info.Scope, "version", info.Version)
	return c.remember(link, info), nil
}

// GetRegistration returns the newest known registration.
func (c *Container) GetRegistration(ctx context.Context) (ports.Registration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.newest == nil {
		return nil, domain.ErrNotRegistered
	}
	return c.newest, nil
}

// Connect announces this client to the active worker and waits for the ACK.
func (c *Container) Connect(ctx context.Context, forceReload bool) (ports.Registration, error) {
	link, id := c.current()
	if link == nil {
		return nil, domain.ErrNotRegistered
	}

	info, err := c.exchangeInfo(ctx, link, domain.Envelope{
		Action: domain.ActionConnect,
		Force:  forceReload,
		ID:     id,
	})
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return c.remember(link, info), nil
}

// Disconnect notifies the worker without waiting for a reply. Failures are logged.
func (c *Container) Disconnect(ctx context.Context) {
	link, id := c.current()
	if link == nil {
		return
	}
	if err := link.PostMessage(ctx, domain.Envelope{Action: domain.ActionDisconnect, ID: id}); err != nil {
		c.logger.Debug("disconnect notification dropped", "err", err)
	}
}

// AddMessageListener registers fn for messages pushed by the worker.
func (c *Container) AddMessageListener(fn message.Listener) func() {
	return c.inbound.AddMessageListener(fn)
}

// AddControllerChangeListener registers fn for controller handoffs.
// Notifications are delivered one at a time, in order.
func (c *Container) AddControllerChangeListener(fn func()) func() {
	return c.changes.AddMessageListener(func(message.Message) { fn() })
}

// Close detaches from the link and stops delivery to listeners.
func (c *Container) Close() error {
	c.mu.Lock()
	link, detach := c.link, c.detach
	c.link, c.detach = nil, nil
	c.mu.Unlock()

	if detach != nil {
		detach()
	}
	c.inbound.Close()
	c.changes.Close()

	switch l := link.(type) {
	case interface{ Close() error }:
		return l.Close()
	case interface{ Close() }:
		l.Close()
	}
	return nil
}

func (c *Container) dial(ctx context.Context, scope string) (message.Link, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.link != nil {
		return c.link, nil
	}

	link, err := c.dialer.Dial(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to dial worker: %w", err)
	}
	c.link = link
	c.detach = link.AddMessageListener(c.route)
	return link, nil
}

func (c *Container) current() (message.Link, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var id string
	if c.newest != nil {
		id = c.newest.info.ID
	}
	return c.link, id
}

func (c *Container) remember(link message.Link, info domain.RegistrationInfo) *Registration {
	reg := &Registration{c: c, link: link, info: info}
	c.mu.Lock()
	c.newest = reg
	c.mu.Unlock()
	return reg
}

// route splits worker pushes into controller changes and everything else.
func (c *Container) route(msg message.Message) {
	env, err := domain.DecodeEnvelope(msg.Data)
	if err == nil && env.Action == domain.ActionControllerChange && len(msg.Ports) == 0 {
		c.logger.Debug("controller change received")
		_ = c.changes.Dispatch(msg)
		return
	}
	_ = c.inbound.Dispatch(msg)
}

func (c *Container) send(ctx context.Context, target message.Target, req domain.Envelope) (domain.Envelope, error) {
	opts := []message.SendOption{message.WithTimeout(c.timeout)}
	if c.observer != nil {
		opts = append(opts, message.WithObserver(c.observer))
	}

	reply, err := message.Send(ctx, target, req, opts...)
	if err != nil {
		return domain.Envelope{}, err
	}
	return domain.DecodeEnvelope(reply)
}

func (c *Container) exchangeInfo(ctx context.Context, target message.Target, req domain.Envelope) (domain.RegistrationInfo, error) {
	reply, err := c.send(ctx, target, req)
	if err != nil {
		return domain.RegistrationInfo{}, err
	}
	if reply.Action != domain.ActionAck {
		return domain.RegistrationInfo{}, fmt.Errorf("%w: %s", domain.ErrUnexpectedReply, reply.Action)
	}
	return domain.DecodeRegistrationInfo(reply.Result)
}
