package servicemocker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/servicemocker/internal/logging"
	"github.com/aretw0/servicemocker/pkg/domain"
	"github.com/aretw0/servicemocker/pkg/message"
	"github.com/aretw0/servicemocker/pkg/ports"
	"github.com/aretw0/servicemocker/pkg/storage"
)

// ReadyState tracks the session lifecycle.
type ReadyState int

const (
	StateUninitialized ReadyState = iota
	StatePending
	StateReady
	StateFailed
)

func (s ReadyState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "uninitialized"
	}
}

// disconnectTimeout bounds the best-effort notification sent on unload.
const disconnectTimeout = time.Second

// Subscription is returned by OnUpdate.
type Subscription struct {
	remove func()
}

// Remove unregisters the listener. Calling it again is a no-op.
func (s *Subscription) Remove() {
	if s != nil && s.remove != nil {
		s.remove()
	}
}

type listenerEntry struct {
	fn UpdateListener
}

// readyHandle settles once, with the registration.
type readyHandle struct {
	done chan struct{}
	reg  ports.Registration
}

func (h *readyHandle) resolve(reg ports.Registration) {
	h.reg = reg
	close(h.done)
}

func (h *readyHandle) wait(ctx context.Context) (ports.Registration, error) {
	select {
	case <-h.done:
		return h.reg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// initResult is the outcome of the one registration a Client performs.
type initResult struct {
	done chan struct{}
	reg  ports.Registration
	err  error
}

// Client is a session in normal mode.
type Client struct {
	host      Host
	container ports.Container
	storage   *storage.Service
	logger    *slog.Logger
	observer  Observer

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	state      ReadyState
	controller message.Target
	listeners  []*listenerEntry
	initRes    *initResult
	ready      *readyHandle
	detach     []func()
}

func newClient(ctx context.Context, host Host, svc *storage.Service, o options) *Client {
	c := &Client{
		host:      host,
		container: host.Container,
		storage:   svc,
		logger:    o.logger,
		observer:  o.observer,
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	return c
}

// Mode implements Session.
func (c *Client) Mode() Mode { return ModeNormal }

// State returns the current lifecycle state.
func (c *Client) State() ReadyState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Controller returns the worker currently controlling the client, or nil
// unless the session is ready.
func (c *Client) Controller() message.Target {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controller
}

// Storage returns the storage service exposed to the worker.
func (c *Client) Storage() *storage.Service {
	return c.storage
}

// OnUpdate registers fn, called after every controller handoff in
// registration order.
func (c *Client) OnUpdate(fn UpdateListener) (*Subscription, error) {
	if fn == nil {
		return nil, domain.ErrInvalidHandler
	}

	entry := &listenerEntry{fn: fn}
	c.mu.Lock()
	c.listeners = append(c.listeners, entry)
	c.mu.Unlock()

	return &Subscription{remove: func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, l := range c.listeners {
			if l == entry {
				c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
				return
			}
		}
	}}, nil
}

// Update asks the container for the newest registration and checks it for a newer worker.
func (c *Client) Update(ctx context.Context) (ports.Registration, error) {
	reg, err := c.container.GetRegistration(ctx)
	if err != nil {
		return nil, err
	}
	return reg.Update(ctx)
}

// GetRegistration waits until the registration succeeded.
//
// A failed registration never settles: the call then returns only when ctx ends.
func (c *Client) GetRegistration(ctx context.Context) (ports.Registration, error) {
	c.mu.Lock()
	h := c.ready
	c.mu.Unlock()
	if h == nil {
		return nil, domain.ErrNotRegistered
	}
	return h.wait(ctx)
}

// Unregister removes the registration. It fails with
// domain.ErrAlreadyUnregistered when the worker had already dropped it.
func (c *Client) Unregister(ctx context.Context) (bool, error) {
	reg, err := c.GetRegistration(ctx)
	if err != nil {
		return false, err
	}

	ok, err := reg.Unregister(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, domain.ErrAlreadyUnregistered
	}
	return true, nil
}

// Close stops following the worker and detaches the storage service.
func (c *Client) Close() error {
	c.cancel()

	c.mu.Lock()
	detach := c.detach
	c.detach = nil
	c.mu.Unlock()

	for _, fn := range detach {
		fn()
	}
	c.storage.Stop()
	return nil
}

// init registers the worker at most once. Later calls return the first result.
func (c *Client) init(path string, opts domain.RegisterOptions) *initResult {
	c.mu.Lock()
	if c.initRes != nil {
		res := c.initRes
		c.mu.Unlock()
		return res
	}
	res := &initResult{done: make(chan struct{})}
	c.initRes = res
	c.state = StatePending
	c.mu.Unlock()

	go func() {
		defer close(res.done)

		reg, err := c.container.Register(c.ctx, path, opts)
		if err != nil {
			res.err = err
			return
		}
		c.autoSyncClient()
		c.handleUnload()
		res.reg = reg
	}()
	return res
}

// setReady settles the ready handle from res. Only the first call counts.
func (c *Client) setReady(res *initResult) {
	c.mu.Lock()
	if c.ready != nil {
		c.mu.Unlock()
		return
	}
	h := &readyHandle{done: make(chan struct{})}
	c.ready = h
	c.mu.Unlock()

	go func() {
		<-res.done

		if res.err != nil {
			c.mu.Lock()
			c.controller = nil
			c.state = StateFailed
			c.mu.Unlock()
			c.logger.Error("mocker initialization failed", "err", res.err)
			return
		}

		c.mu.Lock()
		c.controller = res.reg.Active()
		c.state = StateReady
		c.mu.Unlock()
		h.resolve(res.reg)
	}()
}

func (c *Client) autoSyncClient() {
	remove := c.container.AddControllerChangeListener(c.handleControllerChange)
	c.mu.Lock()
	if c.ctx.Err() != nil {
		// Closed while registering: Close has already run the detach list.
		c.mu.Unlock()
		remove()
		return
	}
	c.detach = append(c.detach, remove)
	c.mu.Unlock()
}

// handleControllerChange reconnects to the new worker and notifies every
// update listener, in order, with the outcome.
func (c *Client) handleControllerChange() {
	c.mu.Lock()
	c.state = StatePending
	c.controller = nil
	c.mu.Unlock()

	reg, err := c.container.Connect(c.ctx, true)

	c.mu.Lock()
	if err == nil {
		c.controller = reg.Active()
		c.state = StateReady
	} else {
		reg = nil
		c.state = StateFailed
	}
	listeners := make([]*listenerEntry, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	log := c.logger.With("scope", "update")
	if err == nil {
		log.Warn(logging.Highlight("mocker updated, reload your requests to take effect", logging.Crimson))
	} else {
		log.Error("connecting to new mocker failed", "err", err)
	}
	if c.observer != nil {
		c.observer.ObserveControllerChange(err)
	}

	for _, l := range listeners {
		l.fn(err, reg)
	}
}

// handleUnload sends a best-effort disconnect when the host goes away.
func (c *Client) handleUnload() {
	if c.host.Unload == nil {
		return
	}

	go func() {
		select {
		case <-c.host.Unload:
		case <-c.ctx.Done():
			return
		}

		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), disconnectTimeout)
		defer cancel()
		c.container.Disconnect(ctx)
	}()
}
