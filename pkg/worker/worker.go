// Package worker is the worker-side counterpart of the control plane. It
// answers registration and connect requests from clients, announces
// controller handoffs and reaches each client's storage service.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/servicemocker/internal/logging"
	"github.com/aretw0/servicemocker/pkg/domain"
	"github.com/aretw0/servicemocker/pkg/message"
	"github.com/aretw0/servicemocker/pkg/registry"
	"github.com/google/uuid"
)

// ErrUnknownClient is returned when no client is attached under the given id.
var ErrUnknownClient = errors.New("unknown client")

// ErrUnknownRegistration is returned when a request names a registration the worker does not hold.
var ErrUnknownRegistration = errors.New("unknown registration")

// ClientInfo describes an attached client.
type ClientInfo struct {
	ID             string `json:"id"`
	RegistrationID string `json:"registration_id,omitempty"`
	Connected      bool   `json:"connected"`
}

type client struct {
	id             string
	link           message.Link
	registrationID string
	connected      bool
	detach         func()
}

type clientKey struct{}

// Worker holds registrations and the clients attached to it.
type Worker struct {
	logger   *slog.Logger
	timeout  time.Duration
	observer message.Observer
	handlers *registry.Registry

	mu            sync.Mutex
	version       int
	registrations map[string]*domain.RegistrationInfo
	clients       map[string]*client
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

// WithTimeout bounds storage exchanges with clients (default message.DefaultTimeout).
func WithTimeout(d time.Duration) Option {
	return func(w *Worker) {
		w.timeout = d
	}
}

// WithObserver reports every storage exchange outcome to o.
func WithObserver(o message.Observer) Option {
	return func(w *Worker) {
		w.observer = o
	}
}

// New creates a Worker at version 1.
func New(opts ...Option) *Worker {
	w := &Worker{
		logger:        logging.NewNop(),
		timeout:       message.DefaultTimeout,
		handlers:      registry.NewRegistry(),
		version:       1,
		registrations: make(map[string]*domain.RegistrationInfo),
		clients:       make(map[string]*client),
	}
	for _, opt := range opts {
		opt(w)
	}

	w.handlers.Register(domain.ActionRegister, w.handleRegister)
	w.handlers.Register(domain.ActionUnregister, w.handleUnregister)
	w.handlers.Register(domain.ActionUpdate, w.handleUpdate)
	w.handlers.Register(domain.ActionConnect, w.handleConnect)
	w.handlers.Register(domain.ActionDisconnect, w.handleDisconnect)
	return w
}

// Attach starts answering requests arriving on link and returns the client id.
// The returned function detaches the client.
func (w *Worker) Attach(link message.Link) (string, func()) {
	c := &client{id: uuid.NewString(), link: link}

	w.mu.Lock()
	w.clients[c.id] = c
	w.mu.Unlock()

	c.detach = link.AddMessageListener(func(msg message.Message) {
		w.dispatch(c, msg)
	})
	w.logger.Info("client attached", "client", c.id)

	var once sync.Once
	return c.id, func() {
		once.Do(func() {
			c.detach()
			w.mu.Lock()
			delete(w.clients, c.id)
			w.mu.Unlock()
			w.logger.Info("client detached", "client", c.id)
		})
	}
}

// Serve attaches link and blocks until ctx ends or the link reports it is done.
func (w *Worker) Serve(ctx context.Context, link message.Link) error {
	_, detach := w.Attach(link)
	defer detach()

	var linkDone <-chan struct{}
	if d, ok := link.(interface{ Done() <-chan struct{} }); ok {
		linkDone = d.Done()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-linkDone:
		return nil
	}
}

// Activate installs a new worker version and tells every connected client
// that a new controller took over. It returns the new version.
func (w *Worker) Activate(ctx context.Context) (int, error) {
	w.mu.Lock()
	w.version++
	version := w.version
	for _, reg := range w.registrations {
		reg.Version = version
	}
	targets := make([]*client, 0, len(w.clients))
	for _, c := range w.clients {
		if c.connected {
			targets = append(targets, c)
		}
	}
	w.mu.Unlock()

	var errs []error
	for _, c := range targets {
		if err := c.link.PostMessage(ctx, domain.Envelope{Action: domain.ActionControllerChange}); err != nil {
			errs = append(errs, fmt.Errorf("client %s: %w", c.id, err))
		}
	}
	w.logger.Info("worker activated", "version", version, "notified", len(targets)-len(errs))
	return version, errors.Join(errs...)
}

// Version returns the active worker version.
func (w *Worker) Version() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.version
}

// Clients lists attached clients ordered by id.
func (w *Worker) Clients() []ClientInfo {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]ClientInfo, 0, len(w.clients))
	for _, c := range w.clients {
		out = append(out, ClientInfo{ID: c.id, RegistrationID: c.registrationID, Connected: c.connected})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Storage returns a store backed by the storage service of client id.
func (w *Worker) Storage(id string) (*RemoteStorage, error) {
	w.mu.Lock()
	c, ok := w.clients[id]
	w.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClient, id)
	}

	opts := []message.SendOption{message.WithTimeout(w.timeout)}
	if w.observer != nil {
		opts = append(opts, message.WithObserver(w.observer))
	}
	return &RemoteStorage{target: c.link, opts: opts}, nil
}

func (w *Worker) dispatch(c *client, msg message.Message) {
	// The worker is the only listener on its links, so every reply port
	// is released here, answered or not.
	defer func() {
		for _, p := range msg.Ports {
			p.Close()
		}
	}()

	req, err := domain.DecodeEnvelope(msg.Data)
	if err != nil {
		return
	}

	fn, ok := w.handlers.Lookup(req.Action)
	if !ok {
		return
	}

	ctx := context.WithValue(context.Background(), clientKey{}, c)
	result, err := fn(ctx, req)
	if len(msg.Ports) == 0 {
		return
	}

	reply := domain.Ack(req.Action, result)
	if err != nil {
		w.logger.Warn("request failed", "client", c.id, "action", req.Action, "err", err)
		reply = domain.Failure(req.Action, err)
	}
	if err := msg.Ports[0].Post(ctx, reply); err != nil {
		w.logger.Debug("reply dropped", "client", c.id, "action", req.Action, "err", err)
	}
}

func clientFrom(ctx context.Context) *client {
	c, _ := ctx.Value(clientKey{}).(*client)
	return c
}
