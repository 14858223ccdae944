package servicemocker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/servicemocker/internal/logging"
	"github.com/aretw0/servicemocker/pkg/adapters/memory"
	"github.com/aretw0/servicemocker/pkg/domain"
	"github.com/aretw0/servicemocker/pkg/message"
	"github.com/aretw0/servicemocker/pkg/ports"
	"github.com/aretw0/servicemocker/pkg/storage"
)

// Mode is the implementation selected when a session is created.
type Mode int

const (
	// ModeNormal talks to a registered worker through the container.
	ModeNormal Mode = iota
	// ModeLegacy serves the worker contract from the client's own context.
	ModeLegacy
)

func (m Mode) String() string {
	if m == ModeLegacy {
		return "legacy"
	}
	return "normal"
}

// Host describes the environment a session runs in.
type Host struct {
	// Protocol of the page, with or without the trailing colon ("https:", "http").
	Protocol string
	Hostname string

	// Container reaches the worker runtime. Nil when the host cannot register workers.
	Container ports.Container

	// Self is the client's own execution context. A bus is created when nil.
	Self *message.Bus

	// Unload is closed when the client is going away.
	Unload <-chan struct{}
}

// Secure reports whether the host counts as a secure context.
func (h Host) Secure() bool {
	protocol := strings.TrimSuffix(strings.ToLower(h.Protocol), ":")
	return protocol == "https" || h.Hostname == "localhost"
}

// legacy reports whether the session has to fall back to legacy mode,
// warning about the reason.
func (h Host) legacy(logger *slog.Logger) bool {
	if h.Container == nil {
		logger.Warn("worker registration is not supported by this host")
		return true
	}
	if !h.Secure() {
		logger.Warn("workers should be registered from secure contexts", "protocol", h.Protocol, "hostname", h.Hostname)
		return true
	}
	return false
}

// UpdateListener is called after every controller handoff.
// reg is nil when connecting to the new worker failed.
type UpdateListener func(err error, reg ports.Registration)

// Observer records coordinator events.
type Observer interface {
	storage.Observer
	ObserveControllerChange(err error)
}

// Session is the public contract shared by Client and LegacyClient.
type Session interface {
	// OnUpdate registers fn for controller handoffs.
	OnUpdate(fn UpdateListener) (*Subscription, error)
	// Update checks the worker for a newer version.
	Update(ctx context.Context) (ports.Registration, error)
	// GetRegistration waits for the session's registration.
	GetRegistration(ctx context.Context) (ports.Registration, error)
	// Unregister removes the registration.
	Unregister(ctx context.Context) (bool, error)
	Mode() Mode
	Close() error
}

type options struct {
	logger   *slog.Logger
	register domain.RegisterOptions
	store    ports.KVStore
	observer Observer
}

// Option configures a session.
type Option func(*options)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithScope sets the scope the worker is registered for.
func WithScope(scope string) Option {
	return func(o *options) {
		o.register.Scope = scope
	}
}

// WithStore sets the store behind the storage service. The store should be
// created once per process and shared. Defaults to an in-memory store.
func WithStore(store ports.KVStore) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithObserver reports storage requests and controller handoffs to obs.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// New creates a session for the worker script at path.
//
// The mode is chosen once from the host: without a container or a secure
// context a *LegacyClient is returned, otherwise a *Client whose
// registration proceeds in the background (see Client.GetRegistration).
// ctx bounds the session: cancelling it aborts pending work.
func New(ctx context.Context, path string, host Host, opts ...Option) (Session, error) {
	o := options{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.store == nil {
		o.store = memory.NewStore()
	}
	if host.Self == nil {
		host.Self = message.NewBus()
	}

	useLegacy := host.legacy(o.logger)

	var workerSource message.Source
	if host.Container != nil {
		workerSource = host.Container
	}
	storageOpts := []storage.Option{storage.WithLogger(o.logger)}
	if o.observer != nil {
		storageOpts = append(storageOpts, storage.WithObserver(o.observer))
	}
	svc := storage.NewService(o.store, storage.Sources{Worker: workerSource, Self: host.Self}, storageOpts...)
	if err := svc.Start(useLegacy); err != nil {
		return nil, fmt.Errorf("failed to start storage service: %w", err)
	}

	if useLegacy {
		o.logger.Warn("Switching to legacy mode...")
		return newLegacyClient(path, host, svc, o), nil
	}

	c := newClient(ctx, host, svc, o)
	c.setReady(c.init(path, o.register))
	return c, nil
}
