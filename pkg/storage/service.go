// Package storage exposes a key/value store to the worker as a request/response service.
package storage

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/aretw0/servicemocker/internal/logging"
	"github.com/aretw0/servicemocker/pkg/domain"
	"github.com/aretw0/servicemocker/pkg/message"
	"github.com/aretw0/servicemocker/pkg/ports"
	"github.com/aretw0/servicemocker/pkg/registry"
)

// ErrNoSource is returned by Start when the source for the selected mode is missing.
var ErrNoSource = errors.New("no message source for the selected mode")

// Sources are the inbound message sources the service may listen on.
type Sources struct {
	// Worker carries messages pushed by the worker (normal mode).
	Worker message.Source
	// Self carries messages posted in the client's own context (legacy mode).
	Self message.Source
}

// Observer records handled requests.
type Observer interface {
	ObserveStorage(action, status string)
}

// Service answers GET/SET/REMOVE/CLEAR_STORAGE requests against a KVStore.
type Service struct {
	store    ports.KVStore
	sources  Sources
	handlers *registry.Registry
	logger   *slog.Logger
	observer Observer

	mu        sync.Mutex
	activated bool
	detach    func()
	ctx       context.Context
	cancel    context.CancelFunc
	inflight  sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithObserver reports every handled request to o.
func WithObserver(o Observer) Option {
	return func(s *Service) {
		s.observer = o
	}
}

// NewService creates a Service over store. The store is shared, so one
// instance should be constructed per process and passed in.
func NewService(store ports.KVStore, sources Sources, opts ...Option) *Service {
	s := &Service{
		store:    store,
		sources:  sources,
		handlers: registry.NewRegistry(),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.handlers.Register(domain.ActionGetStorage, func(ctx context.Context, req domain.Envelope) (any, error) {
		return s.Get(ctx, req.Key)
	})
	s.handlers.Register(domain.ActionSetStorage, func(ctx context.Context, req domain.Envelope) (any, error) {
		return s.Set(ctx, req.Key, req.Value)
	})
	s.handlers.Register(domain.ActionRemoveStorage, func(ctx context.Context, req domain.Envelope) (any, error) {
		return nil, s.Remove(ctx, req.Key)
	})
	s.handlers.Register(domain.ActionClearStorage, func(ctx context.Context, _ domain.Envelope) (any, error) {
		return nil, s.Clear(ctx)
	})
	return s
}

// Get returns the value stored under key, or nil when absent.
func (s *Service) Get(ctx context.Context, key string) (any, error) {
	return s.store.Get(ctx, key)
}

// Set stores value under key and returns the stored value.
func (s *Service) Set(ctx context.Context, key string, value any) (any, error) {
	return s.store.Set(ctx, key, value)
}

// Remove deletes key.
func (s *Service) Remove(ctx context.Context, key string) error {
	return s.store.Remove(ctx, key)
}

// Clear deletes every key of the namespace.
func (s *Service) Clear(ctx context.Context) error {
	return s.store.Clear(ctx)
}

// Start subscribes the request handler. In legacy mode it listens on the
// client's own context, otherwise on the worker source. Calling Start
// again is a no-op.
func (s *Service) Start(useLegacy bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activated {
		return nil
	}

	source := s.sources.Worker
	if useLegacy {
		source = s.sources.Self
	}
	if source == nil {
		return ErrNoSource
	}

	s.activated = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.detach = source.AddMessageListener(s.handle)
	s.logger.Debug("storage service started", "legacy", useLegacy)
	return nil
}

// Stop detaches the handler and waits for in-flight requests.
func (s *Service) Stop() {
	s.mu.Lock()
	detach, cancel := s.detach, s.cancel
	s.detach, s.cancel, s.ctx = nil, nil, nil
	s.mu.Unlock()

	if detach != nil {
		detach()
	}
	s.inflight.Wait()
	if cancel != nil {
		cancel()
	}
}

func (s *Service) handle(msg message.Message) {
	if len(msg.Ports) == 0 {
		return
	}

	req, err := domain.DecodeEnvelope(msg.Data)
	if err != nil {
		s.logger.Debug("ignoring undecodable message", "err", err)
		return
	}

	fn, ok := s.handlers.Lookup(req.Action)
	if !ok {
		return
	}

	s.mu.Lock()
	ctx := s.ctx
	if ctx == nil {
		s.mu.Unlock()
		return
	}
	s.inflight.Add(1)
	s.mu.Unlock()

	reply := msg.Ports[0]
	go func() {
		defer s.inflight.Done()
		s.serve(ctx, fn, req, reply)
	}()
}

func (s *Service) serve(ctx context.Context, fn registry.HandlerFunc, req domain.Envelope, reply *message.Port) {
	defer reply.Close()

	result, err := fn(ctx, req)

	var resp domain.Envelope
	if err != nil {
		s.logger.Warn("storage request failed", "action", req.Action, "key", req.Key, "err", err)
		resp = domain.Failure(req.Action, err)
	} else {
		resp = domain.Success(req.Action, result)
	}

	if s.observer != nil {
		s.observer.ObserveStorage(req.Action.String(), resp.Action.String())
	}

	if err := reply.Post(ctx, resp); err != nil {
		s.logger.Debug("storage reply dropped", "action", req.Action, "err", err)
	}
}
