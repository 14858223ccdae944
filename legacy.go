package servicemocker

import (
	"context"
	"sync"

	"github.com/aretw0/servicemocker/pkg/domain"
	"github.com/aretw0/servicemocker/pkg/message"
	"github.com/aretw0/servicemocker/pkg/ports"
	"github.com/aretw0/servicemocker/pkg/storage"
	"github.com/google/uuid"
)

// LegacyClient is the session used when the host cannot register workers.
// The worker contract is served from the client's own context, so there
// are no controller handoffs and update listeners are never called.
type LegacyClient struct {
	path    string
	storage *storage.Service
	reg     *legacyRegistration
}

func newLegacyClient(path string, host Host, svc *storage.Service, o options) *LegacyClient {
	scope := o.register.Scope
	if scope == "" {
		scope = domain.DefaultScope
	}
	return &LegacyClient{
		path:    path,
		storage: svc,
		reg: &legacyRegistration{
			id:    uuid.NewString(),
			scope: scope,
			self:  host.Self,
		},
	}
}

// Mode implements Session.
func (c *LegacyClient) Mode() Mode { return ModeLegacy }

// Path returns the script path the session was created for.
func (c *LegacyClient) Path() string { return c.path }

// Storage returns the storage service, listening on the client's own context.
func (c *LegacyClient) Storage() *storage.Service { return c.storage }

// OnUpdate validates fn. Legacy sessions never hand off, so fn is never called.
func (c *LegacyClient) OnUpdate(fn UpdateListener) (*Subscription, error) {
	if fn == nil {
		return nil, domain.ErrInvalidHandler
	}
	return &Subscription{}, nil
}

// Update returns the session's registration.
func (c *LegacyClient) Update(ctx context.Context) (ports.Registration, error) {
	return c.reg, nil
}

// GetRegistration returns the session's registration.
func (c *LegacyClient) GetRegistration(ctx context.Context) (ports.Registration, error) {
	return c.reg, nil
}

// Unregister removes the registration. The second call fails with
// domain.ErrAlreadyUnregistered.
func (c *LegacyClient) Unregister(ctx context.Context) (bool, error) {
	ok, err := c.reg.Unregister(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, domain.ErrAlreadyUnregistered
	}
	return true, nil
}

// Close detaches the storage service.
func (c *LegacyClient) Close() error {
	c.storage.Stop()
	return nil
}

// legacyRegistration stands in for a worker registration in legacy mode.
type legacyRegistration struct {
	id    string
	scope string
	self  *message.Bus

	mu      sync.Mutex
	removed bool
}

func (r *legacyRegistration) ID() string    { return r.id }
func (r *legacyRegistration) Scope() string { return r.scope }

// Active is the client's own context.
func (r *legacyRegistration) Active() message.Target { return r.self }

func (r *legacyRegistration) Unregister(ctx context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.removed {
		return false, nil
	}
	r.removed = true
	return true, nil
}

func (r *legacyRegistration) Update(ctx context.Context) (ports.Registration, error) {
	return r, nil
}
