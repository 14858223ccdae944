package ports

import (
	"context"

	"github.com/aretw0/servicemocker/pkg/domain"
	"github.com/aretw0/servicemocker/pkg/message"
)

// Registration is a handle on an installed worker.
type Registration interface {
	// ID identifies the registration on the worker side.
	ID() string

	// Scope is the scope the registration controls.
	Scope() string

	// Active is the worker currently controlling the scope, or nil.
	Active() message.Target

	// Unregister removes the registration. It reports false when it was already gone.
	Unregister(ctx context.Context) (bool, error)

	// Update checks the worker for a newer version and returns the resulting registration.
	Update(ctx context.Context) (Registration, error)
}

// Registrar installs a worker for a script path.
type Registrar interface {
	Register(ctx context.Context, path string, opts domain.RegisterOptions) (Registration, error)

	// GetRegistration returns the newest known registration.
	GetRegistration(ctx context.Context) (Registration, error)
}

// Connector performs the connect handshake and the teardown notification.
type Connector interface {
	// Connect announces the client to the active worker and waits for its acknowledgment.
	Connect(ctx context.Context, forceReload bool) (Registration, error)

	// Disconnect notifies the worker without waiting for a reply.
	Disconnect(ctx context.Context)
}

// ControllerChangeSource notifies when a new worker takes control.
type ControllerChangeSource interface {
	AddControllerChangeListener(fn func()) (remove func())
}

// Container is the client-side view of the worker runtime.
// It is also the source of messages pushed by the worker.
type Container interface {
	Registrar
	Connector
	ControllerChangeSource
	message.Source
}

// Dialer opens a link to a worker for a given scope.
type Dialer interface {
	Dial(ctx context.Context, scope string) (message.Link, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, scope string) (message.Link, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, scope string) (message.Link, error) {
	return f(ctx, scope)
}
