package container

import (
	"context"
	"fmt"

	"github.com/aretw0/servicemocker/pkg/domain"
	"github.com/aretw0/servicemocker/pkg/message"
	"github.com/aretw0/servicemocker/pkg/ports"
)

// Registration is a worker registration held by a Container.
type Registration struct {
	c    *Container
	link message.Link
	info domain.RegistrationInfo
}

// ID implements ports.Registration.
func (r *Registration) ID() string { return r.info.ID }

// Scope implements ports.Registration.
func (r *Registration) Scope() string { return r.info.Scope }

// Version is the worker version that acknowledged this registration.
func (r *Registration) Version() int { return r.info.Version }

// Info returns the registration as reported by the worker.
func (r *Registration) Info() domain.RegistrationInfo { return r.info }

// Active returns the link to the controlling worker.
func (r *Registration) Active() message.Target {
	if r.link == nil {
		return nil
	}
	return r.link
}

// Unregister asks the worker to drop the registration. It reports false
// when the worker no longer knew about it.
func (r *Registration) Unregister(ctx context.Context) (bool, error) {
	reply, err := r.c.send(ctx, r.link, domain.Envelope{
		Action: domain.ActionUnregister,
		ID:     r.info.ID,
		Scope:  r.info.Scope,
	})
	if err != nil {
		return false, fmt.Errorf("unregister: %w", err)
	}

	var removed bool
	if err := domain.Decode(reply.Result, &removed); err != nil {
		return false, fmt.Errorf("unregister: %w", err)
	}
	return removed, nil
}

// Update checks the worker for a newer version.
func (r *Registration) Update(ctx context.Context) (ports.Registration, error) {
	info, err := r.c.exchangeInfo(ctx, r.link, domain.Envelope{
		Action: domain.ActionUpdate,
		ID:     r.info.ID,
		Scope:  r.info.Scope,
	})
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}
	return r.c.remember(r.link, info), nil
}
