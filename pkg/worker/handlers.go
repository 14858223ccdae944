package worker

import (
	"context"
	"fmt"

	"github.com/aretw0/servicemocker/pkg/domain"
	"github.com/google/uuid"
)

func (w *Worker) handleRegister(ctx context.Context, req domain.Envelope) (any, error) {
	if req.Key == "" {
		return nil, fmt.Errorf("register: script path is required")
	}
	scope := req.Scope
	if scope == "" {
		scope = domain.DefaultScope
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	// One registration per scope; registering again replaces the script.
	var reg *domain.RegistrationInfo
	for _, r := range w.registrations {
		if r.Scope == scope {
			reg = r
			break
		}
	}
	if reg == nil {
		reg = &domain.RegistrationInfo{ID: uuid.NewString(), Scope: scope}
		w.registrations[reg.ID] = reg
	}
	reg.Script = req.Key
	reg.Version = w.version

	if c := clientFrom(ctx); c != nil {
		c.registrationID = reg.ID
		c.connected = true
	}
	w.logger.Info("registered", "id", reg.ID, "scope", scope, "script", req.Key)
	return *reg, nil
}

func (w *Worker) handleUnregister(ctx context.Context, req domain.Envelope) (any, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := w.resolveID(ctx, req)
	if _, ok := w.registrations[id]; !ok {
		return false, nil
	}
	delete(w.registrations, id)
	for _, c := range w.clients {
		if c.registrationID == id {
			c.registrationID = ""
			c.connected = false
		}
	}
	w.logger.Info("unregistered", "id", id)
	return true, nil
}

func (w *Worker) handleUpdate(ctx context.Context, req domain.Envelope) (any, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	reg, ok := w.registrations[w.resolveID(ctx, req)]
	if !ok {
		return nil, ErrUnknownRegistration
	}
	return *reg, nil
}

func (w *Worker) handleConnect(ctx context.Context, req domain.Envelope) (any, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	reg, ok := w.registrations[w.resolveID(ctx, req)]
	if !ok {
		return nil, ErrUnknownRegistration
	}
	if c := clientFrom(ctx); c != nil {
		c.registrationID = reg.ID
		c.connected = true
		w.logger.Debug("client connected", "client", c.id, "force", req.Force)
	}
	return *reg, nil
}

func (w *Worker) handleDisconnect(ctx context.Context, _ domain.Envelope) (any, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if c := clientFrom(ctx); c != nil {
		c.connected = false
		w.logger.Debug("client disconnected", "client", c.id)
	}
	return nil, nil
}

// resolveID prefers the id named in the request over the client's own registration.
// Callers hold w.mu.
func (w *Worker) resolveID(ctx context.Context, req domain.Envelope) string {
	if req.ID != "" {
		return req.ID
	}
	if c := clientFrom(ctx); c != nil {
		return c.registrationID
	}
	return ""
}
