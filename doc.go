/*
Package servicemocker is the client side of a mocking worker's control plane.

A client negotiates a session with a background worker that intercepts and
mocks network traffic, follows controller handoffs when a new worker version
takes over, and exposes a key/value store the worker can reach through the
request/response protocol in pkg/message.

# Concept

The worker runtime is reached through a ports.Container (pkg/container
provides one over any message.Link). The Host describes the environment the
client runs in. When the host cannot register workers, or the context is not
secure, the session falls back to legacy mode and serves the worker
contract from the client's own context.

	Client ── REGISTER / CONNECT / DISCONNECT ──▶ Worker
	       ◀── CONTROLLER_CHANGE, *_STORAGE ─────

# Usage

	package main

	import (
		"context"
		"log"
		"log/slog"

		"github.com/aretw0/servicemocker"
		"github.com/aretw0/servicemocker/pkg/adapters/ws"
		"github.com/aretw0/servicemocker/pkg/container"
		"github.com/aretw0/servicemocker/pkg/message"
		"github.com/aretw0/servicemocker/pkg/ports"
	)

	func main() {
		ctx := context.Background()

		box := container.New(ws.Dialer{URL: "ws://localhost:8089/ws"})
		defer box.Close()

		session, err := servicemocker.New(ctx, "/mocker.js", servicemocker.Host{
			Protocol:  "https:",
			Hostname:  "localhost",
			Container: box,
			Self:      message.NewBus(),
		})
		if err != nil {
			log.Fatal(err)
		}
		defer session.Close()

		_, _ = session.OnUpdate(func(err error, reg ports.Registration) {
			slog.Info("worker updated", "err", err)
		})

		reg, err := session.GetRegistration(ctx)
		if err != nil {
			log.Fatal(err)
		}
		log.Println("registered", reg.ID())
	}
*/
package servicemocker
