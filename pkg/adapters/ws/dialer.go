package ws

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/aretw0/servicemocker/pkg/message"
	"github.com/gorilla/websocket"
)

// Dialer connects clients to a worker endpoint. It implements ports.Dialer.
type Dialer struct {
	// URL of the worker websocket endpoint, e.g. ws://localhost:8089/ws.
	URL    string
	Header http.Header
	Logger *slog.Logger
}

// Dial opens a link for scope. The scope travels as a query parameter.
func (d Dialer) Dial(ctx context.Context, scope string) (message.Link, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid worker url: %w", err)
	}
	q := u.Query()
	q.Set("scope", scope)
	u.RawQuery = q.Encode()

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("ws dial %s: %w (status %d)", u.Redacted(), err, resp.StatusCode)
		}
		return nil, fmt.Errorf("ws dial %s: %w", u.Redacted(), err)
	}

	var opts []Option
	if d.Logger != nil {
		opts = append(opts, WithLogger(d.Logger))
	}
	return NewConn(ws, opts...), nil
}

// ServeFunc handles one accepted connection. The connection is closed when it returns.
type ServeFunc func(ctx context.Context, conn *Conn)

// Handler upgrades requests to websocket links and hands them to serve.
func Handler(serve ServeFunc, opts ...Option) http.Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote the HTTP error.
			return
		}

		conn := NewConn(ws, opts...)
		defer conn.Close()
		serve(r.Context(), conn)
	})
}
