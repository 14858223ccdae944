package message

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/servicemocker/pkg/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTimeout bounds an exchange when no WithTimeout option is given.
const DefaultTimeout = 3 * time.Second

// ErrTimeout is wrapped by the error returned when no reply arrives in time.
var ErrTimeout = errors.New("messaging timeout")

// Exchange outcomes reported to an Observer.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeTimeout  = "timeout"
	OutcomeCanceled = "canceled"
)

// Observer is notified once per settled exchange.
type Observer interface {
	ObserveExchange(outcome string, elapsed time.Duration)
}

// ReplyError is returned when the remote side replied with an error marker.
// Reply holds the reply payload exactly as received.
type ReplyError struct {
	Reply any
}

func (e *ReplyError) Error() string {
	switch r := e.Reply.(type) {
	case interface{ ErrorText() string }:
		return "remote error: " + r.ErrorText()
	case map[string]any:
		return fmt.Sprintf("remote error: %v", r["error"])
	default:
		return fmt.Sprintf("remote error: %v", r)
	}
}

type sendConfig struct {
	timeout  time.Duration
	observer Observer
}

// SendOption configures a single exchange.
type SendOption func(*sendConfig)

// WithTimeout overrides DefaultTimeout. Zero disables the deadline.
func WithTimeout(d time.Duration) SendOption {
	return func(c *sendConfig) {
		c.timeout = d
	}
}

// WithObserver reports the exchange outcome to o.
func WithObserver(o Observer) SendOption {
	return func(c *sendConfig) {
		c.observer = o
	}
}

var tracer = otel.Tracer("github.com/aretw0/servicemocker/pkg/message")

// Send posts msg to target along with a fresh reply port and waits for exactly one reply.
//
// Both halves of the channel are closed however the exchange settles, so a
// reply arriving after the deadline is rejected by the closed port.
func Send(ctx context.Context, target Target, msg any, opts ...SendOption) (any, error) {
	cfg := sendConfig{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, span := tracer.Start(ctx, "message.Send", trace.WithAttributes(
		attribute.Int64("message.timeout_ms", cfg.timeout.Milliseconds()),
	))
	defer span.End()

	start := time.Now()
	reply, err := exchange(ctx, target, msg, cfg.timeout)

	outcome := outcomeOf(err)
	span.SetAttributes(attribute.String("message.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if cfg.observer != nil {
		cfg.observer.ObserveExchange(outcome, time.Since(start))
	}
	return reply, err
}

func exchange(ctx context.Context, target Target, msg any, timeout time.Duration) (any, error) {
	local, remote := NewChannel()
	defer func() {
		local.Close()
		remote.Close()
	}()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, timeout, timeoutError(msg))
		defer cancel()
	}

	var err error
	if self, ok := target.(SelfTarget); ok {
		err = self.PostMessageTo(ctx, msg, domain.WildcardOrigin, remote)
	} else {
		err = target.PostMessage(ctx, msg, remote)
	}
	if err != nil {
		return nil, settleError(ctx, fmt.Errorf("failed to post message: %w", err))
	}

	reply, err := local.Recv(ctx)
	if err != nil {
		return nil, settleError(ctx, err)
	}

	if faulted(reply.Data) {
		return nil, &ReplyError{Reply: reply.Data}
	}
	return reply.Data, nil
}

// settleError prefers the timeout cause over a bare deadline error.
func settleError(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); cause != nil && errors.Is(cause, ErrTimeout) {
		return cause
	}
	return err
}

func timeoutError(msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		payload = []byte(fmt.Sprintf("%v", msg))
	}
	return fmt.Errorf("%w: %s", ErrTimeout, payload)
}

func faulted(data any) bool {
	switch v := data.(type) {
	case interface{ Faulted() bool }:
		return v.Faulted()
	case map[string]any:
		if v["action"] == string(domain.ActionFailed) {
			return true
		}
		e, ok := v["error"]
		if !ok || e == nil {
			return false
		}
		if s, isString := e.(string); isString {
			return s != ""
		}
		return true
	}
	return false
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrTimeout):
		return OutcomeTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	default:
		return OutcomeError
	}
}
