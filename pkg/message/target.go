package message

import "context"

// Target accepts a payload together with transferred ports.
type Target interface {
	PostMessage(ctx context.Context, data any, ports ...*Port) error
}

// SelfTarget is a target living in the caller's own execution context.
// Delivery goes through an origin-addressed primitive instead of a direct post.
type SelfTarget interface {
	Target
	PostMessageTo(ctx context.Context, data any, targetOrigin string, ports ...*Port) error
}

// Listener handles one inbound message.
type Listener func(Message)

// Source delivers inbound messages to registered listeners.
type Source interface {
	// AddMessageListener registers fn and returns a function removing it.
	AddMessageListener(fn Listener) (remove func())
}

// Link is one side of a bidirectional connection: what we post to, and
// where the other side's posts arrive.
type Link interface {
	Target
	Source
}

// TargetFunc adapts a function to the Target interface.
type TargetFunc func(ctx context.Context, data any, ports ...*Port) error

// PostMessage calls f.
func (f TargetFunc) PostMessage(ctx context.Context, data any, ports ...*Port) error {
	return f(ctx, data, ports...)
}
