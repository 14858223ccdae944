package message

import "context"

// PipeEnd is one side of an in-process Link created by Pipe.
type PipeEnd struct {
	inbound *Bus
	peer    *PipeEnd
}

// Pipe returns two connected links. What one end posts, the other end's
// listeners receive.
func Pipe() (*PipeEnd, *PipeEnd) {
	a := &PipeEnd{inbound: NewBus()}
	b := &PipeEnd{inbound: NewBus()}
	a.peer = b
	b.peer = a
	return a, b
}

// PostMessage delivers data to the other end.
func (e *PipeEnd) PostMessage(ctx context.Context, data any, ports ...*Port) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.peer.inbound.Dispatch(Message{Data: data, Ports: ports})
}

// AddMessageListener registers fn for messages posted by the other end.
func (e *PipeEnd) AddMessageListener(fn Listener) func() {
	return e.inbound.AddMessageListener(fn)
}

// Close stops delivery to this end.
func (e *PipeEnd) Close() {
	e.inbound.Close()
}
