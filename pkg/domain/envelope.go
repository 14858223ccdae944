package domain

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Envelope is the wire shape of every request and reply.
// Unused fields are omitted on the wire.
type Envelope struct {
	Action  Action `json:"action" mapstructure:"action"`
	Key     string `json:"key,omitempty" mapstructure:"key"`
	Value   any    `json:"value,omitempty" mapstructure:"value"`
	Result  any    `json:"result,omitempty" mapstructure:"result"`
	Error   string `json:"error,omitempty" mapstructure:"error"`
	Request Action `json:"request,omitempty" mapstructure:"request"`
	Scope   string `json:"scope,omitempty" mapstructure:"scope"`
	Force   bool   `json:"force,omitempty" mapstructure:"force"`
	ID      string `json:"id,omitempty" mapstructure:"id"`
}

// Faulted reports whether the envelope carries an error marker.
// A FAILED reply is faulted even when its error text is empty.
func (e Envelope) Faulted() bool {
	return e.Error != "" || e.Action == ActionFailed
}

// ErrorText returns the remote error message, if any.
func (e Envelope) ErrorText() string {
	return e.Error
}

// Success builds the reply for a handled request.
func Success(request Action, result any) Envelope {
	return Envelope{
		Action:  ActionSuccess,
		Result:  result,
		Request: request,
	}
}

// Failure builds the reply for a request whose handler failed.
func Failure(request Action, err error) Envelope {
	msg := "unknown error"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return Envelope{
		Action:  ActionFailed,
		Error:   msg,
		Request: request,
	}
}

// Ack builds an acknowledgment reply.
func Ack(request Action, result any) Envelope {
	return Envelope{
		Action:  ActionAck,
		Result:  result,
		Request: request,
	}
}

// DecodeEnvelope converts inbound message data into an Envelope.
// Data that crossed a serializing transport arrives as a generic map.
func DecodeEnvelope(data any) (Envelope, error) {
	switch v := data.(type) {
	case Envelope:
		return v, nil
	case *Envelope:
		if v == nil {
			return Envelope{}, ErrInvalidEnvelope
		}
		return *v, nil
	case map[string]any:
		var env Envelope
		if err := Decode(v, &env); err != nil {
			return Envelope{}, err
		}
		return env, nil
	default:
		return Envelope{}, fmt.Errorf("%w: unsupported payload %T", ErrInvalidEnvelope, data)
	}
}

// Decode maps a generic value (typically a JSON-decoded map) onto target.
func Decode(input any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(input); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	return nil
}
