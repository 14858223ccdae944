package worker

import (
	"context"

	"github.com/aretw0/servicemocker/pkg/domain"
	"github.com/aretw0/servicemocker/pkg/message"
)

// RemoteStorage reaches a client's storage service. It implements ports.KVStore.
type RemoteStorage struct {
	target message.Target
	opts   []message.SendOption
}

// Get returns the value the client stores under key.
func (s *RemoteStorage) Get(ctx context.Context, key string) (any, error) {
	return s.call(ctx, domain.Envelope{Action: domain.ActionGetStorage, Key: key})
}

// Set stores value under key on the client.
func (s *RemoteStorage) Set(ctx context.Context, key string, value any) (any, error) {
	return s.call(ctx, domain.Envelope{Action: domain.ActionSetStorage, Key: key, Value: value})
}

// Remove deletes key on the client.
func (s *RemoteStorage) Remove(ctx context.Context, key string) error {
	_, err := s.call(ctx, domain.Envelope{Action: domain.ActionRemoveStorage, Key: key})
	return err
}

// Clear empties the client's storage namespace.
func (s *RemoteStorage) Clear(ctx context.Context) error {
	_, err := s.call(ctx, domain.Envelope{Action: domain.ActionClearStorage})
	return err
}

func (s *RemoteStorage) call(ctx context.Context, req domain.Envelope) (any, error) {
	reply, err := message.Send(ctx, s.target, req, s.opts...)
	if err != nil {
		return nil, err
	}
	env, err := domain.DecodeEnvelope(reply)
	if err != nil {
		return nil, err
	}
	return env.Result, nil
}
