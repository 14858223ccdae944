package domain

import "errors"

// ErrInvalidHandler is returned when an update handler is nil.
var ErrInvalidHandler = errors.New("handler must be a function")

// ErrAlreadyUnregistered is returned when removing a registration that is already gone.
var ErrAlreadyUnregistered = errors.New("this service worker has already been unregistered, you may need to close all relative tabs to remove it")

// ErrNotRegistered is returned when an operation needs a registration and none exists yet.
var ErrNotRegistered = errors.New("no active registration")

// ErrUnexpectedReply is returned when a reply does not carry the expected action.
var ErrUnexpectedReply = errors.New("unexpected reply")

// ErrInvalidEnvelope is returned when inbound data cannot be decoded as an Envelope.
var ErrInvalidEnvelope = errors.New("invalid envelope")
