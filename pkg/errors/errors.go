package errors

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrEndpointNotFound = errors.New("endpoint not found")
	ErrEmptyRunID       = errors.New("empty run ID")
	ErrInvalidData      = errors.New("invalid data type")
	ErrSessionActive    = errors.New("a training session is already active")
	ErrNoSession        = errors.New("no training session")
	ErrNotFailed        = errors.New("retry is only valid from the Failed state")
	ErrTerminalState    = errors.New("session is already in a terminal state")
	ErrForceDisabled    = errors.New("force-ready is disabled")
)
