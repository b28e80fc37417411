package domain

import "errors"

var (
	// ErrInvalidTargetType is returned when a target is built with an unsupported kind.
	// It is fatal to scan setup.
	ErrInvalidTargetType = errors.New("invalid target type")
	// ErrEmptyTarget is returned for a blank target value
	ErrEmptyTarget = errors.New("empty target value")
	// ErrMissingSource is returned when a non-root event has no source event
	ErrMissingSource = errors.New("event has no source event")
	// ErrEmptyEventType is returned when an event is built without a type
	ErrEmptyEventType = errors.New("event type is empty")
)
