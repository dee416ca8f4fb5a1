package errors

import "errors"

var (
	ErrEmptyTopic         = errors.New("topic key is required")
	ErrMalformedMessage   = errors.New("malformed message")
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrPartialSnapshot    = errors.New("partial snapshot rejected")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrStaleEvent         = errors.New("stale event rejected")
	ErrEntryNotFound      = errors.New("queue entry not found")
)
