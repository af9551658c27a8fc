package bridge

import "errors"

var (
	// ErrMalformedMessage means an inbound body was not a JSON object
	ErrMalformedMessage = errors.New("malformed message")

	// ErrPublishFailed means the transport rejected an outbound command
	ErrPublishFailed = errors.New("publish failed")

	// ErrNotStarted means a command was issued before Start, or with the bus disabled
	ErrNotStarted = errors.New("bridge not started")

	// ErrInvalidTarget means the command addressed a shelf that has no display
	ErrInvalidTarget = errors.New("invalid target shelf")
)
