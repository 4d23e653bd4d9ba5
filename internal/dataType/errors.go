package dataType

import "errors"

var (
	// ErrHopLimitExceeded is returned by the relay transform when one more hop
	// would push the message past MaxHops. The message is still delivered locally.
	ErrHopLimitExceeded = errors.New("hop limit exceeded")
	// ErrSelfRelay is returned when the local node already appears in RelayedBy.
	ErrSelfRelay = errors.New("node already relayed this message")
	// ErrInvalidRelay marks a relay transform applied to a message the engine
	// should have gated out. Seeing it means a caller bug.
	ErrInvalidRelay = errors.New("invalid relay")

	ErrAlertNotFound        = errors.New("alert not found")
	ErrMalformedEnvelope    = errors.New("malformed envelope")
	ErrTransportUnavailable = errors.New("transport unavailable")
)
