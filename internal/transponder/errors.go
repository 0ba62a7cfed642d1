package transponder

import "errors"

var (
	// ErrConfiguration marks a node configuration that must not start:
	// a missing identity field, invalid noise parameters, or a transceiver ID
	// without a trailing decimal digit.
	ErrConfiguration = errors.New("invalid transponder configuration")

	// ErrUnknownCommand is returned for interrogation payloads other than "ping".
	ErrUnknownCommand = errors.New("unknown interrogation command")

	// ErrPeerNotFound is returned when the interrogating peer body is absent
	// from the world.
	ErrPeerNotFound = errors.New("peer body not found")

	// ErrSelfNotFound is returned when the transponder's own body cannot be
	// located.
	ErrSelfNotFound = errors.New("transponder body not found")

	// ErrInvalidEnvironment is returned when the cached sound speed cannot
	// produce a finite, non-negative propagation delay.
	ErrInvalidEnvironment = errors.New("invalid acoustic environment")
)
