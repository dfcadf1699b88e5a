package daemon

import "errors"

var (
	// ErrMissingGateway is returned when no chat gateway could be built.
	ErrMissingGateway = errors.New("chat gateway is required")

	// ErrUnknownBackend is returned for a ledger or events backend the
	// daemon cannot build.
	ErrUnknownBackend = errors.New("unknown backend")
)
