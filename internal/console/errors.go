package console

import "errors"

var (
	// ErrForbidden covers every ticket-gate failure (unknown, expired,
	// already used) uniformly — §5's worked example closes the channel
	// with "Forbidden" in all three cases, not a distinguishing reason.
	ErrForbidden = errors.New("console: forbidden")
)
