package browser

import "errors"

var (
	// ErrNoActiveContext is returned when an operation names a slot this
	// orchestrator has no open context for.
	ErrNoActiveContext = errors.New("no active browser context for slot")

	// ErrNotAuthenticatedSlot reports that a switch to the authenticated
	// slot landed on a different one. The context that comes back with it
	// is usable, but it does not carry the authenticated session.
	ErrNotAuthenticatedSlot = errors.New("authenticated slot unavailable, opened a different slot")
)
