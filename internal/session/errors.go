package session

import "errors"

var (
	// ErrBusy means a non-finished session already exists; at most one may
	// be active per client.
	ErrBusy = errors.New("session: a match is already active")

	// ErrNoActiveMatch means the operation needs a live session.
	ErrNoActiveMatch = errors.New("session: no active match")
)
