package core

import "errors"

var (
	// ErrMissingFields is returned when a monitor request omits the
	// meeting or participant identifier.
	ErrMissingFields = errors.New("missing fields")

	// ErrAlreadyActive is returned when a watch already exists for the
	// requested meeting. The existing watch is left untouched.
	ErrAlreadyActive = errors.New("already active")

	// ErrAwaitTimeout is returned when no session-started signal
	// arrives before the waiting timeout elapses.
	ErrAwaitTimeout = errors.New("no session-started signal received")

	// ErrNoAnalysisURL is returned when a capture completes but no
	// analysis API address is configured. Fatal for the capture, not
	// for the process.
	ErrNoAnalysisURL = errors.New("analysis API address not configured")
)
