package session

import "errors"

var (
	// ErrFlushed is returned by Process and Flush once the end-of-stream
	// flush has run.
	ErrFlushed = errors.New("session: sessionizer already flushed")

	// ErrInvalidThreshold is returned by New for a non-positive inactivity threshold.
	ErrInvalidThreshold = errors.New("session: inactivity threshold must be positive")

	// ErrNilSink is returned by New when no sink is given.
	ErrNilSink = errors.New("session: nil sink")
)
