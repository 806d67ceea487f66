package mediagrid

import "errors"

// Common errors
var (
	// ErrConfiguration is returned when the drawing surface or another
	// construction-time resource cannot be created.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrNoSink is returned by Recorder.Start when no sink is attached.
	ErrNoSink = errors.New("no sink attached")

	// ErrSinkClosed is returned by sinks written to after Close.
	ErrSinkClosed = errors.New("sink closed")
)
