// Package sentinel holds the error values shared across perfstore packages.
// Callers compare against them with errors.Is; the HTTP layer maps them to
// status codes.
package sentinel

import (
	"github.com/hyp3rd/ewrap"
)

var (
	// ErrNotFound is returned when a case, run, job or output does not exist.
	ErrNotFound = ewrap.New("not found")

	// ErrInvalidName is returned when a test case name does not match the allowed pattern.
	ErrInvalidName = ewrap.New("invalid name")

	// ErrDuplicateName is returned when a test case with the same name already exists.
	ErrDuplicateName = ewrap.New("duplicate name")

	// ErrInvalidArgument is returned for malformed ids, thresholds, bodies or options.
	ErrInvalidArgument = ewrap.New("invalid argument")

	// ErrUnsupportedFormat is returned when a payload compression format is unknown.
	ErrUnsupportedFormat = ewrap.New("unsupported compression format")

	// ErrDataError marks a malformed interval or distribution line. Reports skip them.
	ErrDataError = ewrap.New("data error")

	// ErrNothingToCompare is returned when fewer than two runs or no common operations are selected.
	ErrNothingToCompare = ewrap.New("nothing to compare")

	// ErrNoSeries is returned when a chart target has nothing to draw.
	ErrNoSeries = ewrap.New("no series to draw")

	// ErrFetch is returned by the dashboard client when the server cannot be reached or answers with an error.
	ErrFetch = ewrap.New("fetch failed")

	// ErrAnchorStopped is returned when the integrity batcher has been closed.
	ErrAnchorStopped = ewrap.New("anchor batcher stopped")

	// ErrNotAnchored is returned when an output has no integrity proof.
	ErrNotAnchored = ewrap.New("output not anchored")

	// ErrShutdownTimeout is returned when the HTTP server does not stop in time.
	ErrShutdownTimeout = ewrap.New("server shutdown timeout")
)
