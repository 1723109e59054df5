package hdr

import (
	"fmt"

	"perfstore/internal/sentinel"
)

// DataError describes a record that cannot be turned into a data point:
// a zero or negative interval duration, or an unparsable distribution line.
// Report builders skip the record and keep going.
type DataError struct {
	// Index is the position of the interval in the log, or the line number of a distribution line.
	Index  int
	Reason string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("data error at %d: %s", e.Index, e.Reason)
}

// Unwrap lets errors.Is match sentinel.ErrDataError.
func (e *DataError) Unwrap() error {
	return sentinel.ErrDataError
}
