package ingest

import (
	"errors"
	"fmt"
)

// FetchError is a failed read from the record source. The day can be
// retried from the same cursor.
type FetchError struct {
	Day    string
	Cursor int64
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s above cursor %d: %v", e.Day, e.Cursor, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// SinkError is a failed write to one of the sinks. It is fatal for the cycle;
// writes already committed to the other sink are not rolled back.
type SinkError struct {
	Sink   string // "raw" or "aggregated"
	Op     string // "append" or "delete"
	Day    string
	Cursor int64
	Err    error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("%s %s sink for %s at cursor %d: %v", e.Op, e.Sink, e.Day, e.Cursor, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err can be retried from the same cursor.
func IsTransient(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
