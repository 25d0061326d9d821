package ihex

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedRecord = errors.New("malformed hex record")
	ErrEmptyImage      = errors.New("hex image contains no data")
)

// RecordError reports a record that could not be decoded.
type RecordError struct {
	// Line is the 1-based line number of the offending record
	Line int

	// Reason describes what was wrong with the record
	Reason string
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("line %d: %s: %s", e.Line, ErrMalformedRecord, e.Reason)
}

func (e *RecordError) Unwrap() error {
	return ErrMalformedRecord
}
