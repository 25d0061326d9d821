package avr109

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrSignatureMismatch  = errors.New("bootloader signature mismatch")
	ErrUnsupportedDevice  = errors.New("unsupported device")
	ErrCommandTimeout     = errors.New("command timed out")
	ErrVerificationFailed = errors.New("verification failed")
	ErrTransport          = errors.New("transport error")
	ErrUnexpectedResponse = errors.New("unexpected response")
	ErrInvalidState       = errors.New("invalid session state")
)

// SignatureMismatchError indicates the bootloader identified itself with an
// unexpected software identifier.
type SignatureMismatchError struct {
	Expected string
	Actual   string
}

func (e *SignatureMismatchError) Error() string {
	return fmt.Sprintf("signature mismatch: expected %q, device reported %q", e.Expected, e.Actual)
}

func (e *SignatureMismatchError) Unwrap() error {
	return ErrSignatureMismatch
}

// TimeoutError indicates a command's response did not complete in time.
type TimeoutError struct {
	Command  string
	Timeout  time.Duration
	Expected int

	// Partial holds whatever bytes arrived before the deadline
	Partial []byte
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: no complete response within %v (got %d of %d bytes)",
		e.Command, e.Timeout, len(e.Partial), e.Expected)
}

func (e *TimeoutError) Unwrap() error {
	return ErrCommandTimeout
}

// VerificationError reports the first byte whose read-back differs from the
// programmed value.
type VerificationError struct {
	Offset   int
	Expected byte
	Actual   byte

	// Short is set when the device returned fewer bytes than were programmed
	Short bool
}

func (e *VerificationError) Error() string {
	if e.Short {
		return fmt.Sprintf("verification failed: read-back ended at offset %d", e.Offset)
	}
	return fmt.Sprintf("verification failed at offset %d: expected 0x%02X, got 0x%02X",
		e.Offset, e.Expected, e.Actual)
}

func (e *VerificationError) Unwrap() error {
	return ErrVerificationFailed
}

// ResponseError indicates a command was answered with something other than
// the expected acknowledgement.
type ResponseError struct {
	Command  string
	Response []byte
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s: unexpected response % X", e.Command, e.Response)
}

func (e *ResponseError) Unwrap() error {
	return ErrUnexpectedResponse
}

// StateError indicates a session step was attempted out of order.
type StateError struct {
	From State
	To   State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot enter %s from %s", e.To, e.From)
}

func (e *StateError) Unwrap() error {
	return ErrInvalidState
}
