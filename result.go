package avrflash

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/allbin/avrflash/avr109"
)

// Status is the outcome of a flash operation.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
)

func (s Status) String() string {
	if s == StatusSuccess {
		return "success"
	}
	return "failure"
}

// Kind classifies a failure.
type Kind int

const (
	KindNone Kind = iota
	KindMalformedRecord
	KindPortNotFound
	KindResetFailed
	KindSignatureMismatch
	KindUnsupportedDevice
	KindCommandTimeout
	KindVerificationFailed
	KindTransport
	KindBusy
	KindCanceled
)

var kindNames = map[Kind]string{
	KindNone:               "none",
	KindMalformedRecord:    "malformed record",
	KindPortNotFound:       "port not found",
	KindResetFailed:        "reset failed",
	KindSignatureMismatch:  "signature mismatch",
	KindUnsupportedDevice:  "unsupported device",
	KindCommandTimeout:     "command timeout",
	KindVerificationFailed: "verification failed",
	KindTransport:          "transport error",
	KindBusy:               "busy",
	KindCanceled:           "canceled",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Category returns the user-facing grouping of a failure kind.
func (k Kind) Category() string {
	switch k {
	case KindNone:
		return ""
	case KindPortNotFound:
		return "device not found"
	case KindVerificationFailed:
		return "verification failed"
	case KindMalformedRecord:
		return "invalid firmware image"
	case KindBusy:
		return "flash already in progress"
	case KindSignatureMismatch, KindUnsupportedDevice:
		return "wrong or unsupported device"
	case KindCanceled:
		return "canceled"
	default:
		return "unexpected I/O error"
	}
}

// KindOf classifies err. Errors that match no known sentinel are transport
// errors.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrBusy):
		return KindBusy
	case errors.Is(err, ErrMalformedRecord), errors.Is(err, ErrEmptyImage):
		return KindMalformedRecord
	case errors.Is(err, ErrPortNotFound):
		return KindPortNotFound
	case errors.Is(err, ErrResetFailed):
		return KindResetFailed
	case errors.Is(err, ErrSignatureMismatch):
		return KindSignatureMismatch
	case errors.Is(err, ErrUnsupportedDevice):
		return KindUnsupportedDevice
	case errors.Is(err, ErrCommandTimeout):
		return KindCommandTimeout
	case errors.Is(err, ErrVerificationFailed):
		return KindVerificationFailed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindTransport
	}
}

// Result is the outcome of Flash.
type Result struct {
	Status Status
	Kind   Kind
	Err    error

	Device       avr109.DeviceInfo
	ResetPort    string
	UploadPort   string
	BytesWritten int
	Chunks       int
	Elapsed      time.Duration
}

// OK reports whether the flash succeeded.
func (r Result) OK() bool {
	return r.Status == StatusSuccess
}

// Offset returns the first mismatching byte offset of a verification
// failure.
func (r Result) Offset() (int, bool) {
	var ve *avr109.VerificationError
	if errors.As(r.Err, &ve) {
		return ve.Offset, true
	}
	return 0, false
}

// Message returns a one-line summary suitable for users.
func (r Result) Message() string {
	if r.OK() {
		return fmt.Sprintf("flashed %d bytes to %s in %s",
			r.BytesWritten, r.UploadPort, r.Elapsed.Round(time.Millisecond))
	}
	return fmt.Sprintf("%s: %v", r.Kind.Category(), r.Err)
}

func (r *Result) fail(err error) {
	r.Status = StatusFailure
	r.Err = err
	r.Kind = KindOf(err)
}
