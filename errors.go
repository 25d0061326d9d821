package avrflash

import (
	"errors"

	"github.com/allbin/avrflash/avr109"
	"github.com/allbin/avrflash/ihex"
)

// Predefined error types for robust error handling
var (
	ErrDeviceNotFound   = errors.New("serial device not found")
	ErrPermissionDenied = errors.New("permission denied accessing serial device")
	ErrDeviceInUse      = errors.New("serial device already in use")
	ErrInvalidBaudRate  = errors.New("invalid baud rate")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrPortClosed       = errors.New("serial port is closed")

	// Flashing errors
	ErrPortNotFound = errors.New("no matching device found")
	ErrResetFailed  = errors.New("device reset failed")
	ErrBusy         = errors.New("another flash operation is in progress")

	// Protocol and image errors, re-exported so callers need a single import
	ErrMalformedRecord    = ihex.ErrMalformedRecord
	ErrEmptyImage         = ihex.ErrEmptyImage
	ErrSignatureMismatch  = avr109.ErrSignatureMismatch
	ErrUnsupportedDevice  = avr109.ErrUnsupportedDevice
	ErrCommandTimeout     = avr109.ErrCommandTimeout
	ErrVerificationFailed = avr109.ErrVerificationFailed
	ErrTransport          = avr109.ErrTransport
	ErrUnexpectedResponse = avr109.ErrUnexpectedResponse
)
