package avrflash

import (
	"time"

	"go.bug.st/serial"
)

// Parity represents the parity mode
type Parity int

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
	ParityMark
	ParitySpace
)

func (p Parity) mode() serial.Parity {
	switch p {
	case ParityOdd:
		return serial.OddParity
	case ParityEven:
		return serial.EvenParity
	case ParityMark:
		return serial.MarkParity
	case ParitySpace:
		return serial.SpaceParity
	default:
		return serial.NoParity
	}
}

// PortConfig holds the configuration for a serial port
type PortConfig struct {
	BaudRate    int
	DataBits    int
	StopBits    int
	Parity      Parity
	ReadTimeout time.Duration // Read returns (0, nil) once this elapses without data
	InitialDTR  *bool         // nil leaves the driver default (asserted)
	InitialRTS  *bool
}

// PortOption is a functional option for configuring a serial port
type PortOption func(*PortConfig) error

// DefaultPortConfig returns the configuration used to talk to a bootloader:
// 57600 8N1 with a 100ms read timeout.
func DefaultPortConfig() PortConfig {
	return PortConfig{
		BaudRate:    DefaultUploadBaud,
		DataBits:    8,
		StopBits:    1,
		Parity:      ParityNone,
		ReadTimeout: DefaultReadTimeout,
	}
}

// standard rates accepted by WithBaudRate
var validBaudRates = map[int]bool{
	50: true, 75: true, 110: true, 134: true, 150: true, 200: true,
	300: true, 600: true, 1200: true, 1800: true, 2400: true, 4800: true,
	9600: true, 19200: true, 38400: true, 57600: true, 115200: true,
	230400: true, 460800: true, 500000: true, 576000: true, 921600: true,
	1000000: true, 1152000: true, 1500000: true, 2000000: true,
}

// WithBaudRate sets the baud rate
func WithBaudRate(rate int) PortOption {
	return func(c *PortConfig) error {
		if !validBaudRates[rate] {
			return ErrInvalidBaudRate
		}
		c.BaudRate = rate
		return nil
	}
}

// WithDataBits sets the number of data bits (5, 6, 7, or 8)
func WithDataBits(bits int) PortOption {
	return func(c *PortConfig) error {
		if bits < 5 || bits > 8 {
			return ErrInvalidConfig
		}
		c.DataBits = bits
		return nil
	}
}

// WithStopBits sets the number of stop bits (1 or 2)
func WithStopBits(bits int) PortOption {
	return func(c *PortConfig) error {
		if bits != 1 && bits != 2 {
			return ErrInvalidConfig
		}
		c.StopBits = bits
		return nil
	}
}

// WithParity sets the parity mode
func WithParity(parity Parity) PortOption {
	return func(c *PortConfig) error {
		if parity < ParityNone || parity > ParitySpace {
			return ErrInvalidConfig
		}
		c.Parity = parity
		return nil
	}
}

// WithReadTimeout sets how long a Read waits for the first byte
func WithReadTimeout(timeout time.Duration) PortOption {
	return func(c *PortConfig) error {
		if timeout < 0 {
			return ErrInvalidConfig
		}
		c.ReadTimeout = timeout
		return nil
	}
}

// WithInitialDTR sets the DTR level applied when the port is opened
func WithInitialDTR(state bool) PortOption {
	return func(c *PortConfig) error {
		c.InitialDTR = &state
		return nil
	}
}

// WithInitialRTS sets the RTS level applied when the port is opened
func WithInitialRTS(state bool) PortOption {
	return func(c *PortConfig) error {
		c.InitialRTS = &state
		return nil
	}
}

// serialMode translates the configuration for go.bug.st/serial.
func (c PortConfig) serialMode() *serial.Mode {
	mode := &serial.Mode{
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
		Parity:   c.Parity.mode(),
		StopBits: serial.OneStopBit,
	}
	if c.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}

	if c.InitialDTR != nil || c.InitialRTS != nil {
		bits := &serial.ModemOutputBits{DTR: true, RTS: true}
		if c.InitialDTR != nil {
			bits.DTR = *c.InitialDTR
		}
		if c.InitialRTS != nil {
			bits.RTS = *c.InitialRTS
		}
		mode.InitialStatusBits = bits
	}

	return mode
}
