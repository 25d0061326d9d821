package avrflash

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Port represents a serial port connection interface
type Port interface {
	Close() error
	Read(buf []byte) (int, error)
	Write(data []byte) (int, error)

	// Control lines and buffers
	SetDTR(state bool) error
	SetRTS(state bool) error
	SetReadTimeout(timeout time.Duration) error
	ResetInputBuffer() error
}

// OpenFunc opens a port; Open is the default. Tests substitute simulated
// devices.
type OpenFunc func(path string, opts ...PortOption) (Port, error)

// port is the concrete implementation of the Port interface
type port struct {
	mu     sync.RWMutex
	sp     serial.Port
	path   string
	config PortConfig
	closed bool
}

// Ensure port implements Port interface at compile time
var _ Port = (*port)(nil)

// Open opens a serial port with the given device path and options
func Open(device string, opts ...PortOption) (Port, error) {
	// Apply default configuration
	config := DefaultPortConfig()
	for _, opt := range opts {
		if err := opt(&config); err != nil {
			return nil, err
		}
	}

	if err := checkAccess(device); err != nil {
		return nil, err
	}

	sp, err := serial.Open(device, config.serialMode())
	if err != nil {
		return nil, openError(device, err)
	}

	if err := sp.SetReadTimeout(config.ReadTimeout); err != nil {
		_ = sp.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	return &port{
		sp:     sp,
		path:   device,
		config: config,
	}, nil
}

// openError maps go.bug.st/serial error codes onto the package sentinels.
func openError(device string, err error) error {
	var pe *serial.PortError
	if errors.As(err, &pe) {
		switch pe.Code() {
		case serial.PortNotFound:
			return fmt.Errorf("%w: %s", ErrDeviceNotFound, device)
		case serial.PermissionDenied:
			return fmt.Errorf("%w: %s", ErrPermissionDenied, device)
		case serial.PortBusy:
			return fmt.Errorf("%w: %s", ErrDeviceInUse, device)
		case serial.InvalidSpeed:
			return fmt.Errorf("%w: %s", ErrInvalidBaudRate, device)
		}
	}
	return fmt.Errorf("failed to open %s: %w", device, err)
}

// Close closes the serial port
func (p *port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}

	p.closed = true
	return p.sp.Close()
}

// Read reads data from the serial port. It returns (0, nil) when the read
// timeout elapses without data.
func (p *port) Read(buf []byte) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return 0, ErrPortClosed
	}

	return p.sp.Read(buf)
}

// Write writes data to the serial port
func (p *port) Write(data []byte) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return 0, ErrPortClosed
	}

	return p.sp.Write(data)
}

// SetDTR sets the DTR (Data Terminal Ready) signal state
func (p *port) SetDTR(state bool) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPortClosed
	}

	if err := p.sp.SetDTR(state); err != nil {
		return fmt.Errorf("failed to set DTR on %s: %w", p.path, err)
	}
	return nil
}

// SetRTS sets the RTS (Request To Send) signal state
func (p *port) SetRTS(state bool) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPortClosed
	}

	if err := p.sp.SetRTS(state); err != nil {
		return fmt.Errorf("failed to set RTS on %s: %w", p.path, err)
	}
	return nil
}

// SetReadTimeout changes the read timeout of an open port
func (p *port) SetReadTimeout(timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}

	if err := p.sp.SetReadTimeout(timeout); err != nil {
		return err
	}
	p.config.ReadTimeout = timeout
	return nil
}

// ResetInputBuffer discards any unread input
func (p *port) ResetInputBuffer() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPortClosed
	}

	return p.sp.ResetInputBuffer()
}
