// Package devicesim provides an in-memory Caterina bootloader that speaks
// AVR109 over the same port interface the flasher uses. It is meant for
// tests and for exercising the flashing flow without hardware.
package devicesim

import (
	"bytes"
	"errors"
	"sync"
	"time"
)

const (
	// FlashSize is the application flash of an ATmega32U4 below the bootloader.
	FlashSize = 28 * 1024

	DefaultChunkSize = 128
	DefaultSignature = "CATERIN"
)

var ErrClosed = errors.New("devicesim: port closed")

// Device is a simulated bootloader. Each Write is treated as one complete
// command, and its reply becomes readable immediately.
type Device struct {
	mu sync.Mutex

	signature     string
	version       string
	chunkSize     int
	blockMode     bool
	autoIncrement bool
	deviceSig     [3]byte
	fuses         [4]byte
	fragment      int
	readTimeout   time.Duration
	corrupt       map[int]byte
	silent        map[byte]bool
	overrides     map[byte][]byte
	readErr       error
	writeErr      error

	flash    []byte
	addr     int
	out      bytes.Buffer
	commands []byte
	exited   bool
	closed   bool
	dtr      bool
	rts      bool
}

// Option configures a Device.
type Option func(*Device)

// WithSignature sets the software identifier returned for 'S'.
func WithSignature(sig string) Option {
	return func(d *Device) {
		d.signature = sig
	}
}

// WithChunkSize sets the block size reported for 'b'.
func WithChunkSize(n int) Option {
	return func(d *Device) {
		d.chunkSize = n
	}
}

// WithoutBlockMode makes the device answer 'b' with '?'.
func WithoutBlockMode() Option {
	return func(d *Device) {
		d.blockMode = false
	}
}

// WithoutAutoIncrement makes the device report no address auto-increment and
// keep its address fixed across block commands.
func WithoutAutoIncrement() Option {
	return func(d *Device) {
		d.autoIncrement = false
	}
}

// WithFragmentSize limits every Read to at most n bytes.
func WithFragmentSize(n int) Option {
	return func(d *Device) {
		d.fragment = n
	}
}

// WithReadTimeout sets how long Read blocks when no data is pending.
func WithReadTimeout(t time.Duration) Option {
	return func(d *Device) {
		d.readTimeout = t
	}
}

// WithCorruptByte makes block reads return the byte at offset XOR 0xFF.
func WithCorruptByte(offset int) Option {
	return func(d *Device) {
		d.corrupt[offset] = 0xFF
	}
}

// WithSilent makes the device ignore the given command.
func WithSilent(cmd byte) Option {
	return func(d *Device) {
		d.silent[cmd] = true
	}
}

// WithReply overrides the reply to the given command.
func WithReply(cmd byte, reply []byte) Option {
	return func(d *Device) {
		d.overrides[cmd] = reply
	}
}

// WithReadError makes every Read fail with err.
func WithReadError(err error) Option {
	return func(d *Device) {
		d.readErr = err
	}
}

// WithWriteError makes every Write fail with err.
func WithWriteError(err error) Option {
	return func(d *Device) {
		d.writeErr = err
	}
}

// New creates a device with erased flash.
func New(opts ...Option) *Device {
	d := &Device{
		signature:     DefaultSignature,
		version:       "10",
		chunkSize:     DefaultChunkSize,
		blockMode:     true,
		autoIncrement: true,
		deviceSig:     [3]byte{0x87, 0x95, 0x1E},
		fuses:         [4]byte{0xFF, 0xD8, 0xCB, 0xEC},
		readTimeout:   time.Millisecond,
		corrupt:       make(map[int]byte),
		silent:        make(map[byte]bool),
		overrides:     make(map[byte][]byte),
		flash:         bytes.Repeat([]byte{0xFF}, FlashSize),
		dtr:           true,
		rts:           true,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Device) Read(p []byte) (int, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return 0, ErrClosed
	}
	if d.readErr != nil {
		err := d.readErr
		d.mu.Unlock()
		return 0, err
	}
	if d.out.Len() == 0 {
		wait := d.readTimeout
		d.mu.Unlock()
		time.Sleep(wait)
		return 0, nil
	}
	defer d.mu.Unlock()

	n := len(p)
	if d.fragment > 0 && n > d.fragment {
		n = d.fragment
	}
	return d.out.Read(p[:n])
}

func (d *Device) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, ErrClosed
	}
	if d.writeErr != nil {
		return 0, d.writeErr
	}
	if len(p) == 0 {
		return 0, nil
	}

	cmd := p[0]
	d.commands = append(d.commands, cmd)

	reply := d.handle(cmd, p[1:])
	if d.silent[cmd] {
		return len(p), nil
	}
	if override, ok := d.overrides[cmd]; ok {
		reply = override
	}
	d.out.Write(reply)
	return len(p), nil
}

func (d *Device) handle(cmd byte, args []byte) []byte {
	const ack = '\r'

	switch cmd {
	case 'S':
		return []byte(d.signature)
	case 'V':
		return []byte(d.version)
	case 'v':
		return []byte{'?'}
	case 'p':
		return []byte{'S'}
	case 'a':
		if d.autoIncrement {
			return []byte{'Y'}
		}
		return []byte{'N'}
	case 'b':
		if !d.blockMode {
			return []byte{'?'}
		}
		return []byte{'Y', byte(d.chunkSize >> 8), byte(d.chunkSize)}
	case 't':
		return []byte{0x44, 0x00}
	case 'T', 'P', 'L', 'E':
		if cmd == 'E' {
			d.exited = true
		}
		return []byte{ack}
	case 'F':
		return []byte{d.fuses[0]}
	case 'N':
		return []byte{d.fuses[1]}
	case 'Q':
		return []byte{d.fuses[2]}
	case 'r':
		return []byte{d.fuses[3]}
	case 's':
		return d.deviceSig[:]
	case 'e':
		for i := range d.flash {
			d.flash[i] = 0xFF
		}
		return []byte{ack}
	case 'A':
		if len(args) < 2 {
			return []byte{'?'}
		}
		d.addr = (int(args[0])<<8 | int(args[1])) * 2
		return []byte{ack}
	case 'B':
		if len(args) < 3 {
			return []byte{'?'}
		}
		n := int(args[0])<<8 | int(args[1])
		data := args[3:]
		if args[2] != 'F' || len(data) != n || d.addr+n > len(d.flash) {
			return []byte{'?'}
		}
		copy(d.flash[d.addr:], data)
		if d.autoIncrement {
			d.addr += n
		}
		return []byte{ack}
	case 'g':
		if len(args) < 3 {
			return []byte{'?'}
		}
		n := int(args[0])<<8 | int(args[1])
		if args[2] != 'F' || d.addr+n > len(d.flash) {
			return []byte{'?'}
		}
		out := make([]byte, n)
		copy(out, d.flash[d.addr:d.addr+n])
		for i := range out {
			if mask, ok := d.corrupt[d.addr+i]; ok {
				out[i] ^= mask
			}
		}
		if d.autoIncrement {
			d.addr += n
		}
		return out
	default:
		return []byte{'?'}
	}
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	d.closed = true
	return nil
}

func (d *Device) SetDTR(v bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dtr = v
	return nil
}

func (d *Device) SetRTS(v bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rts = v
	return nil
}

func (d *Device) SetReadTimeout(t time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readTimeout = t
	return nil
}

func (d *Device) ResetInputBuffer() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.out.Reset()
	return nil
}

// Commands returns the command bytes received so far, in order.
func (d *Device) Commands() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.commands...)
}

// Count returns how many times cmd was received.
func (d *Device) Count(cmd byte) int {
	return bytes.Count(d.Commands(), []byte{cmd})
}

// Flash returns a copy of the first n bytes of flash.
func (d *Device) Flash(n int) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.flash[:n]...)
}

// Closed reports whether Close has been called.
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Exited reports whether the device received the exit command.
func (d *Device) Exited() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.exited
}

// DTR returns the last DTR level set.
func (d *Device) DTR() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dtr
}
