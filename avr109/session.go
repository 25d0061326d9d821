package avr109

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// DefaultEraseTimeout bounds the wait for the chip erase acknowledgement.
const DefaultEraseTimeout = 10 * time.Second

// State is the position of a Session in the flashing sequence.
type State int

const (
	StateNew State = iota
	StateNegotiating
	StateErasing
	StateProgramming
	StateVerifying
	StateExiting
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateNegotiating:
		return "negotiating"
	case StateErasing:
		return "erasing"
	case StateProgramming:
		return "programming"
	case StateVerifying:
		return "verifying"
	case StateExiting:
		return "exiting"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DeviceInfo is what the bootloader reported during negotiation.
type DeviceInfo struct {
	SoftwareID      string
	SoftwareVersion string
	HardwareVersion byte
	ProgrammerType  byte
	AutoIncrement   bool
	ChunkSize       int
	DeviceCode      byte
	Signature       [3]byte
	LowFuse         byte
	HighFuse        byte
	ExtendedFuse    byte
	LockBits        byte
}

// SignatureString formats the device signature bytes as hex.
func (d DeviceInfo) SignatureString() string {
	return fmt.Sprintf("%02X%02X%02X", d.Signature[0], d.Signature[1], d.Signature[2])
}

// Progress is reported after every chunk programmed or verified.
type Progress struct {
	State State
	Done  int
	Total int
}

// ProgressFunc receives progress updates. It is called synchronously.
type ProgressFunc func(Progress)

// Session drives one bootloader through negotiation, erase, programming,
// verification and exit. Each step must be entered from the one before it;
// any failure moves the session to StateFailed for good.
type Session struct {
	pipe *Pipeline
	log  zerolog.Logger

	signature      string
	commandTimeout time.Duration
	eraseTimeout   time.Duration
	clock          clockwork.Clock
	progress       ProgressFunc

	state      State
	info       DeviceInfo
	programmed []byte
	remaining  []byte
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSignature sets the expected bootloader software identifier.
func WithSignature(sig string) SessionOption {
	return func(s *Session) {
		if sig != "" {
			s.signature = sig
		}
	}
}

// WithCommandTimeout sets the response timeout for ordinary commands.
func WithCommandTimeout(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.commandTimeout = d
		}
	}
}

// WithEraseTimeout sets the response timeout for chip erase.
func WithEraseTimeout(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.eraseTimeout = d
		}
	}
}

// WithClock sets the clock used for response deadlines.
func WithClock(c clockwork.Clock) SessionOption {
	return func(s *Session) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) SessionOption {
	return func(s *Session) {
		s.log = l
	}
}

// WithProgress sets the progress callback.
func WithProgress(fn ProgressFunc) SessionOption {
	return func(s *Session) {
		s.progress = fn
	}
}

// NewSession creates a session talking to a bootloader over rw.
func NewSession(rw io.ReadWriter, opts ...SessionOption) *Session {
	s := &Session{
		log:            zerolog.Nop(),
		signature:      DefaultSignature,
		commandTimeout: DefaultCommandTimeout,
		eraseTimeout:   DefaultEraseTimeout,
		clock:          clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.pipe = NewPipeline(rw,
		WithPipelineClock(s.clock),
		WithDefaultTimeout(s.commandTimeout),
		WithPipelineLogger(s.log),
	)
	return s
}

// State returns the current state.
func (s *Session) State() State {
	return s.state
}

// Info returns the negotiated device information.
func (s *Session) Info() DeviceInfo {
	return s.info
}

// Programmed returns the number of bytes acknowledged by the device.
func (s *Session) Programmed() int {
	return len(s.programmed)
}

// Run performs every step in order for the given image. ctx only applies
// until negotiation has finished. Erase through exit run to completion or to
// the first failure, bounded by the command timeouts.
func (s *Session) Run(ctx context.Context, image []byte) error {
	if err := s.Negotiate(ctx); err != nil {
		return err
	}
	if err := s.checkImage(image); err != nil {
		return err
	}

	committed := context.WithoutCancel(ctx)
	if err := s.Erase(committed); err != nil {
		return err
	}
	if err := s.Program(committed, image); err != nil {
		return err
	}
	if err := s.Verify(committed); err != nil {
		return err
	}
	return s.Exit(committed)
}

// checkImage rejects images the negotiated device cannot address.
func (s *Session) checkImage(image []byte) error {
	if len(image) > MaxFlashSize {
		return s.fail(fmt.Errorf("%w: image of %d bytes exceeds the %d byte address range",
			ErrUnsupportedDevice, len(image), MaxFlashSize))
	}
	return nil
}

// Negotiate identifies the bootloader, reads its capabilities and enters
// programming mode.
func (s *Session) Negotiate(ctx context.Context) error {
	if err := s.advance(StateNegotiating); err != nil {
		return err
	}

	var info DeviceInfo
	s.pipe.Enqueue(
		Command{
			Name:    "S",
			Payload: []byte{CmdSoftwareID},
			Expect:  FixedLength(len(s.signature)),
			Then: func(r []byte) error {
				info.SoftwareID = string(r)
				if info.SoftwareID != s.signature {
					return &SignatureMismatchError{Expected: s.signature, Actual: info.SoftwareID}
				}
				return nil
			},
		},
		Command{
			Name:    "V",
			Payload: []byte{CmdSoftwareVersion},
			Expect:  FixedLength(2),
			Then: func(r []byte) error {
				info.SoftwareVersion = string(r[0]) + "." + string(r[1])
				return nil
			},
		},
		Command{
			Name:    "v",
			Payload: []byte{CmdHardwareVersion},
			Expect:  FixedLength(1),
			Then: func(r []byte) error {
				info.HardwareVersion = r[0]
				return nil
			},
		},
		Command{
			Name:    "p",
			Payload: []byte{CmdProgrammerType},
			Expect:  FixedLength(1),
			Then: func(r []byte) error {
				info.ProgrammerType = r[0]
				return nil
			},
		},
		Command{
			Name:    "a",
			Payload: []byte{CmdAutoIncrement},
			Expect:  FixedLength(1),
			Then: func(r []byte) error {
				info.AutoIncrement = r[0] == Yes
				return nil
			},
		},
		Command{
			Name:    "b",
			Payload: []byte{CmdBlockSupport},
			Expect:  FixedLength(3),
			Then: func(r []byte) error {
				if r[0] != Yes {
					return blockModeError(r)
				}
				info.ChunkSize = int(r[1])<<8 | int(r[2])
				if info.ChunkSize == 0 {
					return fmt.Errorf("%w: device reported zero block size", ErrUnsupportedDevice)
				}
				// Set address takes word addresses.
				if !info.AutoIncrement && info.ChunkSize%2 != 0 {
					return fmt.Errorf("%w: odd block size %d without auto-increment", ErrUnsupportedDevice, info.ChunkSize)
				}
				return nil
			},
		},
		Command{
			Name:    "t",
			Payload: []byte{CmdDeviceCodes},
			Expect:  FixedLength(2),
			Then: func(r []byte) error {
				info.DeviceCode = r[0]
				if info.DeviceCode == 0 {
					info.DeviceCode = DefaultDeviceCode
				}
				return nil
			},
		},
	)

	if err := s.pipe.Run(ctx); err != nil {
		// Bootloaders without block support answer 'b' with a single byte.
		var te *TimeoutError
		if errors.As(err, &te) && te.Command == "b" && len(te.Partial) > 0 && te.Partial[0] != Yes {
			err = blockModeError(te.Partial)
		}
		return s.fail(err)
	}

	s.pipe.Enqueue(
		ackCommand("T", BuildSetDeviceType(info.DeviceCode), 0),
		ackCommand("P", []byte{CmdEnterProgramMode}, 0),
		readByteCommand("F", CmdReadLowFuse, &info.LowFuse),
		readByteCommand("N", CmdReadHighFuse, &info.HighFuse),
		readByteCommand("Q", CmdReadExtendedFuse, &info.ExtendedFuse),
		readByteCommand("r", CmdReadLockBits, &info.LockBits),
		Command{
			Name:    "s",
			Payload: []byte{CmdReadSignature},
			Expect:  FixedLength(3),
			Then: func(r []byte) error {
				copy(info.Signature[:], r)
				return nil
			},
		},
	)

	if err := s.pipe.Run(ctx); err != nil {
		return s.fail(err)
	}

	s.info = info
	s.log.Info().
		Str("software_id", info.SoftwareID).
		Str("version", info.SoftwareVersion).
		Int("chunk_size", info.ChunkSize).
		Bool("auto_increment", info.AutoIncrement).
		Str("signature", info.SignatureString()).
		Msg("bootloader negotiated")
	return nil
}

// Erase erases the application flash.
func (s *Session) Erase(ctx context.Context) error {
	if err := s.advance(StateErasing); err != nil {
		return err
	}

	s.pipe.Enqueue(ackCommand("e", []byte{CmdChipErase}, s.eraseTimeout))
	if err := s.pipe.Run(ctx); err != nil {
		return s.fail(err)
	}

	s.log.Info().Msg("flash erased")
	return nil
}

// Program writes image to flash starting at address zero, one chunk per
// block write.
func (s *Session) Program(ctx context.Context, image []byte) error {
	if err := s.advance(StateProgramming); err != nil {
		return err
	}
	if err := s.checkImage(image); err != nil {
		return err
	}

	chunks := Chunks(image, s.info.ChunkSize)
	total := len(image)
	s.programmed = make([]byte, 0, total)

	s.pipe.Enqueue(setAddressCommand(0))
	for i, c := range chunks {
		if i > 0 && !s.info.AutoIncrement {
			s.pipe.Enqueue(setAddressCommand(c.Offset))
		}
		s.pipe.Enqueue(Command{
			Name:    "B",
			Payload: BuildBlockWrite(MemoryFlash, c.Data),
			Expect:  FixedLength(1),
			Then: func(r []byte) error {
				if r[0] != Ack {
					return &ResponseError{Command: "B", Response: r}
				}
				s.programmed = append(s.programmed, c.Data...)
				s.report(StateProgramming, len(s.programmed), total)
				return nil
			},
		})
	}

	if err := s.pipe.Run(ctx); err != nil {
		return s.fail(err)
	}

	s.log.Info().Int("bytes", len(s.programmed)).Int("chunks", len(chunks)).Msg("flash programmed")
	return nil
}

// Verify reads back every programmed byte and compares it with what was
// written. Each read is issued by the continuation of the previous one.
func (s *Session) Verify(ctx context.Context) error {
	if err := s.advance(StateVerifying); err != nil {
		return err
	}

	total := len(s.programmed)
	s.remaining = append([]byte(nil), s.programmed...)
	offset := 0

	var readNext func()
	readNext = func() {
		n := min(s.info.ChunkSize, len(s.remaining))
		if n == 0 {
			return
		}
		if offset > 0 && !s.info.AutoIncrement {
			s.pipe.Enqueue(setAddressCommand(offset))
		}
		s.pipe.Enqueue(Command{
			Name:    "g",
			Payload: BuildBlockRead(MemoryFlash, n),
			Expect:  FixedLength(n),
			Then: func(r []byte) error {
				for i, got := range r {
					if want := s.remaining[i]; got != want {
						return &VerificationError{Offset: offset + i, Expected: want, Actual: got}
					}
				}
				s.remaining = s.remaining[n:]
				offset += n
				s.report(StateVerifying, offset, total)
				readNext()
				return nil
			},
		})
	}

	s.pipe.Enqueue(setAddressCommand(0))
	readNext()

	if err := s.pipe.Run(ctx); err != nil {
		return s.fail(err)
	}
	if len(s.remaining) > 0 {
		return s.fail(&VerificationError{Offset: offset, Short: true})
	}

	s.log.Info().Int("bytes", total).Msg("flash verified")
	return nil
}

// Exit leaves programming mode and starts the application.
func (s *Session) Exit(ctx context.Context) error {
	if err := s.advance(StateExiting); err != nil {
		return err
	}

	s.pipe.Enqueue(
		ackCommand("L", []byte{CmdLeaveProgramMode}, 0),
		ackCommand("E", []byte{CmdExitBootloader}, 0),
	)
	if err := s.pipe.Run(ctx); err != nil {
		return s.fail(err)
	}

	s.state = StateClosed
	s.log.Info().Msg("bootloader exited")
	return nil
}

func (s *Session) advance(to State) error {
	if s.state == StateFailed || s.state+1 != to {
		return &StateError{From: s.state, To: to}
	}
	s.state = to
	s.log.Debug().Stringer("state", to).Msg("session state")
	return nil
}

func (s *Session) fail(err error) error {
	from := s.state
	s.state = StateFailed
	s.log.Error().Err(err).Stringer("state", from).Msg("session failed")
	return fmt.Errorf("%s: %w", from, err)
}

func (s *Session) report(state State, done, total int) {
	if s.progress != nil {
		s.progress(Progress{State: state, Done: done, Total: total})
	}
}

func ackCommand(name string, payload []byte, timeout time.Duration) Command {
	return Command{
		Name:    name,
		Payload: payload,
		Expect:  FixedLength(1),
		Timeout: timeout,
		Then: func(r []byte) error {
			if r[0] != Ack {
				return &ResponseError{Command: name, Response: r}
			}
			return nil
		},
	}
}

func readByteCommand(name string, cmd byte, dst *byte) Command {
	return Command{
		Name:    name,
		Payload: []byte{cmd},
		Expect:  FixedLength(1),
		Then: func(r []byte) error {
			*dst = r[0]
			return nil
		},
	}
}

func blockModeError(reply []byte) error {
	if reply[0] == Unsupported {
		return fmt.Errorf("%w: block command not recognized", ErrUnsupportedDevice)
	}
	return fmt.Errorf("%w: block mode not supported (reply % X)", ErrUnsupportedDevice, reply)
}

// setAddressCommand positions the device at a byte offset; flash addresses
// are in words.
func setAddressCommand(offset int) Command {
	return ackCommand("A", BuildSetAddress(uint16(offset/2)), 0)
}
