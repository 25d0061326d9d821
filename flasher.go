package avrflash

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/allbin/avrflash/avr109"
	"github.com/allbin/avrflash/ihex"
)

// One flash at a time per process: a second caller would race for the same
// bootloader port.
var flashMu sync.Mutex

// Flasher resets a board into its bootloader and replaces its firmware.
type Flasher struct {
	cfg     Config
	matcher *PortMatcher
	reset   *ResetSequencer
	log     zerolog.Logger
}

// New creates a Flasher with the default configuration modified by opts.
func New(opts ...Option) (*Flasher, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	log := cfg.Logger
	return &Flasher{
		cfg: cfg,
		matcher: &PortMatcher{
			List:     cfg.Lister,
			Reset:    cfg.ResetIdentities,
			Upload:   cfg.UploadIdentities,
			Attempts: cfg.DiscoveryAttempts,
			Interval: cfg.DiscoveryInterval,
			Timeout:  cfg.EnumerationTimeout,
			Logger:   log,
		},
		reset: &ResetSequencer{
			Open:   cfg.Opener,
			Baud:   cfg.ResetBaud,
			Settle: cfg.ResetSettle,
			Clock:  cfg.Clock,
			Logger: log,
		},
		log: log,
	}, nil
}

// Config returns the effective configuration.
func (f *Flasher) Config() Config {
	return f.cfg
}

// Matcher returns the port matcher built from the configuration.
func (f *Flasher) Matcher() *PortMatcher {
	return f.matcher
}

// Flash decodes the Intel HEX file at path and writes it to the device.
func (f *Flasher) Flash(ctx context.Context, path string) Result {
	return f.run(ctx, func() (*ihex.Image, error) {
		f.log.Info().Str("file", path).Msg("decoding firmware")
		return ihex.DecodeFile(f.cfg.Fs, path)
	})
}

// FlashHex is like Flash for in-memory Intel HEX text.
func (f *Flasher) FlashHex(ctx context.Context, data []byte) Result {
	return f.run(ctx, func() (*ihex.Image, error) {
		return ihex.DecodeBytes(data)
	})
}

func (f *Flasher) run(ctx context.Context, decode func() (*ihex.Image, error)) (res Result) {
	if !flashMu.TryLock() {
		res.fail(ErrBusy)
		return res
	}
	defer flashMu.Unlock()

	start := f.cfg.Clock.Now()
	defer func() {
		res.Elapsed = f.cfg.Clock.Since(start)
	}()

	if err := f.flash(ctx, decode, &res); err != nil {
		res.fail(err)
		f.log.Error().Err(err).Stringer("kind", res.Kind).Msg("flash failed")
		return res
	}

	res.Status = StatusSuccess
	f.report(Progress{Phase: PhaseDone, Port: res.UploadPort, Done: res.BytesWritten, Total: res.BytesWritten})
	f.log.Info().
		Str("port", res.UploadPort).
		Int("bytes", res.BytesWritten).
		Int("chunks", res.Chunks).
		Msg("flash complete")
	return res
}

func (f *Flasher) flash(ctx context.Context, decode func() (*ihex.Image, error), res *Result) error {
	f.report(Progress{Phase: PhaseDecoding})
	img, err := decode()
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if img.Len() == 0 {
		return fmt.Errorf("decode: %w", ErrEmptyImage)
	}
	f.log.Debug().Int("bytes", img.Len()).Msg("firmware decoded")

	// Snapshot before reset so the bootloader's port can be told apart from
	// the application's.
	before, err := f.cfg.Lister()
	if err != nil {
		f.log.Warn().Err(err).Msg("pre-reset enumeration failed")
		before = nil
	}

	resetPort, err := f.matcher.FindPort(ctx, RoleReset)
	if err != nil {
		return fmt.Errorf("find reset port: %w", err)
	}
	res.ResetPort = resetPort.Path

	f.report(Progress{Phase: PhaseResetting, Port: resetPort.Path})
	if err := f.reset.Reset(ctx, resetPort.Path); err != nil {
		return err
	}

	f.report(Progress{Phase: PhaseWaiting})
	select {
	case <-f.cfg.Clock.After(f.cfg.BootloaderDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	uploadPort, err := f.matcher.FindNewPort(ctx, RoleUpload, before)
	if err != nil {
		return fmt.Errorf("find upload port: %w", err)
	}
	res.UploadPort = uploadPort.Path

	f.report(Progress{Phase: PhaseConnecting, Port: uploadPort.Path})
	port, err := f.cfg.Opener(uploadPort.Path,
		WithBaudRate(f.cfg.UploadBaud),
		WithReadTimeout(f.cfg.ReadTimeout),
	)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrTransport, uploadPort.Path, err)
	}
	defer func() {
		if err := port.Close(); err != nil {
			f.log.Warn().Err(err).Str("port", uploadPort.Path).Msg("failed to close upload port")
		}
	}()

	if err := port.ResetInputBuffer(); err != nil {
		f.log.Debug().Err(err).Msg("failed to flush stale input")
	}

	image := img.Bytes()
	sess := avr109.NewSession(port,
		avr109.WithSignature(f.cfg.Signature),
		avr109.WithCommandTimeout(f.cfg.CommandTimeout),
		avr109.WithEraseTimeout(f.cfg.EraseTimeout),
		avr109.WithClock(f.cfg.Clock),
		avr109.WithLogger(f.log.With().Str("port", uploadPort.Path).Logger()),
		avr109.WithProgress(func(p avr109.Progress) {
			f.report(Progress{Phase: phaseOf(p.State), Port: uploadPort.Path, Done: p.Done, Total: p.Total})
		}),
	)

	f.report(Progress{Phase: PhaseNegotiating, Port: uploadPort.Path})
	err = sess.Run(ctx, image)

	res.Device = sess.Info()
	res.BytesWritten = sess.Programmed()
	if size := res.Device.ChunkSize; size > 0 {
		res.Chunks = (res.BytesWritten + size - 1) / size
	}
	return err
}

func (f *Flasher) report(p Progress) {
	if f.cfg.Progress != nil {
		f.cfg.Progress(p)
	}
}
