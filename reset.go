package avrflash

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// ResetSequencer performs the 1200-baud touch that makes a Caterina board
// jump into its bootloader.
type ResetSequencer struct {
	Open   OpenFunc
	Baud   int
	Settle time.Duration
	Clock  clockwork.Clock
	Logger zerolog.Logger
}

// Reset opens path at the reset baud rate, drops DTR, waits the settle
// interval and closes the port. It does not wait for the device to
// re-enumerate.
func (r *ResetSequencer) Reset(ctx context.Context, path string) error {
	open := r.Open
	if open == nil {
		open = Open
	}
	clock := r.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	baud := r.Baud
	if baud == 0 {
		baud = DefaultResetBaud
	}

	r.Logger.Info().Str("port", path).Int("baud", baud).Msg("resetting device")

	p, err := open(path, WithBaudRate(baud))
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrResetFailed, path, err)
	}

	if err := p.SetDTR(false); err != nil {
		r.close(p, path)
		return fmt.Errorf("%w: drop DTR on %s: %w", ErrResetFailed, path, err)
	}

	select {
	case <-clock.After(r.Settle):
	case <-ctx.Done():
		r.close(p, path)
		return ctx.Err()
	}

	r.close(p, path)
	return nil
}

// The device usually detaches as soon as it sees the touch, so a failed
// close is expected and only logged.
func (r *ResetSequencer) close(p Port, path string) {
	if err := p.Close(); err != nil {
		r.Logger.Debug().Err(err).Str("port", path).Msg("close after reset")
	}
}
