package avrflash

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allbin/avrflash/internal/devicesim"
)

// recordingOpener hands out dev and remembers the configuration it was
// asked to open with.
type recordingOpener struct {
	dev    Port
	err    error
	paths  []string
	config PortConfig
}

func (o *recordingOpener) open(path string, opts ...PortOption) (Port, error) {
	o.paths = append(o.paths, path)
	o.config = DefaultPortConfig()
	for _, opt := range opts {
		if err := opt(&o.config); err != nil {
			return nil, err
		}
	}
	if o.err != nil {
		return nil, o.err
	}
	return o.dev, nil
}

type dtrFailPort struct {
	*devicesim.Device
}

func (dtrFailPort) SetDTR(bool) error {
	return errors.New("ioctl failed")
}

func TestResetSequence(t *testing.T) {
	clock := clockwork.NewFakeClock()
	dev := devicesim.New()
	opener := &recordingOpener{dev: dev}

	r := &ResetSequencer{
		Open:   opener.open,
		Baud:   1200,
		Settle: 250 * time.Millisecond,
		Clock:  clock,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- r.Reset(ctx, "/dev/ttyACM0")
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	// DTR is already low while the settle interval runs.
	assert.False(t, dev.DTR())
	assert.False(t, dev.Closed())

	clock.Advance(250 * time.Millisecond)
	require.NoError(t, <-done)

	assert.True(t, dev.Closed())
	assert.Equal(t, []string{"/dev/ttyACM0"}, opener.paths)
	assert.Equal(t, 1200, opener.config.BaudRate)
}

func TestResetOpenFailure(t *testing.T) {
	opener := &recordingOpener{err: ErrPermissionDenied}
	r := &ResetSequencer{Open: opener.open, Clock: clockwork.NewFakeClock()}

	err := r.Reset(context.Background(), "/dev/ttyACM0")
	assert.ErrorIs(t, err, ErrResetFailed)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Equal(t, DefaultResetBaud, opener.config.BaudRate)
}

func TestResetDTRFailure(t *testing.T) {
	dev := devicesim.New()
	opener := &recordingOpener{dev: dtrFailPort{dev}}
	r := &ResetSequencer{Open: opener.open, Clock: clockwork.NewFakeClock()}

	err := r.Reset(context.Background(), "/dev/ttyACM0")
	assert.ErrorIs(t, err, ErrResetFailed)
	assert.True(t, dev.Closed())
}

func TestResetCloseErrorIgnored(t *testing.T) {
	dev := devicesim.New()
	require.NoError(t, dev.Close())

	// A device that vanished before close still counts as reset.
	opener := &recordingOpener{dev: dev}
	r := &ResetSequencer{Open: opener.open, Settle: 0, Clock: clockwork.NewRealClock()}

	assert.NoError(t, r.Reset(context.Background(), "/dev/ttyACM0"))
}

func TestResetCanceled(t *testing.T) {
	dev := devicesim.New()
	opener := &recordingOpener{dev: dev}
	r := &ResetSequencer{Open: opener.open, Settle: time.Hour, Clock: clockwork.NewFakeClock()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Reset(ctx, "/dev/ttyACM0")
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, dev.Closed())
}
