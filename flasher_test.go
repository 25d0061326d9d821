package avrflash

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/allbin/avrflash/ihex"
	"github.com/allbin/avrflash/internal/devicesim"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// bench models one board: the application port that is touched at 1200
// baud and the bootloader port that appears once the touch is done.
type bench struct {
	mu       sync.Mutex
	app      *devicesim.Device
	boot     *devicesim.Device
	appInfo  PortInfo
	bootInfo PortInfo
	opens    map[string]int
	openErr  map[string]error
	present  bool
}

func newBench(bootOpts ...devicesim.Option) *bench {
	return &bench{
		app:      devicesim.New(),
		boot:     devicesim.New(bootOpts...),
		appInfo:  leonardo,
		bootInfo: bootPort,
		opens:    make(map[string]int),
		openErr:  make(map[string]error),
		present:  true,
	}
}

func (b *bench) list() ([]PortInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.present {
		return []PortInfo{ftdi}, nil
	}
	if b.app.Closed() {
		return []PortInfo{ftdi, b.bootInfo}, nil
	}
	return []PortInfo{ftdi, b.appInfo}, nil
}

func (b *bench) open(path string, opts ...PortOption) (Port, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.opens[path]++
	if err := b.openErr[path]; err != nil {
		return nil, err
	}
	switch path {
	case b.appInfo.Path:
		return b.app, nil
	case b.bootInfo.Path:
		return b.boot, nil
	}
	return nil, ErrDeviceNotFound
}

func (b *bench) totalOpens() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, c := range b.opens {
		n += c
	}
	return n
}

func newTestFlasher(t *testing.T, b *bench, opts ...Option) *Flasher {
	t.Helper()

	base := []Option{
		WithResetSettle(0),
		WithBootloaderDelay(0),
		WithDiscovery(3, time.Millisecond, time.Second),
		WithTimeouts(time.Millisecond, 50*time.Millisecond, 50*time.Millisecond),
		WithLister(b.list),
		WithOpener(b.open),
	}
	f, err := New(append(base, opts...)...)
	require.NoError(t, err)
	return f
}

func testHex(t *testing.T, n int) (string, []byte) {
	t.Helper()

	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i*13 + 5)
	}
	text, err := ihex.EncodeString(data)
	require.NoError(t, err)
	return text, data
}

func TestFlashSuccess(t *testing.T) {
	b := newBench(devicesim.WithChunkSize(128))
	text, data := testHex(t, 1024)

	var phases []Phase
	f := newTestFlasher(t, b, WithProgress(func(p Progress) {
		if len(phases) == 0 || phases[len(phases)-1] != p.Phase {
			phases = append(phases, p.Phase)
		}
	}))

	res := f.FlashHex(context.Background(), []byte(text))
	require.True(t, res.OK(), res.Message())

	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, KindNone, res.Kind)
	assert.NoError(t, res.Err)
	assert.Equal(t, "/dev/ttyACM0", res.ResetPort)
	assert.Equal(t, "/dev/ttyACM1", res.UploadPort)
	assert.Equal(t, 1024, res.BytesWritten)
	assert.Equal(t, 8, res.Chunks)
	assert.Equal(t, 128, res.Device.ChunkSize)
	assert.Contains(t, res.Message(), "flashed 1024 bytes to /dev/ttyACM1")

	assert.Equal(t, 8, b.boot.Count('B'))
	assert.Equal(t, 8, b.boot.Count('g'))
	assert.Equal(t, data, b.boot.Flash(len(data)))
	assert.True(t, b.boot.Exited())

	// Both ports are released, and the reset touch dropped DTR.
	assert.True(t, b.app.Closed())
	assert.False(t, b.app.DTR())
	assert.True(t, b.boot.Closed())

	assert.Equal(t, []Phase{
		PhaseDecoding, PhaseResetting, PhaseWaiting, PhaseConnecting,
		PhaseNegotiating, PhaseProgramming, PhaseVerifying, PhaseDone,
	}, phases)
}

func TestFlashFile(t *testing.T) {
	b := newBench()
	text, data := testHex(t, 300)

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/hexs/v3/firmware_v4.5.4.hex", []byte(text), 0o644))

	f := newTestFlasher(t, b, WithFs(fs))
	res := f.Flash(context.Background(), "/hexs/v3/firmware_v4.5.4.hex")
	require.True(t, res.OK(), res.Message())
	assert.Equal(t, data, b.boot.Flash(len(data)))

	res = f.Flash(context.Background(), "/hexs/v3/missing.hex")
	assert.False(t, res.OK())
	assert.Equal(t, 1, b.opens["/dev/ttyACM1"])
}

func TestFlashSignatureMismatch(t *testing.T) {
	b := newBench(devicesim.WithSignature("LUFACDC"))
	text, _ := testHex(t, 256)

	res := newTestFlasher(t, b).FlashHex(context.Background(), []byte(text))

	assert.False(t, res.OK())
	assert.Equal(t, StatusFailure, res.Status)
	assert.Equal(t, KindSignatureMismatch, res.Kind)
	assert.ErrorIs(t, res.Err, ErrSignatureMismatch)
	assert.Equal(t, "wrong or unsupported device", res.Kind.Category())

	assert.True(t, b.boot.Closed())
	assert.Equal(t, 0, b.boot.Count('e'))
	assert.Equal(t, 0, b.boot.Count('B'))
}

func TestFlashPortNotFound(t *testing.T) {
	b := newBench()
	b.present = false
	text, _ := testHex(t, 256)

	res := newTestFlasher(t, b).FlashHex(context.Background(), []byte(text))

	assert.Equal(t, KindPortNotFound, res.Kind)
	assert.ErrorIs(t, res.Err, ErrPortNotFound)
	assert.Equal(t, "device not found", res.Kind.Category())
	assert.Equal(t, 0, b.totalOpens())
	assert.Empty(t, res.ResetPort)
}

func TestFlashVerificationFailure(t *testing.T) {
	b := newBench(devicesim.WithChunkSize(128), devicesim.WithCorruptByte(513))
	text, _ := testHex(t, 1024)

	res := newTestFlasher(t, b).FlashHex(context.Background(), []byte(text))

	assert.Equal(t, KindVerificationFailed, res.Kind)
	assert.Equal(t, "verification failed", res.Kind.Category())
	offset, ok := res.Offset()
	assert.True(t, ok)
	assert.Equal(t, 513, offset)
	assert.True(t, b.boot.Closed())
	assert.False(t, b.boot.Exited())
}

func TestFlashMalformedImage(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "bad checksum", text: ":0400000001020304F3\n:00000001FF\n"},
		{name: "missing eof", text: ":0400000001020304F2\n"},
		{name: "empty image", text: ":00000001FF\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBench()
			res := newTestFlasher(t, b).FlashHex(context.Background(), []byte(tt.text))

			assert.Equal(t, KindMalformedRecord, res.Kind)
			assert.Equal(t, "invalid firmware image", res.Kind.Category())
			assert.Equal(t, 0, b.totalOpens())
		})
	}
}

func TestFlashResetFailure(t *testing.T) {
	b := newBench()
	b.openErr["/dev/ttyACM0"] = ErrDeviceInUse
	text, _ := testHex(t, 128)

	res := newTestFlasher(t, b).FlashHex(context.Background(), []byte(text))

	assert.Equal(t, KindResetFailed, res.Kind)
	assert.ErrorIs(t, res.Err, ErrDeviceInUse)
	assert.Equal(t, 0, b.opens["/dev/ttyACM1"])
}

func TestFlashUploadOpenFailure(t *testing.T) {
	b := newBench()
	b.openErr["/dev/ttyACM1"] = ErrPermissionDenied
	text, _ := testHex(t, 128)

	res := newTestFlasher(t, b).FlashHex(context.Background(), []byte(text))

	assert.Equal(t, KindTransport, res.Kind)
	assert.ErrorIs(t, res.Err, ErrTransport)
	assert.ErrorIs(t, res.Err, ErrPermissionDenied)
	assert.Contains(t, res.Message(), "unexpected I/O error")
}

func TestFlashTransportError(t *testing.T) {
	b := newBench(devicesim.WithReadError(errors.New("device unplugged")))
	text, _ := testHex(t, 128)

	res := newTestFlasher(t, b).FlashHex(context.Background(), []byte(text))

	assert.Equal(t, KindTransport, res.Kind)
	assert.True(t, b.boot.Closed())
}

func TestFlashBusy(t *testing.T) {
	b := newBench()
	text, _ := testHex(t, 128)
	f := newTestFlasher(t, b)

	flashMu.Lock()
	res := f.FlashHex(context.Background(), []byte(text))
	flashMu.Unlock()

	assert.Equal(t, KindBusy, res.Kind)
	assert.ErrorIs(t, res.Err, ErrBusy)
	assert.Equal(t, 0, b.totalOpens())

	// The lock is released after each run.
	res = f.FlashHex(context.Background(), []byte(text))
	assert.True(t, res.OK(), res.Message())
}

func TestFlashCanceled(t *testing.T) {
	b := newBench()
	text, _ := testHex(t, 128)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := newTestFlasher(t, b).FlashHex(ctx, []byte(text))
	assert.Equal(t, KindCanceled, res.Kind)
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestFlashCancelWhileProgramming(t *testing.T) {
	b := newBench(devicesim.WithChunkSize(128))
	text, image := testHex(t, 1024)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var phases []Phase
	f := newTestFlasher(t, b, WithProgress(func(p Progress) {
		if len(phases) == 0 || phases[len(phases)-1] != p.Phase {
			phases = append(phases, p.Phase)
		}
		if p.Phase == PhaseProgramming && p.Done >= 256 {
			cancel()
		}
	}))

	res := f.FlashHex(ctx, []byte(text))
	require.True(t, res.OK(), res.Message())
	require.Error(t, ctx.Err())

	assert.Equal(t, 1024, res.BytesWritten)
	assert.Equal(t, 8, b.boot.Count('B'))
	assert.Equal(t, 8, b.boot.Count('g'))
	assert.Equal(t, image, b.boot.Flash(len(image)))
	assert.True(t, b.boot.Exited())
	assert.True(t, b.boot.Closed())
	assert.Equal(t, PhaseDone, phases[len(phases)-1])
}
