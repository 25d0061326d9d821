package avr109

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/allbin/avrflash/internal/devicesim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func testImage(n int) []byte {
	img := make([]byte, n)
	for i := range img {
		img[i] = byte(i*7 + 3)
	}
	return img
}

func newTestSession(dev *devicesim.Device, opts ...SessionOption) *Session {
	opts = append([]SessionOption{WithCommandTimeout(50 * time.Millisecond)}, opts...)
	return NewSession(dev, opts...)
}

func TestSessionRun(t *testing.T) {
	dev := devicesim.New(devicesim.WithChunkSize(128))
	image := testImage(1024)

	var progress []Progress
	sess := newTestSession(dev, WithProgress(func(p Progress) {
		progress = append(progress, p)
	}))

	require.NoError(t, sess.Run(context.Background(), image))

	assert.Equal(t, StateClosed, sess.State())
	assert.Equal(t, 8, dev.Count('B'))
	assert.Equal(t, 8, dev.Count('g'))
	assert.Equal(t, 1, dev.Count('e'))
	assert.Equal(t, image, dev.Flash(len(image)))
	assert.True(t, dev.Exited())
	assert.Equal(t, 1024, sess.Programmed())

	// 8 programming updates followed by 8 verification updates.
	require.Len(t, progress, 16)
	assert.Equal(t, Progress{State: StateProgramming, Done: 1024, Total: 1024}, progress[7])
	assert.Equal(t, Progress{State: StateVerifying, Done: 1024, Total: 1024}, progress[15])
}

func TestSessionCommandOrder(t *testing.T) {
	dev := devicesim.New(devicesim.WithChunkSize(256))
	sess := newTestSession(dev)

	require.NoError(t, sess.Run(context.Background(), testImage(300)))

	want := "SVvpabtTPFNQrse" + "ABB" + "Agg" + "LE"
	assert.Equal(t, want, string(dev.Commands()))
}

func TestSessionDeviceInfo(t *testing.T) {
	dev := devicesim.New(devicesim.WithChunkSize(64))
	sess := newTestSession(dev)

	require.NoError(t, sess.Negotiate(context.Background()))

	info := sess.Info()
	assert.Equal(t, "CATERIN", info.SoftwareID)
	assert.Equal(t, "1.0", info.SoftwareVersion)
	assert.Equal(t, byte('S'), info.ProgrammerType)
	assert.True(t, info.AutoIncrement)
	assert.Equal(t, 64, info.ChunkSize)
	assert.Equal(t, byte(0x44), info.DeviceCode)
	assert.Equal(t, "87951E", info.SignatureString())
	assert.Equal(t, StateNegotiating, sess.State())
}

func TestSessionSignatureMismatch(t *testing.T) {
	dev := devicesim.New(devicesim.WithSignature("AVRBOOT"))
	sess := newTestSession(dev)

	err := sess.Run(context.Background(), testImage(256))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSignatureMismatch)

	var se *SignatureMismatchError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "CATERIN", se.Expected)
	assert.Equal(t, "AVRBOOT", se.Actual)

	assert.Equal(t, StateFailed, sess.State())
	assert.Equal(t, 0, dev.Count('e'))
	assert.Equal(t, 0, dev.Count('B'))
	assert.Equal(t, "S", string(dev.Commands()))
}

func TestSessionUnsupportedDevice(t *testing.T) {
	tests := []struct {
		name string
		opts []devicesim.Option
	}{
		{name: "no block mode", opts: []devicesim.Option{devicesim.WithoutBlockMode()}},
		{name: "zero block size", opts: []devicesim.Option{devicesim.WithChunkSize(0)}},
		{name: "negative reply", opts: []devicesim.Option{devicesim.WithReply('b', []byte{'N', 0, 0})}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := devicesim.New(tt.opts...)
			sess := newTestSession(dev)

			err := sess.Run(context.Background(), testImage(128))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnsupportedDevice)
			assert.NotErrorIs(t, err, ErrCommandTimeout)
			assert.Equal(t, 0, dev.Count('e'))
		})
	}
}

func TestSessionBlockCommandNotRecognized(t *testing.T) {
	dev := devicesim.New(devicesim.WithoutBlockMode())
	sess := newTestSession(dev)

	err := sess.Negotiate(context.Background())
	require.ErrorIs(t, err, ErrUnsupportedDevice)
	assert.Contains(t, err.Error(), "block command not recognized")
}

func TestSessionOddChunkWithoutAutoIncrement(t *testing.T) {
	dev := devicesim.New(devicesim.WithChunkSize(63), devicesim.WithoutAutoIncrement())
	sess := newTestSession(dev)

	err := sess.Run(context.Background(), testImage(256))
	require.ErrorIs(t, err, ErrUnsupportedDevice)
	assert.Contains(t, err.Error(), "odd block size 63")
	assert.Equal(t, StateFailed, sess.State())
	assert.Equal(t, 0, dev.Count('e'))
	assert.Equal(t, 0, dev.Count('B'))
}

func TestSessionOddChunkWithAutoIncrement(t *testing.T) {
	dev := devicesim.New(devicesim.WithChunkSize(63))
	sess := newTestSession(dev)
	image := testImage(256)

	require.NoError(t, sess.Run(context.Background(), image))
	assert.Equal(t, image, dev.Flash(len(image)))
}

func TestSessionImageTooLarge(t *testing.T) {
	dev := devicesim.New(devicesim.WithChunkSize(128))
	sess := newTestSession(dev)

	err := sess.Run(context.Background(), make([]byte, MaxFlashSize+1))
	require.ErrorIs(t, err, ErrUnsupportedDevice)
	assert.Contains(t, err.Error(), "address range")
	assert.Equal(t, StateFailed, sess.State())
	assert.Equal(t, 0, dev.Count('e'))
	assert.Equal(t, 0, dev.Count('B'))
}

func TestSessionIgnoresCancelOnceErasing(t *testing.T) {
	dev := devicesim.New(devicesim.WithChunkSize(128))
	image := testImage(1024)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess := newTestSession(dev, WithProgress(func(p Progress) {
		if p.State == StateProgramming && p.Done >= 256 {
			cancel()
		}
	}))

	require.NoError(t, sess.Run(ctx, image))
	require.Error(t, ctx.Err())

	assert.Equal(t, StateClosed, sess.State())
	assert.Equal(t, 8, dev.Count('B'))
	assert.Equal(t, 8, dev.Count('g'))
	assert.Equal(t, image, dev.Flash(len(image)))
	assert.True(t, dev.Exited())
}

func TestSessionCanceledBeforeErase(t *testing.T) {
	dev := devicesim.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newTestSession(dev).Run(ctx, testImage(128))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, dev.Count('e'))
	assert.False(t, dev.Exited())
}

func TestSessionCommandTimeout(t *testing.T) {
	dev := devicesim.New(devicesim.WithSilent('e'))
	sess := newTestSession(dev, WithEraseTimeout(20*time.Millisecond))

	err := sess.Run(context.Background(), testImage(128))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCommandTimeout)
	assert.Contains(t, err.Error(), "erasing")
	assert.Equal(t, 0, dev.Count('B'))
}

func TestSessionUnexpectedAck(t *testing.T) {
	dev := devicesim.New(devicesim.WithReply('e', []byte{'?'}))
	sess := newTestSession(dev)

	err := sess.Run(context.Background(), testImage(128))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnexpectedResponse)

	var re *ResponseError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "e", re.Command)
}

func TestSessionVerificationFailure(t *testing.T) {
	dev := devicesim.New(devicesim.WithChunkSize(128), devicesim.WithCorruptByte(513))
	sess := newTestSession(dev)

	err := sess.Run(context.Background(), testImage(1024))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVerificationFailed)

	var ve *VerificationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, 513, ve.Offset)
	assert.Equal(t, testImage(1024)[513], ve.Expected)
	assert.Equal(t, testImage(1024)[513]^0xFF, ve.Actual)

	assert.Equal(t, StateFailed, sess.State())
	assert.False(t, dev.Exited())
	// Reads stop at the chunk holding the bad byte.
	assert.Equal(t, 5, dev.Count('g'))
}

func TestSessionWithoutAutoIncrement(t *testing.T) {
	dev := devicesim.New(devicesim.WithChunkSize(128), devicesim.WithoutAutoIncrement())
	sess := newTestSession(dev)
	image := testImage(1000)

	require.NoError(t, sess.Run(context.Background(), image))

	// One address per chunk when programming and again when verifying.
	assert.Equal(t, 16, dev.Count('A'))
	assert.Equal(t, image, dev.Flash(len(image)))
}

func TestSessionStateOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("step skipped", func(t *testing.T) {
		sess := newTestSession(devicesim.New())
		err := sess.Erase(ctx)
		assert.ErrorIs(t, err, ErrInvalidState)

		var se *StateError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, StateNew, se.From)
		assert.Equal(t, StateErasing, se.To)
	})

	t.Run("step repeated", func(t *testing.T) {
		sess := newTestSession(devicesim.New())
		require.NoError(t, sess.Negotiate(ctx))
		assert.ErrorIs(t, sess.Negotiate(ctx), ErrInvalidState)
	})

	t.Run("failed is absorbing", func(t *testing.T) {
		sess := newTestSession(devicesim.New(devicesim.WithSignature("XXXXXXX")))
		require.Error(t, sess.Negotiate(ctx))
		assert.Equal(t, StateFailed, sess.State())
		assert.ErrorIs(t, sess.Erase(ctx), ErrInvalidState)
		assert.Equal(t, StateFailed, sess.State())
	})

	t.Run("closed after exit", func(t *testing.T) {
		sess := newTestSession(devicesim.New())
		require.NoError(t, sess.Run(ctx, testImage(64)))
		assert.ErrorIs(t, sess.Negotiate(ctx), ErrInvalidState)
	})
}

func TestSessionFragmentedDevice(t *testing.T) {
	dev := devicesim.New(devicesim.WithChunkSize(128), devicesim.WithFragmentSize(3))
	sess := newTestSession(dev)
	image := testImage(700)

	require.NoError(t, sess.Run(context.Background(), image))
	assert.Equal(t, image, dev.Flash(len(image)))
}

func TestSessionVerifyProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		size := rapid.IntRange(1, 4096).Draw(t, "size")
		chunk := rapid.SampledFrom([]int{32, 64, 128, 256}).Draw(t, "chunk")
		image := rapid.SliceOfN(rapid.Byte(), size, size).Draw(t, "image")
		corrupt := rapid.Bool().Draw(t, "corrupt")

		opts := []devicesim.Option{devicesim.WithChunkSize(chunk)}
		offset := -1
		if corrupt {
			offset = rapid.IntRange(0, size-1).Draw(t, "offset")
			opts = append(opts, devicesim.WithCorruptByte(offset))
		}

		dev := devicesim.New(opts...)
		err := newTestSession(dev).Run(context.Background(), image)

		if !corrupt {
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !bytes.Equal(dev.Flash(size), image) {
				t.Fatalf("flash contents differ from image")
			}
			if got, want := dev.Count('B'), (size+chunk-1)/chunk; got != want {
				t.Fatalf("got %d block writes, want %d", got, want)
			}
			return
		}

		var ve *VerificationError
		if !errors.As(err, &ve) {
			t.Fatalf("expected VerificationError, got %v", err)
		}
		if ve.Offset != offset {
			t.Fatalf("mismatch reported at %d, corrupted %d", ve.Offset, offset)
		}
	})
}

func TestChunks(t *testing.T) {
	assert.Nil(t, Chunks(nil, 128))
	assert.Nil(t, Chunks([]byte{1, 2, 3}, 0))

	big := Chunks(make([]byte, MaxBlockSize+10), 1<<20)
	require.Len(t, big, 2)
	assert.Len(t, big[0].Data, MaxBlockSize)
	assert.Equal(t, MaxBlockSize, big[1].Offset)

	chunks := Chunks([]byte{1, 2, 3, 4, 5}, 2)
	require.Len(t, chunks, 3)
	assert.Equal(t, Chunk{Offset: 4, Data: []byte{5}}, chunks[2])

	rapid.Check(t, func(t *rapid.T) {
		data := rapid.SliceOfN(rapid.Byte(), 1, 2048).Draw(t, "data")
		size := rapid.IntRange(1, 300).Draw(t, "size")

		chunks := Chunks(data, size)
		if want := (len(data) + size - 1) / size; len(chunks) != want {
			t.Fatalf("got %d chunks, want %d", len(chunks), want)
		}

		var joined []byte
		for i, c := range chunks {
			if len(c.Data) == 0 || len(c.Data) > size {
				t.Fatalf("chunk %d has length %d", i, len(c.Data))
			}
			if c.Offset != len(joined) {
				t.Fatalf("chunk %d at offset %d, want %d", i, c.Offset, len(joined))
			}
			joined = append(joined, c.Data...)
		}
		if !bytes.Equal(joined, data) {
			t.Fatalf("chunks do not concatenate to the input")
		}
	})
}

func TestBuilders(t *testing.T) {
	assert.Equal(t, []byte{'A', 0x01, 0x40}, BuildSetAddress(0x0140))
	assert.Equal(t, []byte{'B', 0x00, 0x02, 'F', 0xAA, 0xBB}, BuildBlockWrite(MemoryFlash, []byte{0xAA, 0xBB}))
	assert.Equal(t, []byte{'g', 0x00, 0x80, 'F'}, BuildBlockRead(MemoryFlash, 128))
	assert.Equal(t, []byte{'T', 0x44}, BuildSetDeviceType(0x44))
}
