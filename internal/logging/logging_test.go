package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    zerolog.Level
		wantErr bool
	}{
		{in: "", want: zerolog.WarnLevel},
		{in: "debug", want: zerolog.DebugLevel},
		{in: "INFO", want: zerolog.InfoLevel},
		{in: "trace", want: zerolog.TraceLevel},
		{in: "loud", wantErr: true},
	}

	for _, tt := range tests {
		lvl, err := ParseLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, lvl, tt.in)
	}
}

func TestNewConsole(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, closer, err := New(Options{Level: "info", Console: &buf, NoColor: true})
	require.NoError(t, err)
	defer closer.Close()

	logger.Debug().Msg("hidden")
	logger.Info().Str("port", "/dev/ttyACM1").Msg("opened upload port")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "opened upload port")
	assert.Contains(t, out, "port=/dev/ttyACM1")
}

func TestNewFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "avrflash.log")
	var buf bytes.Buffer
	logger, closer, err := New(Options{Level: "debug", File: path, Console: &buf})
	require.NoError(t, err)

	logger.Debug().Int("bytes", 128).Msg("programmed chunk")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"bytes":128`)
	assert.Contains(t, string(data), `"message":"programmed chunk"`)
}

func TestNewInvalidLevel(t *testing.T) {
	t.Parallel()

	_, closer, err := New(Options{Level: "verbose"})
	assert.Error(t, err)
	assert.NotNil(t, closer)
}
