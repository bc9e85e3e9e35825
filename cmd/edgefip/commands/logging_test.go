package commands

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{in: "info", want: zapcore.InfoLevel},
		{in: "debug", want: zapcore.DebugLevel},
		{in: "error", want: zapcore.ErrorLevel},
		{in: "0", want: zapcore.InfoLevel},
		{in: "2", want: zapcore.Level(-2)},
		{in: "-1", wantErr: true},
		{in: "loud", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := parseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewLogger(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger, err := newLogger("info", &buf)
	require.NoError(t, err)

	logger.Info("pair created", "external", "198.51.100.1")
	logger.V(1).Info("hidden")

	out := buf.String()
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "pair created")
	assert.Contains(t, out, "198.51.100.1")
	assert.NotContains(t, out, "hidden")
	assert.NotContains(t, out, "\x1b[", "no colour when not a terminal")
}

func TestNewLogger_Verbosity(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger, err := newLogger("2", &buf)
	require.NoError(t, err)

	logger.V(2).Info("request sent")
	assert.Contains(t, buf.String(), "request sent")
}
