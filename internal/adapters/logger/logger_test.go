package logger_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kernelproxy/internal/adapters/logger"
	"go.trai.ch/kernelproxy/internal/core/domain"
	"go.trai.ch/zerr"
)

// newTestLogger creates a logger writing to a buffer without ANSI escape codes.
func newTestLogger(t *testing.T) (*logger.Logger, *bytes.Buffer) {
	t.Helper()
	t.Setenv("NO_COLOR", "1")

	buf := &bytes.Buffer{}
	lg := logger.New().(*logger.Logger)
	lg.SetOutput(buf)
	return lg, buf
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		name string
		log  func(*logger.Logger)
		want string
	}{
		{name: "info", log: func(l *logger.Logger) { l.Info("worker ready") }, want: "worker ready\n"},
		{name: "warn", log: func(l *logger.Logger) { l.Warn("release failed") }, want: "! release failed\n"},
		{name: "debug filtered", log: func(l *logger.Logger) { l.Debug("kernel attached") }, want: ""},
		{name: "nil error", log: func(l *logger.Logger) { l.Error(nil) }, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lg, buf := newTestLogger(t)
			tt.log(lg)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestLogger_SetLevel(t *testing.T) {
	lg, buf := newTestLogger(t)

	require.NoError(t, lg.SetLevel("debug"))
	lg.Debug("kernel attached")
	assert.Equal(t, "· kernel attached\n", buf.String())

	buf.Reset()
	require.NoError(t, lg.SetLevel("error"))
	lg.Warn("hidden")
	assert.Empty(t, buf.String())

	err := lg.SetLevel("loud")
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestLogger_Error(t *testing.T) {
	lg, buf := newTestLogger(t)

	lg.Error(zerr.Wrap(errors.New("root cause"), "outer"))
	assert.Equal(t, "✗ Error: outer\n\n  Caused by:\n    → root cause\n", buf.String())
}

func TestLogger_JSON(t *testing.T) {
	lg, buf := newTestLogger(t)
	require.NoError(t, lg.Configure(domain.LogConfig{Level: "info", JSON: true}))

	lg.Info("worker ready")
	assert.Contains(t, buf.String(), `"level":"INFO"`)
	assert.Contains(t, buf.String(), `"msg":"worker ready"`)

	buf.Reset()
	lg.Error(zerr.New("boom"))
	assert.Contains(t, buf.String(), `"msg":"operation failed"`)
	assert.Contains(t, buf.String(), "boom")
}

func TestLogger_SetOutputKeepsMode(t *testing.T) {
	lg, _ := newTestLogger(t)
	lg.SetJSON(true)

	var buf bytes.Buffer
	lg.SetOutput(&buf)
	lg.Info("moved")
	assert.Contains(t, buf.String(), `"msg":"moved"`)
}

func TestParseLevel(t *testing.T) {
	for _, name := range []string{"debug", "info", "", "warn", "WARNING", "error"} {
		_, err := logger.ParseLevel(name)
		assert.NoError(t, err, name)
	}
	_, err := logger.ParseLevel("trace")
	assert.Error(t, err)
}
