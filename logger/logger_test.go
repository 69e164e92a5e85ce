package logger

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestForwardersSafeBeforeInitialize(t *testing.T) {
	// The package-level no-op logger must absorb calls made before
	// Initialize, e.g. from config loading during early startup.
	assert.NotPanics(t, func() {
		Info("hello")
		Infof("hello %s", "world")
		Infow("hello", "run_id", "run_x")
		Warnw("careful", "engine", "ctakes")
		Errorw("broken", "error", "nope")
		Debugw("detail", "nct", "NCT00001234")
	})
}

func TestInitialize(t *testing.T) {
	require.NoError(t, Initialize(false))
	assert.False(t, JSONOutput)
	assert.NotNil(t, Logger)

	require.NoError(t, Initialize(true))
	assert.True(t, JSONOutput)
}

func TestVerbosityToLevel(t *testing.T) {
	tests := []struct {
		verbosity int
		want      zapcore.Level
	}{
		{VerbosityUser, zapcore.WarnLevel},
		{VerbosityInfo, zapcore.InfoLevel},
		{VerbosityDebug, zapcore.DebugLevel},
		{VerbosityTrace, zapcore.DebugLevel},
		{7, zapcore.DebugLevel},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, VerbosityToLevel(tt.verbosity), "verbosity %d", tt.verbosity)
	}
}

func TestAbbreviateName(t *testing.T) {
	assert.Equal(t, "runner", abbreviateName("runner"))
	assert.Equal(t, "n.ctakes", abbreviateName("nlp.ctakes"))
	assert.Equal(t, "r.store.sqlite", abbreviateName("runner.store.sqlite"))
}

func TestExtractFieldValues(t *testing.T) {
	fields := []zapcore.Field{
		zap.String("run_id", "run_7hKw"),
		zap.Int("trials", 12),
		zap.Int("waiting", 3),
	}

	out := extractFieldValues(fields)
	assert.Contains(t, out, "run_7hKw")
	assert.Contains(t, out, "12")
	assert.Contains(t, out, "waiting")
}

func TestExtractFieldValuesIgnoresUnknownKeys(t *testing.T) {
	fields := []zapcore.Field{
		zap.String("unrelated", "value"),
	}
	assert.Equal(t, "", extractFieldValues(fields))
}

func TestConsoleEncoderEntry(t *testing.T) {
	enc := newConsoleEncoder()
	entry := zapcore.Entry{
		Level:      zapcore.WarnLevel,
		Message:    "engine output directory missing",
		LoggerName: "nlp.metamap",
	}

	buf, err := enc.EncodeEntry(entry, []zapcore.Field{zap.String("engine", "metamap")})
	require.NoError(t, err)

	line := buf.String()
	assert.Contains(t, line, "WARN")
	assert.Contains(t, line, "n.metamap")
	assert.Contains(t, line, "engine output directory missing")
	assert.True(t, strings.HasSuffix(line, "\n"))
}
