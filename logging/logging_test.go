package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewInstallsGlobal(t *testing.T) {
	prev := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(prev) })

	logger, err := New("debug", "json")
	require.NoError(t, err)
	assert.True(t, logger.Desugar().Core().Enabled(zapcore.DebugLevel))
	assert.True(t, zap.L().Core().Enabled(zapcore.DebugLevel))
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := New("info", "xml")
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.WarnLevel, parseLevel("WARNING"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel(""))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
}
