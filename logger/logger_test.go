package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	l, err := New(Config{Level: "debug", Encoding: "json"})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	l, err = New(DefaultConfig())
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
	_, err = New(Config{Encoding: "xml"})
	assert.Error(t, err)
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
}
