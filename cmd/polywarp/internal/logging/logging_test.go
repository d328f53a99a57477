package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	l, err := New("off")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.ErrorLevel))

	l, err = New("warn")
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))

	_, err = New("loud")
	assert.Error(t, err)
}

func TestSetLogger(t *testing.T) {
	l := zap.NewExample()
	SetLogger(l)
	assert.Same(t, l, Logger())

	SetLogger(nil)
	assert.NotNil(t, Logger())
	assert.NotSame(t, l, Logger())
}
