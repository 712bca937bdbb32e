package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestNew_level(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	assert.True(t, New().Core().Enabled(zap.DebugLevel))

	t.Setenv("LOG_LEVEL", "")
	logger := New()
	assert.False(t, logger.Core().Enabled(zap.DebugLevel))
	assert.True(t, logger.Core().Enabled(zap.InfoLevel))
}
