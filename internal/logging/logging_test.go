package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	t.Run("json format", func(t *testing.T) {
		logger, err := New(Config{Level: "info", Format: "json"})
		require.NoError(t, err)
		require.NotNil(t, logger)
		assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
		assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	})

	t.Run("console format with debug level", func(t *testing.T) {
		logger, err := New(Config{Level: "debug", Format: "console"})
		require.NoError(t, err)
		assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("empty format defaults to json", func(t *testing.T) {
		_, err := New(Config{Level: "warn"})
		assert.NoError(t, err)
	})

	t.Run("constant fields", func(t *testing.T) {
		logger, err := New(Config{Level: "info", Fields: map[string]string{"service": "patternd"}})
		require.NoError(t, err)
		assert.NotNil(t, logger)
	})

	t.Run("invalid level", func(t *testing.T) {
		_, err := New(Config{Level: "loud"})
		assert.Error(t, err)
	})

	t.Run("invalid format", func(t *testing.T) {
		_, err := New(Config{Level: "info", Format: "xml"})
		assert.Error(t, err)
	})
}
