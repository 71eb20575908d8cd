package logging

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("info"))
	assert.Equal(t, slog.LevelInfo, parseLevel("nonsense"))
}

func TestNewProducesAllSubsystemLoggers(t *testing.T) {
	loggers := New("debug", true)
	assert.NotNil(t, loggers.Graph)
	assert.NotNil(t, loggers.Runtime)
	assert.NotNil(t, loggers.Server)
	assert.NotNil(t, loggers.Component)
	assert.NotNil(t, loggers.Network)
}
