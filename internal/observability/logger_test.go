package observability

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/couchcryptid/parcel-sensor-service/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestNewLogger_Formats(t *testing.T) {
	jsonLogger := NewLogger(&config.Config{LogLevel: "debug", LogFormat: "json"})
	_, isJSON := jsonLogger.Handler().(*slog.JSONHandler)
	assert.True(t, isJSON)
	assert.True(t, jsonLogger.Enabled(t.Context(), slog.LevelDebug))

	textLogger := NewLogger(&config.Config{LogLevel: "warn", LogFormat: "text"})
	_, isText := textLogger.Handler().(*slog.TextHandler)
	assert.True(t, isText)
	assert.False(t, textLogger.Enabled(t.Context(), slog.LevelInfo))
}
