package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestComponentJSON(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Level: slog.LevelInfo, Format: FormatJSON, Writer: &buf})

	Component("writer").Info("file opened", "sensor", "Weather Sensor")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "writer", entry["component"])
	assert.Equal(t, "file opened", entry["msg"])
	assert.Equal(t, "Weather Sensor", entry["sensor"])
}

func TestTextHandlerWithoutTerminalHasNoColor(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Level: slog.LevelDebug, Format: FormatText, Writer: &buf})

	Component("sampler").Debug("cycle skipped", "sensor", "demo")

	out := buf.String()
	assert.Contains(t, out, "cycle skipped")
	assert.Contains(t, out, "component=sampler")
	assert.NotContains(t, out, "\x1b[")
}

func TestOr(t *testing.T) {
	var buf bytes.Buffer
	custom := slog.New(slog.NewTextHandler(&buf, nil))

	assert.Same(t, custom, Or(custom, "x"))
	assert.NotNil(t, Or(nil, "x"))
}
