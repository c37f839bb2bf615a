// ABOUTME: Tests for logger setup and the color handler layout
// ABOUTME: Runs without colors so output can be compared as plain text

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/triage-chat/internal/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("whatever"))
}

func TestSetup_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(config.LoggingConfig{Level: "info", Format: "json"}, &buf, false)

	logger.Debug("hidden")
	logger.Info("connected", "identity", "patient/session_1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "connected", rec["msg"])
	assert.Equal(t, "patient/session_1", rec["identity"])
}

func TestColorHandler_PlainLayout(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(config.LoggingConfig{Level: "debug"}, &buf, false)

	logger.With("component", "transport").Warn("connection lost", "status", 1006)

	line := buf.String()
	assert.Contains(t, line, " WRN connection lost component=transport status=1006\n")
	assert.NotContains(t, line, "\x1b[")
}

func TestColorHandler_Groups(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewColorHandler(&buf, slog.LevelInfo, false))

	logger.WithGroup("persist").Info("flushed", "room", "r1", slog.Group("write", "count", 3))

	assert.Contains(t, buf.String(), "flushed persist.room=r1 persist.write.count=3")
}

func TestColorHandler_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewColorHandler(&buf, slog.LevelWarn, false))

	logger.Info("quiet")
	logger.Error("loud")

	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "ERR loud")
}

func TestColorHandler_Colorized(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewColorHandler(&buf, slog.LevelInfo, true))

	logger.Info("hello")

	assert.Contains(t, buf.String(), "\x1b[")
}
