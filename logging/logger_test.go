package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(level LogLevel) (*TeamworkLogger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	cfg.Output = buf
	return NewLogger(cfg), buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestTeamworkLogger_KeyValueArgs(t *testing.T) {
	l, buf := newBufferLogger(LogLevelDebug)
	l.WithRun("research", "run-1").WithComponent("workflow").Info("agent.run.start", "agent", "writer")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "agent.run.start", lines[0]["msg"])
	assert.Equal(t, "writer", lines[0]["agent"])
	assert.Equal(t, "run-1", lines[0]["run_id"])
	assert.Equal(t, "research", lines[0]["workflow"])
	assert.Equal(t, "workflow", lines[0]["component"])
}

func TestTeamworkLogger_LevelFilter(t *testing.T) {
	l, buf := newBufferLogger(LogLevelWarn)
	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown")
	assert.Len(t, decodeLines(t, buf), 1)
}

func TestTeamworkLogger_DomainHelpers(t *testing.T) {
	l, buf := newBufferLogger(LogLevelDebug)
	l.LogToolCall("save_file", time.Millisecond, true, nil)
	l.LogLLMCall("gpt", 12, time.Millisecond, false, errors.New("rate limited"))
	l.LogStep(3, "writer", "agent.run", 2)
	l.LogRun(5, time.Second, true, nil)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 4)
	assert.Equal(t, "tool.call.completed", lines[0]["msg"])
	assert.Equal(t, "llm.call.failed", lines[1]["msg"])
	assert.Equal(t, "rate limited", lines[1]["error"])
	assert.Equal(t, "workflow.step", lines[2]["msg"])
	assert.Equal(t, float64(3), lines[2]["step"])
	assert.Equal(t, "workflow.run.completed", lines[3]["msg"])
}

func TestWithContext_DoesNotLeak(t *testing.T) {
	l, buf := newBufferLogger(LogLevelInfo)
	child := l.WithContext("team", "alpha")
	l.Info("parent")
	child.Info("child")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.NotContains(t, lines[0], "team")
	assert.Equal(t, "alpha", lines[1]["team"])
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, LogLevelDebug, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, LogLevelInfo, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
	assert.Equal(t, "WARN", LogLevelWarn.String())
}

func TestNoOpLogger(t *testing.T) {
	var l Logger = NoOpLogger{}
	assert.NotPanics(t, func() { l.Error("x", "k", "v") })
}

func TestSlogAdapter(t *testing.T) {
	buf := &bytes.Buffer{}
	l := NewSlogAdapter(slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	l.Debug("tool.call.start", "tool", "readFile")
	l.Error("tool.call.failed", "error", "boom")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "readFile", lines[0]["tool"])
	assert.Equal(t, "ERROR", lines[1]["level"])
}
