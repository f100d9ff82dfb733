// ABOUTME: Tests for the colorized slog handler.
// ABOUTME: Covers level gating and group-qualified attribute rendering.

package main

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func plainColorHandler(t *testing.T, buf *bytes.Buffer, level slog.Level) *colorHandler {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })
	return &colorHandler{level: level, out: buf}
}

func TestColorHandler_RendersAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := plainColorHandler(t, &buf, slog.LevelDebug)

	logger := slog.New(h).With("component", "clientagent")
	logger.Info("client agent listening", "addr", "0.0.0.0:7198")

	out := buf.String()
	assert.Contains(t, out, "INF")
	assert.Contains(t, out, "client agent listening")
	assert.Contains(t, out, "component=clientagent")
	assert.Contains(t, out, "addr=0.0.0.0:7198")
}

func TestColorHandler_GroupsQualifyKeys(t *testing.T) {
	var buf bytes.Buffer
	h := plainColorHandler(t, &buf, slog.LevelDebug)

	logger := slog.New(h).WithGroup("session").With("remote", "127.0.0.1:9000")
	logger.Info("client admitted", "channel", uint64(1000))

	out := buf.String()
	assert.Contains(t, out, "session.remote=127.0.0.1:9000")
	assert.Contains(t, out, "session.channel=1000")
}

func TestColorHandler_LevelGating(t *testing.T) {
	h := &colorHandler{level: slog.LevelWarn}

	assert.False(t, h.Enabled(context.Background(), slog.LevelDebug))
	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelWarn))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))
}
