package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestInitWriter_JSON(t *testing.T) {
	prev := L
	t.Cleanup(func() {
		L = prev
		slog.SetDefault(prev)
	})

	var buf bytes.Buffer
	InitWriter(&buf, "info", "json")

	Component("hub").Debug("hidden")
	Component("hub").Info("connected", slog.String("user_id", "u1"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "connected", entry["msg"])
	assert.Equal(t, "hub", entry["component"])
	assert.Equal(t, "u1", entry["user_id"])
}

func TestFromContext(t *testing.T) {
	assert.Same(t, L, FromContext(context.Background()))

	scoped := Discard()
	ctx := WithContext(context.Background(), scoped)
	assert.Same(t, scoped, FromContext(ctx))
}
