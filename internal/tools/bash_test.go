package tools

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBashTool(t *testing.T) *BashTool {
	t.Helper()
	return NewBashTool(t.TempDir(), 30*time.Second, time.Second)
}

func TestBashTool(t *testing.T) {
	ctx := context.Background()

	t.Run("captures stdout", func(t *testing.T) {
		tool := newTestBashTool(t)
		res, err := tool.Execute(ctx, map[string]any{"command": "echo hello"})
		require.NoError(t, err)
		require.True(t, res.OK)
		assert.Equal(t, "hello\n", res.Content)
	})

	t.Run("runs in workdir", func(t *testing.T) {
		dir := t.TempDir()
		tool := NewBashTool(dir, 30*time.Second, time.Second)
		res, err := tool.Execute(ctx, map[string]any{"command": "pwd"})
		require.NoError(t, err)
		require.True(t, res.OK)
		assert.Equal(t, dir, strings.TrimSpace(res.Content))
	})

	t.Run("stderr is labelled", func(t *testing.T) {
		tool := newTestBashTool(t)
		res, err := tool.Execute(ctx, map[string]any{"command": "echo out; echo err >&2"})
		require.NoError(t, err)
		require.True(t, res.OK)
		assert.Contains(t, res.Content, "out\n")
		assert.Contains(t, res.Content, "STDERR:\nerr\n")
	})

	t.Run("nonzero exit reported", func(t *testing.T) {
		tool := newTestBashTool(t)
		res, err := tool.Execute(ctx, map[string]any{"command": "echo partial; exit 3"})
		require.NoError(t, err)
		assert.False(t, res.OK)
		assert.Equal(t, "command exited with code 3", res.Error)
		assert.Contains(t, res.Content, "partial")
	})

	t.Run("no output placeholder", func(t *testing.T) {
		tool := newTestBashTool(t)
		res, err := tool.Execute(ctx, map[string]any{"command": "true"})
		require.NoError(t, err)
		require.True(t, res.OK)
		assert.Equal(t, "(no output)", res.Content)
	})

	t.Run("timeout kills the command", func(t *testing.T) {
		tool := NewBashTool(t.TempDir(), 30*time.Second, 100*time.Millisecond)
		res, err := tool.Execute(ctx, map[string]any{
			"command": "echo before; sleep 30",
			"timeout": float64(1),
		})
		require.NoError(t, err)
		assert.False(t, res.OK)
		assert.Contains(t, res.Error, "timed out")
		assert.Contains(t, res.Content, "before")
	})

	t.Run("cancellation returns the context error", func(t *testing.T) {
		tool := NewBashTool(t.TempDir(), 30*time.Second, 100*time.Millisecond)
		cctx, cancel := context.WithCancel(ctx)
		go func() {
			time.Sleep(200 * time.Millisecond)
			cancel()
		}()
		_, err := tool.Execute(cctx, map[string]any{"command": "sleep 30"})
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("streams output while running", func(t *testing.T) {
		tool := newTestBashTool(t)

		var mu sync.Mutex
		var chunks []string
		var firstChunk time.Time
		sctx := ContextWithStreamingCallback(ctx, func(text string) {
			mu.Lock()
			defer mu.Unlock()
			if len(chunks) == 0 {
				firstChunk = time.Now()
			}
			chunks = append(chunks, text)
		})

		res, err := tool.Execute(sctx, map[string]any{"command": "echo first; sleep 0.5; echo second"})
		finished := time.Now()
		require.NoError(t, err)
		require.True(t, res.OK)

		mu.Lock()
		defer mu.Unlock()
		// The first line surfaced while the command was still sleeping.
		require.NotEmpty(t, chunks)
		assert.Greater(t, finished.Sub(firstChunk), 200*time.Millisecond)
		assert.Equal(t, res.Content, strings.Join(chunks, ""))
	})

	t.Run("no callback leaves output buffered only", func(t *testing.T) {
		tool := newTestBashTool(t)
		res, err := tool.Execute(ctx, map[string]any{"command": "echo quiet"})
		require.NoError(t, err)
		assert.Equal(t, "quiet\n", res.Content)
	})

	t.Run("validation", func(t *testing.T) {
		tool := newTestBashTool(t)
		assert.Error(t, tool.Validate(map[string]any{}))
		assert.Error(t, tool.Validate(map[string]any{"command": "   "}))
		assert.Error(t, tool.Validate(map[string]any{"command": "ls", "timeout": float64(0)}))
		assert.NoError(t, tool.Validate(map[string]any{"command": "ls"}))
	})
}

func TestBuildBashOutput(t *testing.T) {
	t.Run("truncates oversized output", func(t *testing.T) {
		out := buildBashOutput(strings.Repeat("x", maxBashOutput+500), "")
		assert.Contains(t, out, "output truncated")
		assert.Less(t, len(out), maxBashOutput+200)
	})

	t.Run("stderr only", func(t *testing.T) {
		out := buildBashOutput("", "boom\n")
		assert.Equal(t, "STDERR:\nboom\n", out)
	})
}
