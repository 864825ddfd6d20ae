package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSpawner struct {
	results []SpawnResult
	err     error
	got     []string
}

func (s *stubSpawner) Spawn(ctx context.Context, tasks []string) ([]SpawnResult, error) {
	s.got = tasks
	return s.results, s.err
}

func TestTaskList(t *testing.T) {
	t.Run("array of strings", func(t *testing.T) {
		tasks, err := taskList(map[string]any{"tasks": []any{"find the config loader", "map the tests"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"find the config loader", "map the tests"}, tasks)
	})

	t.Run("single string accepted", func(t *testing.T) {
		tasks, err := taskList(map[string]any{"tasks": "find the entry point"})
		require.NoError(t, err)
		assert.Equal(t, []string{"find the entry point"}, tasks)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := taskList(map[string]any{})
		assert.Error(t, err)
	})

	t.Run("empty array", func(t *testing.T) {
		_, err := taskList(map[string]any{"tasks": []any{}})
		assert.Error(t, err)
	})

	t.Run("blank entry", func(t *testing.T) {
		_, err := taskList(map[string]any{"tasks": []any{"ok", "  "}})
		assert.Error(t, err)
	})
}

func TestExploreTool(t *testing.T) {
	ctx := context.Background()

	t.Run("no spawner configured", func(t *testing.T) {
		tool := NewExploreTool()
		res, err := tool.Execute(ctx, map[string]any{"tasks": []any{"look around"}})
		require.NoError(t, err)
		assert.False(t, res.OK)
		assert.Contains(t, res.Error, "not available")
	})

	t.Run("aggregates summaries in order", func(t *testing.T) {
		tool := NewExploreTool()
		tool.SetSpawner(&stubSpawner{results: []SpawnResult{
			{Task: "first", Summary: "found the loader in config.go"},
			{Task: "second", Summary: "tests live next to each package"},
		}})

		res, err := tool.Execute(ctx, map[string]any{"tasks": []any{"first", "second"}})
		require.NoError(t, err)
		require.True(t, res.OK)
		assert.Contains(t, res.Content, "## Task 1: first")
		assert.Contains(t, res.Content, "found the loader in config.go")
		assert.Contains(t, res.Content, "## Task 2: second")
		assert.Empty(t, res.Warnings)
	})

	t.Run("partial failure warns", func(t *testing.T) {
		tool := NewExploreTool()
		tool.SetSpawner(&stubSpawner{results: []SpawnResult{
			{Task: "first", Summary: "done"},
			{Task: "second", Err: errors.New("model refused")},
		}})

		res, err := tool.Execute(ctx, map[string]any{"tasks": []any{"first", "second"}})
		require.NoError(t, err)
		require.True(t, res.OK)
		assert.Contains(t, res.Content, "(failed: model refused)")
		require.Len(t, res.Warnings, 1)
		assert.Equal(t, "1 of 2 tasks failed", res.Warnings[0])
	})

	t.Run("all failed is an error result", func(t *testing.T) {
		tool := NewExploreTool()
		tool.SetSpawner(&stubSpawner{results: []SpawnResult{
			{Task: "only", Err: errors.New("nope")},
		}})

		res, err := tool.Execute(ctx, map[string]any{"tasks": []any{"only"}})
		require.NoError(t, err)
		assert.False(t, res.OK)
		assert.Contains(t, res.Error, "all sub-agent tasks failed")
	})

	t.Run("read only classification", func(t *testing.T) {
		assert.Equal(t, ClassReadOnly, NewExploreTool().Classification())
	})
}
