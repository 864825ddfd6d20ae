package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krusty/internal/chat"
)

func TestPlanToolsAreReadOnly(t *testing.T) {
	session := chat.NewSession(t.TempDir())
	planTools := []Tool{
		NewAddSubtaskTool(session),
		NewSetDependencyTool(session),
		NewTaskStartTool(session),
		NewTaskCompleteTool(session),
		NewShowPlanTool(session),
		NewSetWorkModeTool(session),
	}
	for _, tool := range planTools {
		assert.Equal(t, ClassReadOnly, tool.Classification(), "tool %s", tool.Name())
	}
}

func TestPlanToolsLifecycle(t *testing.T) {
	session := chat.NewSession(t.TempDir())
	ctx := context.Background()

	add := NewAddSubtaskTool(session)
	dep := NewSetDependencyTool(session)
	start := NewTaskStartTool(session)
	complete := NewTaskCompleteTool(session)
	show := NewShowPlanTool(session)

	res, err := add.Execute(ctx, map[string]any{"phase": "setup", "title": "scaffold module"})
	require.NoError(t, err)
	require.True(t, res.OK)
	data := res.Data.(map[string]any)
	first := data["task_id"].(string)
	require.NotEmpty(t, first)

	res, err = add.Execute(ctx, map[string]any{"phase": "setup", "title": "wire config"})
	require.NoError(t, err)
	second := res.Data.(map[string]any)["task_id"].(string)

	res, err = dep.Execute(ctx, map[string]any{"task_id": second, "depends_on": first})
	require.NoError(t, err)
	require.True(t, res.OK)

	t.Run("cycle is a tool error, not a crash", func(t *testing.T) {
		res, err := dep.Execute(ctx, map[string]any{"task_id": first, "depends_on": second})
		require.NoError(t, err)
		assert.False(t, res.OK)
		assert.Contains(t, res.Error, "cycle")
	})

	t.Run("start blocked task fails", func(t *testing.T) {
		res, err := start.Execute(ctx, map[string]any{"task_id": second})
		require.NoError(t, err)
		assert.False(t, res.OK)
		assert.Contains(t, res.Error, "blocked")
	})

	t.Run("complete unblocks dependent", func(t *testing.T) {
		res, err := start.Execute(ctx, map[string]any{"task_id": first})
		require.NoError(t, err)
		require.True(t, res.OK)

		res, err = complete.Execute(ctx, map[string]any{"task_id": first})
		require.NoError(t, err)
		require.True(t, res.OK)

		res, err = start.Execute(ctx, map[string]any{"task_id": second})
		require.NoError(t, err)
		assert.True(t, res.OK)
	})

	t.Run("show renders statuses", func(t *testing.T) {
		res, err := show.Execute(ctx, map[string]any{})
		require.NoError(t, err)
		require.True(t, res.OK)
		assert.Contains(t, res.Content, "Phase 1: setup")
		assert.Contains(t, res.Content, "[x] "+first)
		assert.Contains(t, res.Content, "[>] "+second)
	})
}

func TestSetWorkModeTool(t *testing.T) {
	session := chat.NewSession(t.TempDir())
	tool := NewSetWorkModeTool(session)
	ctx := context.Background()

	t.Run("switches to plan", func(t *testing.T) {
		res, err := tool.Execute(ctx, map[string]any{"mode": "plan"})
		require.NoError(t, err)
		require.True(t, res.OK)
		assert.Equal(t, chat.ModePlan, session.GetWorkMode())
		assert.Contains(t, res.Content, "switched from build to plan")
	})

	t.Run("same mode is a no-op", func(t *testing.T) {
		res, err := tool.Execute(ctx, map[string]any{"mode": "plan"})
		require.NoError(t, err)
		require.True(t, res.OK)
		assert.Contains(t, res.Content, "already in plan mode")
	})

	t.Run("validation", func(t *testing.T) {
		assert.Error(t, tool.Validate(map[string]any{}))
		assert.Error(t, tool.Validate(map[string]any{"mode": "yolo"}))
		assert.NoError(t, tool.Validate(map[string]any{"mode": "build"}))
	})
}
