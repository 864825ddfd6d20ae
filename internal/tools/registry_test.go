package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krusty/internal/chat"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewReadFileTool(t.TempDir())))

	tool, ok := r.Get("read_file")
	require.True(t, ok)
	assert.Equal(t, "read_file", tool.Name())

	_, ok = r.Get("nope")
	assert.False(t, ok)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	dir := t.TempDir()
	require.NoError(t, r.Register(NewReadFileTool(dir)))
	err := r.Register(NewReadFileTool(dir))
	assert.ErrorContains(t, err, "already registered")
}

func TestRegistrySeal(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewGlobTool(t.TempDir())))
	r.Seal()

	err := r.Register(NewGrepTool(t.TempDir()))
	assert.ErrorContains(t, err, "sealed")

	// Lookup still works after sealing.
	_, ok := r.Get("glob")
	assert.True(t, ok)
}

func TestRegistryStableOrder(t *testing.T) {
	r := NewRegistry()
	dir := t.TempDir()
	require.NoError(t, r.Register(NewGrepTool(dir)))
	require.NoError(t, r.Register(NewBashTool(dir, 0, 0)))
	require.NoError(t, r.Register(NewGlobTool(dir)))

	assert.Equal(t, []string{"bash", "glob", "grep"}, r.Names())

	decls := r.Declarations()
	require.Len(t, decls, 3)
	assert.Equal(t, "bash", decls[0].Name)
	assert.Equal(t, "glob", decls[1].Name)
	assert.Equal(t, "grep", decls[2].Name)
}

func TestDefaultRegistryIsSealed(t *testing.T) {
	session := chat.NewSession(t.TempDir())
	r := DefaultRegistry(session, Options{}, NewExploreTool())

	for _, name := range []string{
		"read_file", "list_dir", "glob", "grep", "web_fetch",
		"write_file", "edit_file", "bash",
		"add_subtask", "set_dependency", "task_start", "task_complete",
		"show_plan", "set_work_mode", "explore",
	} {
		_, ok := r.Get(name)
		assert.True(t, ok, "missing tool %s", name)
	}

	err := r.Register(NewReadFileTool(t.TempDir()))
	assert.Error(t, err)
}

func TestReadOnlyRegistry(t *testing.T) {
	r := ReadOnlyRegistry(t.TempDir())

	for _, tool := range r.List() {
		assert.Equal(t, ClassReadOnly, tool.Classification(), "tool %s", tool.Name())
	}
	_, ok := r.Get("bash")
	assert.False(t, ok)
	_, ok = r.Get("write_file")
	assert.False(t, ok)
	_, ok = r.Get("read_file")
	assert.True(t, ok)
}
