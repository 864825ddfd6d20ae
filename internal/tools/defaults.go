package tools

import (
	"time"

	"krusty/internal/chat"
)

// Options configures the default tool sets.
type Options struct {
	BashTimeout     time.Duration
	BashGracePeriod time.Duration
}

// DefaultRegistry creates a sealed registry with the full tool set for
// a primary agent session.
func DefaultRegistry(session *chat.Session, opts Options, explore *ExploreTool) *Registry {
	r := NewRegistry()

	workDir := session.WorkDir
	r.MustRegister(NewReadFileTool(workDir))
	r.MustRegister(NewListDirTool(workDir))
	r.MustRegister(NewGlobTool(workDir))
	r.MustRegister(NewGrepTool(workDir))
	r.MustRegister(NewWriteFileTool(workDir))
	r.MustRegister(NewEditFileTool(workDir))
	r.MustRegister(NewBashTool(workDir, opts.BashTimeout, opts.BashGracePeriod))
	r.MustRegister(NewWebFetchTool())

	r.MustRegister(NewAddSubtaskTool(session))
	r.MustRegister(NewSetDependencyTool(session))
	r.MustRegister(NewTaskStartTool(session))
	r.MustRegister(NewTaskCompleteTool(session))
	r.MustRegister(NewShowPlanTool(session))
	r.MustRegister(NewSetWorkModeTool(session))

	if explore != nil {
		r.MustRegister(explore)
	}

	r.Seal()
	return r
}

// ReadOnlyRegistry creates a sealed registry with only observing tools,
// used by exploration sub-agents.
func ReadOnlyRegistry(workDir string) *Registry {
	r := NewRegistry()
	r.MustRegister(NewReadFileTool(workDir))
	r.MustRegister(NewListDirTool(workDir))
	r.MustRegister(NewGlobTool(workDir))
	r.MustRegister(NewGrepTool(workDir))
	r.MustRegister(NewWebFetchTool())
	r.Seal()
	return r
}
