package tools

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"krusty/internal/chat"
	"krusty/internal/logging"
)

// SetWorkModeTool switches the session between Plan and Build modes.
// Mode is conversation state, so the tool is read-only and remains
// callable while in Plan mode.
type SetWorkModeTool struct {
	session *chat.Session
}

// NewSetWorkModeTool creates a set_work_mode tool bound to the session.
func NewSetWorkModeTool(session *chat.Session) *SetWorkModeTool {
	return &SetWorkModeTool{session: session}
}

func (t *SetWorkModeTool) Name() string {
	return "set_work_mode"
}

func (t *SetWorkModeTool) Description() string {
	return `Switches the session between work modes.

PARAMETERS:
- mode (required): "plan" or "build"

In plan mode, tools that change files or run commands are disabled;
use the plan tools to sketch the work first. Switch to build mode to
start executing.`
}

func (t *SetWorkModeTool) Classification() Classification {
	return ClassReadOnly
}

func (t *SetWorkModeTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"mode": {
					Type:        genai.TypeString,
					Description: "The work mode to switch to",
					Enum:        []string{"plan", "build"},
				},
			},
			Required: []string{"mode"},
		},
	}
}

func (t *SetWorkModeTool) Validate(args map[string]any) error {
	mode, ok := GetString(args, "mode")
	if !ok || mode == "" {
		return NewValidationError("mode", "is required")
	}
	if mode != string(chat.ModePlan) && mode != string(chat.ModeBuild) {
		return NewValidationError("mode", `must be "plan" or "build"`)
	}
	return nil
}

func (t *SetWorkModeTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	modeStr, _ := GetString(args, "mode")
	mode := chat.WorkMode(modeStr)

	previous := t.session.GetWorkMode()
	if previous == mode {
		return NewSuccessResult(fmt.Sprintf("already in %s mode", mode)), nil
	}

	t.session.SetWorkMode(mode)
	logging.Info("work mode changed", "from", previous, "to", mode)
	return NewSuccessResult(fmt.Sprintf("switched from %s to %s mode", previous, mode)), nil
}
