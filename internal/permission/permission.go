package permission

import (
	"fmt"

	"krusty/internal/chat"
)

// Decision is the answer to an approval prompt.
type Decision int

const (
	// DecisionPending means the user has not decided yet.
	DecisionPending Decision = iota
	// DecisionAllow allows this specific call.
	DecisionAllow
	// DecisionAllowSession allows matching calls for the rest of the session.
	DecisionAllowSession
	// DecisionDeny denies this specific call.
	DecisionDeny
	// DecisionDenySession denies matching calls for the rest of the session.
	DecisionDenySession
)

// Request carries what the user needs to judge a tool call.
type Request struct {
	CallID   string
	ToolName string
	Args     map[string]any
	Mutating bool
	Reason   string
	// DiffPreview holds a unified diff for file-changing calls, empty
	// otherwise.
	DiffPreview string
}

// NewRequest creates an approval request for a tool call.
func NewRequest(call *chat.ToolCall, mutating bool, diffPreview string) *Request {
	return &Request{
		CallID:      call.ID,
		ToolName:    call.Name,
		Args:        call.Args,
		Mutating:    mutating,
		Reason:      buildReason(call.Name, call.Args),
		DiffPreview: diffPreview,
	}
}

// Response is the outcome of a gate check.
type Response struct {
	Allowed  bool
	Decision Decision
	Reason   string
}

// buildReason creates a human-readable summary of the call.
func buildReason(toolName string, args map[string]any) string {
	switch toolName {
	case "write_file":
		if path, ok := args["path"].(string); ok {
			return fmt.Sprintf("Write to file: %s", path)
		}
		return "Write to file"

	case "edit_file":
		if path, ok := args["path"].(string); ok {
			return fmt.Sprintf("Edit file: %s", path)
		}
		return "Edit file"

	case "bash":
		if cmd, ok := args["command"].(string); ok {
			if len(cmd) > 150 {
				cmd = cmd[:147] + "..."
			}
			return fmt.Sprintf("Execute command: %s", cmd)
		}
		return "Execute shell command"

	case "explore":
		if task, ok := args["task"].(string); ok {
			if len(task) > 150 {
				task = task[:147] + "..."
			}
			return fmt.Sprintf("Spawn sub-agent: %s", task)
		}
		return "Spawn sub-agent"

	default:
		return fmt.Sprintf("Execute tool: %s", toolName)
	}
}
