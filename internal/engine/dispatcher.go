package engine

import (
	"context"
	"fmt"
	"time"

	"krusty/internal/chat"
	"krusty/internal/logging"
	"krusty/internal/permission"
	"krusty/internal/tools"
)

// maxRepeatedCalls bounds consecutive identical tool calls before the
// dispatcher refuses to run them again.
const maxRepeatedCalls = 3

// Dispatcher validates, gates, and executes the tool calls of an
// assistant turn, producing the paired tool turn.
type Dispatcher struct {
	registry       *tools.Registry
	gate           *permission.Gate
	session        *chat.Session
	sink           Sink
	maxResultChars int

	// loop guard state across turns
	lastCallKey  string
	repeatCount  int
}

// NewDispatcher creates a dispatcher for one session.
func NewDispatcher(registry *tools.Registry, gate *permission.Gate, session *chat.Session, sink Sink, maxResultChars int) *Dispatcher {
	return &Dispatcher{
		registry:       registry,
		gate:           gate,
		session:        session,
		sink:           sink,
		maxResultChars: maxResultChars,
	}
}

// Dispatch runs the calls in order and returns the tool turn holding
// one result per call. Every call gets a result, even denied or
// cancelled ones, so the history always pairs up.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []*chat.ToolCall, seq int) *chat.Turn {
	turn := chat.NewTurn(chat.RoleTool, seq)
	cancelled := false

	for _, call := range calls {
		var result *chat.ToolResult

		switch {
		case cancelled || ctx.Err() != nil:
			cancelled = true
			d.setStatus(call, chat.CallCancelled)
			result = failedResult(call.ID, "cancelled")

		default:
			result = d.dispatchOne(ctx, call)
			if call.Status == chat.CallCancelled {
				cancelled = true
			}
		}

		result.Content = truncateContent(result, d.maxResultChars)
		turn.Blocks = append(turn.Blocks, chat.ToolResultBlock(result))
		d.sink.Publish(RenderEvent{Kind: RenderToolResult, Call: call, Result: result})
	}

	if cancelled {
		turn.Status = chat.TurnInterrupted
	}
	turn.EndedAt = time.Now()
	return turn
}

// dispatchOne takes a single call through validation, gating, and
// execution.
func (d *Dispatcher) dispatchOne(ctx context.Context, call *chat.ToolCall) *chat.ToolResult {
	// Calls whose arguments never parsed are answered, not executed.
	if call.Status == chat.CallFailed {
		return failedResult(call.ID, fmt.Sprintf("malformed arguments for tool %q: not valid JSON", call.Name))
	}

	tool, ok := d.registry.Get(call.Name)
	if !ok {
		d.setStatus(call, chat.CallFailed)
		return failedResult(call.ID, fmt.Sprintf("unknown tool %q", call.Name))
	}

	if err := tool.Validate(call.Args); err != nil {
		d.setStatus(call, chat.CallFailed)
		return failedResult(call.ID, fmt.Sprintf("invalid arguments for %q: %s", call.Name, err))
	}

	if msg := d.checkRepeat(call); msg != "" {
		d.setStatus(call, chat.CallDenied)
		return failedResult(call.ID, msg)
	}

	mutating := tool.Classification() == tools.ClassMutating
	req := permission.NewRequest(call, mutating, d.preview(tool, call))

	if mutating && d.session.GetWorkMode() == chat.ModeBuild &&
		d.session.GetPermissionMode() == chat.Supervised {
		d.setStatus(call, chat.CallAwaitingApproval)
	}

	resp, err := d.gate.Check(ctx, req, d.session.GetPermissionMode(), d.session.GetWorkMode())
	if err != nil {
		logging.Error("permission check failed", "tool", call.Name, "error", err)
	}
	if !resp.Allowed {
		if resp.Reason == "cancelled" {
			d.setStatus(call, chat.CallCancelled)
		} else {
			d.setStatus(call, chat.CallDenied)
		}
		return failedResult(call.ID, fmt.Sprintf("tool call denied: %s", resp.Reason))
	}

	d.setStatus(call, chat.CallApproved)
	d.setStatus(call, chat.CallRunning)

	// Long-running tools surface their output while they run; the
	// final result stays the source of truth for the model.
	execCtx := tools.ContextWithStreamingCallback(ctx, func(text string) {
		d.sink.Publish(RenderEvent{Kind: RenderToolOutput, Call: call, Text: text})
	})

	start := time.Now()
	res, err := tool.Execute(execCtx, call.Args)
	elapsed := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			d.setStatus(call, chat.CallCancelled)
			return failedResult(call.ID, "cancelled")
		}
		d.setStatus(call, chat.CallFailed)
		logging.Error("tool execution failed", "tool", call.Name, "error", err)
		return failedResult(call.ID, fmt.Sprintf("tool %q failed: %s", call.Name, err))
	}

	logging.Debug("tool executed", "tool", call.Name, "ok", res.OK, "duration", elapsed)

	result := &chat.ToolResult{
		CallID:   call.ID,
		OK:       res.OK,
		Content:  res.Content,
		Data:     res.Data,
		Error:    res.Error,
		Warnings: res.Warnings,
		Metadata: res.Metadata,
	}
	if res.OK {
		d.setStatus(call, chat.CallCompleted)
	} else {
		d.setStatus(call, chat.CallFailed)
	}
	return result
}

// preview renders a change preview for tools that support it. Preview
// failures fall through to execution, which will report them properly.
func (d *Dispatcher) preview(tool tools.Tool, call *chat.ToolCall) string {
	p, ok := tool.(tools.Previewer)
	if !ok {
		return ""
	}
	diff, err := p.Preview(call.Args)
	if err != nil {
		return ""
	}
	return diff
}

// checkRepeat returns a denial message when the same call has been
// issued too many times in a row.
func (d *Dispatcher) checkRepeat(call *chat.ToolCall) string {
	key := call.Name + "\x00" + call.RawArgs
	if key == d.lastCallKey {
		d.repeatCount++
	} else {
		d.lastCallKey = key
		d.repeatCount = 1
	}
	if d.repeatCount > maxRepeatedCalls {
		return fmt.Sprintf("tool %q was called %d times in a row with identical arguments, refusing to repeat it again", call.Name, d.repeatCount-1)
	}
	return ""
}

// setStatus transitions a call and reports it to the sink.
func (d *Dispatcher) setStatus(call *chat.ToolCall, status chat.CallStatus) {
	call.Status = status
	d.sink.Publish(RenderEvent{Kind: RenderCallStatus, Call: call})
}

// failedResult builds an error result for a call.
func failedResult(callID, msg string) *chat.ToolResult {
	return &chat.ToolResult{
		CallID: callID,
		OK:     false,
		Error:  msg,
	}
}

// truncateContent caps result content, recording the truncation as a
// warning on the result.
func truncateContent(result *chat.ToolResult, maxChars int) string {
	if maxChars <= 0 || len(result.Content) <= maxChars {
		return result.Content
	}
	total := len(result.Content)
	result.Warnings = append(result.Warnings, fmt.Sprintf(
		"content truncated: showing %d of %d characters", maxChars, total))
	return result.Content[:maxChars]
}
