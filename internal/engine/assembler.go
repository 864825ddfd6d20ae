package engine

import (
	"context"
	"encoding/json"
	"time"

	"krusty/internal/chat"
	"krusty/internal/client"
	"krusty/internal/logging"
)

// pendingCall accumulates tool-call deltas that share a stream index.
type pendingCall struct {
	id       string
	name     string
	argsJSON string
}

// Assemble consumes one streamed response and builds the assistant
// turn, forwarding deltas to the sink as they arrive.
//
// A clean stop yields a complete turn. A stream error yields the
// partial turn with status failed and the error. Cancellation yields
// the partial turn with status interrupted; whatever streamed before
// the cancel is preserved.
//
// Tool calls whose argument JSON does not parse are kept in the turn
// with status failed and their raw payload; the dispatcher answers
// them with an error result instead of executing them.
func Assemble(ctx context.Context, sr *client.StreamingResponse, seq int, sink Sink) (*chat.Turn, error) {
	turn := chat.NewTurn(chat.RoleAssistant, seq)

	var textBuf, thinkingBuf string
	pending := make(map[int]*pendingCall)
	var order []int

	flushText := func() {
		if textBuf != "" {
			turn.Blocks = append(turn.Blocks, chat.TextBlock(textBuf))
			textBuf = ""
		}
	}
	flushThinking := func() {
		if thinkingBuf != "" {
			turn.Blocks = append(turn.Blocks, chat.ThinkingBlock(thinkingBuf))
			thinkingBuf = ""
		}
	}

	finalize := func(status chat.TurnStatus) {
		flushThinking()
		flushText()
		for _, idx := range order {
			turn.Blocks = append(turn.Blocks, chat.ToolCallBlock(parseCall(pending[idx])))
		}
		turn.Status = status
		turn.EndedAt = time.Now()
	}

	for {
		select {
		case <-ctx.Done():
			finalize(chat.TurnInterrupted)
			return turn, ctx.Err()

		case ev, ok := <-sr.Events:
			if !ok {
				finalize(chat.TurnComplete)
				return turn, nil
			}

			switch ev.Kind {
			case client.EventTextDelta:
				flushThinking()
				textBuf += ev.Text
				sink.Publish(RenderEvent{Kind: RenderText, Text: ev.Text})

			case client.EventThinkingDelta:
				flushText()
				thinkingBuf += ev.Text
				sink.Publish(RenderEvent{Kind: RenderThinking, Text: ev.Text})

			case client.EventToolCallDelta:
				flushThinking()
				flushText()
				pc, seen := pending[ev.Call.Index]
				if !seen {
					pc = &pendingCall{}
					pending[ev.Call.Index] = pc
					order = append(order, ev.Call.Index)
				}
				if ev.Call.ID != "" {
					pc.id = ev.Call.ID
				}
				if ev.Call.Name != "" {
					pc.name = ev.Call.Name
				}
				pc.argsJSON += ev.Call.ArgsJSON

			case client.EventStop:
				finalize(chat.TurnComplete)
				return turn, nil

			case client.EventError:
				if ctx.Err() != nil {
					finalize(chat.TurnInterrupted)
					return turn, ctx.Err()
				}
				finalize(chat.TurnFailed)
				return turn, ev.Err
			}
		}
	}
}

// parseCall converts an accumulated call into a ToolCall. Malformed
// argument JSON leaves Args nil and marks the call failed.
func parseCall(pc *pendingCall) *chat.ToolCall {
	call := &chat.ToolCall{
		ID:      pc.id,
		Name:    pc.name,
		RawArgs: pc.argsJSON,
		Status:  chat.CallProposed,
	}

	if pc.argsJSON == "" {
		call.Args = map[string]any{}
		return call
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(pc.argsJSON), &args); err != nil {
		logging.Warn("tool call has malformed arguments", "tool", pc.name, "error", err)
		call.Status = chat.CallFailed
		return call
	}
	call.Args = args
	return call
}
