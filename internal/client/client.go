package client

import (
	"context"

	"google.golang.org/genai"

	"krusty/internal/chat"
)

// EventKind tags the variant of a streaming event.
type EventKind string

const (
	// EventTextDelta carries a fragment of visible answer text.
	EventTextDelta EventKind = "text_delta"
	// EventThinkingDelta carries a fragment of model reasoning.
	EventThinkingDelta EventKind = "thinking_delta"
	// EventToolCallDelta carries a fragment of a proposed tool call.
	EventToolCallDelta EventKind = "tool_call_delta"
	// EventStop marks the end of a successful response.
	EventStop EventKind = "stop"
	// EventError marks a failed stream. Always the last event.
	EventError EventKind = "error"
)

// ToolCallDelta is a fragment of a tool call identified by block index.
// Providers that deliver complete calls emit a single delta whose ArgsJSON
// is the full argument document.
type ToolCallDelta struct {
	Index    int
	ID       string
	Name     string
	ArgsJSON string
}

// Event is one element of the ordered provider event sequence.
type Event struct {
	Kind       EventKind
	Text       string
	Call       ToolCallDelta
	StopReason string
	Err        error
}

// StreamingResponse is a lazy, finite, non-restartable event sequence.
type StreamingResponse struct {
	// Events is closed after the final Stop or Error event.
	Events <-chan Event

	// Done is closed when the stream has fully terminated.
	Done <-chan struct{}
}

// StreamConfig carries per-request generation settings.
type StreamConfig struct {
	// SystemInstruction is passed via the provider's native system slot.
	SystemInstruction string

	// Tools are the declarations the model may call.
	Tools []*genai.FunctionDeclaration

	// Effort selects the thinking budget: off, low, medium, high.
	Effort string
}

// Client abstracts a streaming AI completion provider. Implementations
// must be cancellable mid-stream without leaking goroutines.
type Client interface {
	// Stream sends the turn history and returns the response event stream.
	Stream(ctx context.Context, history []*chat.Turn, cfg StreamConfig) (*StreamingResponse, error)

	// Summarize performs a single non-tool completion used by the context
	// compressor.
	Summarize(ctx context.Context, prompt string) (string, error)

	// Model returns the model name.
	Model() string

	// Close releases provider resources.
	Close() error
}

// CollectText drains a stream and returns its concatenated answer text.
// Used for one-shot calls such as summarization.
func CollectText(ctx context.Context, sr *StreamingResponse) (string, error) {
	var out string
	for {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		case ev, ok := <-sr.Events:
			if !ok {
				return out, nil
			}
			switch ev.Kind {
			case EventTextDelta:
				out += ev.Text
			case EventError:
				return out, ev.Err
			case EventStop:
				return out, nil
			}
		}
	}
}

// callNames builds a tool-call ID to tool name index over the history so
// tool results can be converted back into provider function responses.
func callNames(history []*chat.Turn) map[string]string {
	names := make(map[string]string)
	for _, t := range history {
		for _, call := range t.ToolCalls() {
			names[call.ID] = call.Name
		}
	}
	return names
}

// resultPayload converts a tool result into the map fed back to the model.
func resultPayload(r *chat.ToolResult) map[string]any {
	payload := make(map[string]any)
	if r.OK {
		payload["success"] = true
		if r.Content != "" {
			payload["content"] = r.Content
		}
		if r.Data != nil {
			payload["data"] = r.Data
		}
	} else {
		payload["success"] = false
		payload["error"] = r.Error
	}
	if len(r.Warnings) > 0 {
		payload["warnings"] = r.Warnings
	}
	return payload
}
