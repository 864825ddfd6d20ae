package client

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krusty/internal/chat"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"cancelled", context.Canceled, false},
		{"wrapped cancelled", fmt.Errorf("stream: %w", context.Canceled), false},
		{"deadline", context.DeadlineExceeded, true},
		{"api 429", &APIError{StatusCode: 429, Message: "slow down"}, true},
		{"api 500", &APIError{StatusCode: 500, Message: "internal"}, true},
		{"api 503", &APIError{StatusCode: 503, Message: "unavailable"}, true},
		{"api 400", &APIError{StatusCode: 400, Message: "bad request"}, false},
		{"api 401", &APIError{StatusCode: 401, Message: "unauthorized"}, false},
		{"wrapped api 502", fmt.Errorf("request: %w", &APIError{StatusCode: 502}), true},
		{"rate limit string", errors.New("Rate limit exceeded, try later"), true},
		{"overloaded string", errors.New("model is overloaded"), true},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"plain error", errors.New("invalid schema"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestBackoff(t *testing.T) {
	base := 1 * time.Second
	max := 30 * time.Second

	t.Run("grows with attempts", func(t *testing.T) {
		d0 := Backoff(base, 0, max)
		assert.GreaterOrEqual(t, d0, base)
		assert.Less(t, d0, 2*base)

		d2 := Backoff(base, 2, max)
		assert.GreaterOrEqual(t, d2, 4*base)
		assert.Less(t, d2, 6*base)
	})

	t.Run("capped at max plus jitter", func(t *testing.T) {
		d := Backoff(base, 20, max)
		assert.GreaterOrEqual(t, d, max)
		assert.LessOrEqual(t, d, max+max/4)
	})

	t.Run("zero base does not panic", func(t *testing.T) {
		assert.Equal(t, time.Duration(0), Backoff(0, 0, max))
	})
}

func makeStream(events ...Event) *StreamingResponse {
	ch := make(chan Event, len(events))
	done := make(chan struct{})
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	close(done)
	return &StreamingResponse{Events: ch, Done: done}
}

func TestCollectText(t *testing.T) {
	t.Run("concatenates text deltas", func(t *testing.T) {
		sr := makeStream(
			Event{Kind: EventThinkingDelta, Text: "hmm"},
			Event{Kind: EventTextDelta, Text: "hello "},
			Event{Kind: EventTextDelta, Text: "world"},
			Event{Kind: EventStop, StopReason: "stop"},
		)
		out, err := CollectText(context.Background(), sr)
		require.NoError(t, err)
		assert.Equal(t, "hello world", out)
	})

	t.Run("returns partial text with stream error", func(t *testing.T) {
		streamErr := errors.New("boom")
		sr := makeStream(
			Event{Kind: EventTextDelta, Text: "partial"},
			Event{Kind: EventError, Err: streamErr},
		)
		out, err := CollectText(context.Background(), sr)
		assert.ErrorIs(t, err, streamErr)
		assert.Equal(t, "partial", out)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ch := make(chan Event)
		done := make(chan struct{})
		sr := &StreamingResponse{Events: ch, Done: done}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := CollectText(ctx, sr)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestCallNames(t *testing.T) {
	assistant := chat.NewTurn(chat.RoleAssistant, 2)
	assistant.Blocks = append(assistant.Blocks,
		chat.ToolCallBlock(&chat.ToolCall{ID: "c1", Name: "read_file"}),
		chat.ToolCallBlock(&chat.ToolCall{ID: "c2", Name: "bash"}),
	)
	history := []*chat.Turn{
		chat.UserTurn(1, "hi"),
		assistant,
	}

	names := callNames(history)
	assert.Equal(t, "read_file", names["c1"])
	assert.Equal(t, "bash", names["c2"])
	assert.Len(t, names, 2)
}

func TestResultPayload(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		payload := resultPayload(&chat.ToolResult{
			CallID:  "c1",
			OK:      true,
			Content: "42 matches",
		})
		assert.Equal(t, true, payload["success"])
		assert.Equal(t, "42 matches", payload["content"])
		assert.NotContains(t, payload, "error")
	})

	t.Run("failure", func(t *testing.T) {
		payload := resultPayload(&chat.ToolResult{
			CallID: "c1",
			OK:     false,
			Error:  "file not found",
		})
		assert.Equal(t, false, payload["success"])
		assert.Equal(t, "file not found", payload["error"])
	})

	t.Run("warnings carried", func(t *testing.T) {
		payload := resultPayload(&chat.ToolResult{
			OK:       true,
			Content:  "x",
			Warnings: []string{"output truncated"},
		})
		assert.Equal(t, []string{"output truncated"}, payload["warnings"])
	})
}
