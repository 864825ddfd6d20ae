package permission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krusty/internal/chat"
)

func bashRequest(cmd string) *Request {
	return NewRequest(&chat.ToolCall{
		ID:   "c1",
		Name: "bash",
		Args: map[string]any{"command": cmd},
	}, true, "")
}

func TestCheckReadOnlyAlwaysPasses(t *testing.T) {
	g := NewGate()
	req := NewRequest(&chat.ToolCall{ID: "c1", Name: "read_file", Args: map[string]any{"path": "x"}}, false, "")

	resp, err := g.Check(context.Background(), req, chat.Supervised, chat.ModePlan)
	require.NoError(t, err)
	assert.True(t, resp.Allowed)
}

func TestCheckPlanModeDeniesMutating(t *testing.T) {
	g := NewGate()
	g.SetPromptHandler(func(ctx context.Context, req *Request) (Decision, error) {
		t.Fatal("plan mode must not prompt")
		return DecisionDeny, nil
	})

	resp, err := g.Check(context.Background(), bashRequest("rm -rf build"), chat.Supervised, chat.ModePlan)
	require.NoError(t, err)
	assert.False(t, resp.Allowed)
	assert.Equal(t, `tool "bash" is disabled in Plan mode`, resp.Reason)
}

func TestCheckAutonomousSkipsPrompt(t *testing.T) {
	g := NewGate()
	g.SetPromptHandler(func(ctx context.Context, req *Request) (Decision, error) {
		t.Fatal("autonomous mode must not prompt")
		return DecisionDeny, nil
	})

	resp, err := g.Check(context.Background(), bashRequest("make test"), chat.Autonomous, chat.ModeBuild)
	require.NoError(t, err)
	assert.True(t, resp.Allowed)
}

func TestCheckWithoutHandlerDenies(t *testing.T) {
	g := NewGate()
	resp, err := g.Check(context.Background(), bashRequest("ls"), chat.Supervised, chat.ModeBuild)
	require.NoError(t, err)
	assert.False(t, resp.Allowed)
	assert.Equal(t, "no approval channel available", resp.Reason)
}

func TestCheckPromptDecisions(t *testing.T) {
	tests := []struct {
		name     string
		decision Decision
		allowed  bool
	}{
		{"allow once", DecisionAllow, true},
		{"allow for session", DecisionAllowSession, true},
		{"deny once", DecisionDeny, false},
		{"deny for session", DecisionDenySession, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGate()
			g.SetPromptHandler(func(ctx context.Context, req *Request) (Decision, error) {
				return tt.decision, nil
			})
			resp, err := g.Check(context.Background(), bashRequest("go vet ./..."), chat.Supervised, chat.ModeBuild)
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, resp.Allowed)
			assert.Equal(t, tt.decision, resp.Decision)
		})
	}
}

func TestSessionDecisionsAreCached(t *testing.T) {
	g := NewGate()
	prompts := 0
	g.SetPromptHandler(func(ctx context.Context, req *Request) (Decision, error) {
		prompts++
		return DecisionAllowSession, nil
	})

	for i := 0; i < 3; i++ {
		resp, err := g.Check(context.Background(), bashRequest("go test ./..."), chat.Supervised, chat.ModeBuild)
		require.NoError(t, err)
		assert.True(t, resp.Allowed)
	}
	assert.Equal(t, 1, prompts)

	// A different command has its own cache key.
	_, err := g.Check(context.Background(), bashRequest("rm -rf /"), chat.Supervised, chat.ModeBuild)
	require.NoError(t, err)
	assert.Equal(t, 2, prompts)
}

func TestSessionDenyIsSticky(t *testing.T) {
	g := NewGate()
	decisions := []Decision{DecisionDenySession, DecisionAllow}
	g.SetPromptHandler(func(ctx context.Context, req *Request) (Decision, error) {
		d := decisions[0]
		decisions = decisions[1:]
		return d, nil
	})

	req := NewRequest(&chat.ToolCall{
		ID: "c1", Name: "write_file",
		Args: map[string]any{"path": "main.go", "content": "x"},
	}, true, "")

	resp, err := g.Check(context.Background(), req, chat.Supervised, chat.ModeBuild)
	require.NoError(t, err)
	assert.False(t, resp.Allowed)

	// Second check hits the cache, never reaching the queued Allow.
	resp, err = g.Check(context.Background(), req, chat.Supervised, chat.ModeBuild)
	require.NoError(t, err)
	assert.False(t, resp.Allowed)
	assert.Equal(t, "denied for session", resp.Reason)
	assert.Len(t, decisions, 1)
}

func TestForgetAndClearSession(t *testing.T) {
	g := NewGate()
	prompts := 0
	g.SetPromptHandler(func(ctx context.Context, req *Request) (Decision, error) {
		prompts++
		return DecisionAllowSession, nil
	})

	args := map[string]any{"command": "make build"}
	req := bashRequest("make build")

	_, err := g.Check(context.Background(), req, chat.Supervised, chat.ModeBuild)
	require.NoError(t, err)

	g.Forget("bash", args)
	_, err = g.Check(context.Background(), req, chat.Supervised, chat.ModeBuild)
	require.NoError(t, err)
	assert.Equal(t, 2, prompts)

	g.ClearSession()
	_, err = g.Check(context.Background(), req, chat.Supervised, chat.ModeBuild)
	require.NoError(t, err)
	assert.Equal(t, 3, prompts)
}

func TestCancelledPromptReportsCancelled(t *testing.T) {
	g := NewGate()
	g.SetPromptHandler(func(ctx context.Context, req *Request) (Decision, error) {
		return DecisionPending, context.Canceled
	})

	resp, err := g.Check(context.Background(), bashRequest("ls"), chat.Supervised, chat.ModeBuild)
	require.NoError(t, err)
	assert.False(t, resp.Allowed)
	assert.Equal(t, "cancelled", resp.Reason)
}

func TestPromptErrorPropagates(t *testing.T) {
	g := NewGate()
	promptErr := errors.New("terminal went away")
	g.SetPromptHandler(func(ctx context.Context, req *Request) (Decision, error) {
		return DecisionPending, promptErr
	})

	resp, err := g.Check(context.Background(), bashRequest("ls"), chat.Supervised, chat.ModeBuild)
	assert.ErrorIs(t, err, promptErr)
	assert.False(t, resp.Allowed)
}

func TestCancellationResolvesStuckPrompt(t *testing.T) {
	g := NewGate()
	// A handler stuck in a blocking read never sees ctx. Cancellation
	// must still resolve the check as a denial right away.
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	g.SetPromptHandler(func(ctx context.Context, req *Request) (Decision, error) {
		<-block
		return DecisionAllow, nil
	})

	type outcome struct {
		resp *Response
		err  error
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan outcome, 1)
	go func() {
		resp, err := g.Check(ctx, bashRequest("make deploy"), chat.Supervised, chat.ModeBuild)
		done <- outcome{resp, err}
	}()

	cancel()
	select {
	case out := <-done:
		require.NoError(t, out.err)
		assert.False(t, out.resp.Allowed)
		assert.Equal(t, "cancelled", out.resp.Reason)
	case <-time.After(2 * time.Second):
		t.Fatal("Check did not return after cancellation")
	}
}
