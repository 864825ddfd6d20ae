package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krusty/internal/chat"
	"krusty/internal/client"
	"krusty/internal/permission"
	"krusty/internal/tools"
)

// scriptStep is one canned Stream outcome for the fake client.
type scriptStep struct {
	events []client.Event
	err    error
}

// scriptedClient returns pre-scripted responses in order. A nil script
// entry blocks until the context is cancelled.
type scriptedClient struct {
	mu      sync.Mutex
	script  []*scriptStep
	calls   int
	summary string
}

func (c *scriptedClient) Stream(ctx context.Context, history []*chat.Turn, cfg client.StreamConfig) (*client.StreamingResponse, error) {
	c.mu.Lock()
	scripted := c.calls < len(c.script)
	var step *scriptStep
	if scripted {
		step = c.script[c.calls]
	}
	c.calls++
	c.mu.Unlock()

	if !scripted {
		return nil, errors.New("script exhausted")
	}
	if step == nil {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if step.err != nil {
		return nil, step.err
	}

	ch := make(chan client.Event, len(step.events))
	done := make(chan struct{})
	for _, ev := range step.events {
		ch <- ev
	}
	close(ch)
	close(done)
	return &client.StreamingResponse{Events: ch, Done: done}, nil
}

func (c *scriptedClient) Summarize(ctx context.Context, prompt string) (string, error) {
	return c.summary, nil
}

func (c *scriptedClient) Model() string { return "scripted" }

func (c *scriptedClient) Close() error { return nil }

// memStore keeps turns in memory only.
type memStore struct {
	appendErr error
}

func (m *memStore) AppendTurn(s *chat.Session, t *chat.Turn) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	s.Append(t)
	return nil
}

func (m *memStore) Save(s *chat.Session) error { return nil }

func (m *memStore) Load(id string) (*chat.Session, error) { return nil, errors.New("not persisted") }

func (m *memStore) List() ([]chat.SessionInfo, error) { return nil, nil }

func (m *memStore) Delete(id string) error { return nil }

func textStep(text string) *scriptStep {
	return &scriptStep{events: []client.Event{
		{Kind: client.EventTextDelta, Text: text},
		{Kind: client.EventStop, StopReason: "stop"},
	}}
}

func callStep(id, name, argsJSON string) *scriptStep {
	return &scriptStep{events: []client.Event{
		{Kind: client.EventToolCallDelta, Call: client.ToolCallDelta{
			Index: 0, ID: id, Name: name, ArgsJSON: argsJSON,
		}},
		{Kind: client.EventStop, StopReason: "tool_use"},
	}}
}

func newTestLoop(t *testing.T, c client.Client, maxIterations int, toolset ...tools.Tool) (*Loop, *chat.Session) {
	t.Helper()

	registry := tools.NewRegistry()
	for _, tool := range toolset {
		require.NoError(t, registry.Register(tool))
	}
	registry.Seal()

	session := chat.NewSession(t.TempDir())
	session.SetPermissionMode(chat.Autonomous)
	store := &memStore{}
	sink := NewBufferedSink(256)
	dispatcher := NewDispatcher(registry, permission.NewGate(), session, sink, 30000)

	loop := NewLoop(LoopConfig{
		Client:        c,
		Store:         store,
		Session:       session,
		Dispatcher:    dispatcher,
		Sink:          sink,
		Retry:         client.RetryConfig{MaxRetries: 2, RetryDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond},
		MaxIterations: maxIterations,
		StreamConfig:  client.StreamConfig{SystemInstruction: "test", Tools: registry.Declarations()},
	})
	return loop, session
}

func TestRunTurnPlainAnswer(t *testing.T) {
	c := &scriptedClient{script: []*scriptStep{textStep("all done")}}
	loop, session := newTestLoop(t, c, 8)

	require.NoError(t, loop.RunTurn(context.Background(), "hello"))

	history := session.History()
	require.Len(t, history, 2)
	assert.Equal(t, chat.RoleUser, history[0].Role)
	assert.Equal(t, "hello", history[0].Text())
	assert.Equal(t, chat.RoleAssistant, history[1].Role)
	assert.Equal(t, "all done", history[1].Text())
	assert.Equal(t, chat.TurnComplete, history[1].Status)
}

func TestRunTurnExecutesToolsThenAnswers(t *testing.T) {
	tool := &fakeTool{name: "inspect", class: tools.ClassReadOnly}
	c := &scriptedClient{script: []*scriptStep{
		callStep("c1", "inspect", `{"target":"x"}`),
		textStep("inspect says hi"),
	}}
	loop, session := newTestLoop(t, c, 8, tool)

	require.NoError(t, loop.RunTurn(context.Background(), "go inspect"))

	assert.Equal(t, 1, tool.executed)
	history := session.History()
	require.Len(t, history, 4)
	assert.Equal(t, chat.RoleAssistant, history[1].Role)
	assert.Equal(t, chat.RoleTool, history[2].Role)
	require.Len(t, history[2].Results(), 1)
	assert.True(t, history[2].Results()[0].OK)
	assert.Equal(t, "inspect says hi", history[3].Text())
}

func TestRunTurnAnswersMalformedCalls(t *testing.T) {
	tool := &fakeTool{name: "inspect", class: tools.ClassReadOnly}
	c := &scriptedClient{script: []*scriptStep{
		callStep("c1", "inspect", `{"broken":`),
		textStep("let me try something else"),
	}}
	loop, session := newTestLoop(t, c, 8, tool)

	require.NoError(t, loop.RunTurn(context.Background(), "go"))

	assert.Zero(t, tool.executed)
	history := session.History()
	require.Len(t, history, 4)
	result := history[2].Results()[0]
	assert.False(t, result.OK)
	assert.Contains(t, result.Error, "malformed arguments")
}

func TestRunTurnRetriesTransientErrors(t *testing.T) {
	c := &scriptedClient{script: []*scriptStep{
		{err: &client.APIError{StatusCode: 503, Message: "overloaded"}},
		textStep("recovered"),
	}}
	loop, session := newTestLoop(t, c, 8)

	require.NoError(t, loop.RunTurn(context.Background(), "hi"))
	assert.Equal(t, 2, c.calls)
	assert.Equal(t, "recovered", session.History()[1].Text())
}

func TestRunTurnGivesUpOnPermanentErrors(t *testing.T) {
	c := &scriptedClient{script: []*scriptStep{
		{err: &client.APIError{StatusCode: 401, Message: "bad key"}},
	}}
	loop, session := newTestLoop(t, c, 8)

	err := loop.RunTurn(context.Background(), "hi")
	require.Error(t, err)
	assert.Equal(t, 1, c.calls)

	// The failed placeholder turn is persisted so history stays coherent.
	history := session.History()
	require.Len(t, history, 2)
	assert.Equal(t, chat.TurnFailed, history[1].Status)
}

func TestRunTurnDoesNotRetryAfterPartialOutput(t *testing.T) {
	c := &scriptedClient{script: []*scriptStep{
		{events: []client.Event{
			{Kind: client.EventTextDelta, Text: "half an ans"},
			{Kind: client.EventError, Err: &client.APIError{StatusCode: 503, Message: "dropped"}},
		}},
		textStep("should never be requested"),
	}}
	loop, session := newTestLoop(t, c, 8)

	err := loop.RunTurn(context.Background(), "hi")
	require.Error(t, err)
	assert.Equal(t, 1, c.calls)

	history := session.History()
	require.Len(t, history, 2)
	assert.Equal(t, chat.TurnFailed, history[1].Status)
	assert.Equal(t, "half an ans", history[1].Text())
}

func TestRunTurnIterationCap(t *testing.T) {
	tool := &fakeTool{name: "inspect", class: tools.ClassReadOnly}
	c := &scriptedClient{script: []*scriptStep{
		callStep("c1", "inspect", `{"n":1}`),
		callStep("c2", "inspect", `{"n":2}`),
		callStep("c3", "inspect", `{"n":3}`),
	}}
	loop, _ := newTestLoop(t, c, 2, tool)

	require.NoError(t, loop.RunTurn(context.Background(), "loop forever"))
	assert.Equal(t, 2, tool.executed)
	assert.Equal(t, 2, c.calls)
}

func TestRunTurnRejectsConcurrentTurns(t *testing.T) {
	c := &scriptedClient{script: []*scriptStep{nil}} // blocks until cancel
	loop, _ := newTestLoop(t, c, 8)

	started := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		close(started)
		errCh <- loop.RunTurn(context.Background(), "first")
	}()
	<-started
	time.Sleep(20 * time.Millisecond)

	err := loop.RunTurn(context.Background(), "second")
	assert.ErrorIs(t, err, ErrTurnInProgress)

	loop.Cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
}

func TestCancelInterruptsTurn(t *testing.T) {
	c := &scriptedClient{script: []*scriptStep{nil}}
	loop, session := newTestLoop(t, c, 8)

	errCh := make(chan error, 1)
	go func() {
		errCh <- loop.RunTurn(context.Background(), "long task")
	}()
	time.Sleep(20 * time.Millisecond)
	loop.Cancel()

	require.ErrorIs(t, <-errCh, context.Canceled)

	// The session survives and accepts the next turn.
	c.mu.Lock()
	c.script = append(c.script, textStep("back again"))
	c.mu.Unlock()
	require.NoError(t, loop.RunTurn(context.Background(), "still there?"))
	assert.Equal(t, "back again", session.History()[len(session.History())-1].Text())
}
