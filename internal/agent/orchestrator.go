package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"krusty/internal/chat"
	"krusty/internal/client"
	"krusty/internal/engine"
	"krusty/internal/logging"
	"krusty/internal/permission"
	"krusty/internal/tools"
)

const subAgentInstruction = `You are a read-only research sub-agent. Investigate the
task you are given using the available tools, then reply with a
concise, self-contained summary of what you found. Include relevant
file paths and line references. You cannot modify anything.`

// Orchestrator fans exploration tasks out to concurrent sub-agents.
// It implements tools.Spawner; a weighted semaphore bounds how many
// children run at once.
type Orchestrator struct {
	client      client.Client
	workDir     string
	maxTurns    int
	retry       client.RetryConfig
	sem         *semaphore.Weighted
	maxParallel int64
}

// NewOrchestrator creates an orchestrator allowing at most maxParallel
// concurrent sub-agents, each capped at maxTurns tool iterations.
func NewOrchestrator(c client.Client, workDir string, maxParallel, maxTurns int, retry client.RetryConfig) *Orchestrator {
	if maxParallel < 1 {
		maxParallel = 1
	}
	if maxTurns < 1 {
		maxTurns = 1
	}
	return &Orchestrator{
		client:      c,
		workDir:     workDir,
		maxTurns:    maxTurns,
		retry:       retry,
		sem:         semaphore.NewWeighted(int64(maxParallel)),
		maxParallel: int64(maxParallel),
	}
}

// Spawn runs the tasks concurrently and returns one result per task, in
// spawn order. Cancelling ctx tears down all children; individual
// child failures are reported in their slot and do not stop siblings.
func (o *Orchestrator) Spawn(ctx context.Context, taskList []string) ([]tools.SpawnResult, error) {
	results := make([]tools.SpawnResult, len(taskList))
	var wg sync.WaitGroup

	for i, task := range taskList {
		wg.Add(1)
		go func(i int, task string) {
			defer wg.Done()

			if err := o.sem.Acquire(ctx, 1); err != nil {
				results[i] = tools.SpawnResult{Task: task, Err: err}
				return
			}
			defer o.sem.Release(1)

			summary, err := o.runChild(ctx, task)
			results[i] = tools.SpawnResult{Task: task, Summary: summary, Err: err}
		}(i, task)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

// runChild drives one sub-agent session to completion and returns its
// final answer.
func (o *Orchestrator) runChild(ctx context.Context, task string) (string, error) {
	session := chat.NewSession(o.workDir)
	session.SetPermissionMode(chat.Autonomous)
	session.Model = o.client.Model()

	registry := tools.ReadOnlyRegistry(o.workDir)
	gate := permission.NewGate()
	sink := engine.NullSink{}
	store := &memStore{}

	dispatcher := engine.NewDispatcher(registry, gate, session, sink, 30000)
	loop := engine.NewLoop(engine.LoopConfig{
		Client:        o.client,
		Store:         store,
		Session:       session,
		Dispatcher:    dispatcher,
		Sink:          sink,
		Retry:         o.retry,
		MaxIterations: o.maxTurns,
		StreamConfig: client.StreamConfig{
			SystemInstruction: subAgentInstruction,
			Tools:             registry.Declarations(),
		},
	})

	logging.Debug("sub-agent started", "session", session.ID, "task", task)
	if err := loop.RunTurn(ctx, task); err != nil {
		logging.Warn("sub-agent failed", "session", session.ID, "error", err)
		return "", err
	}

	summary := lastAssistantText(session)
	if strings.TrimSpace(summary) == "" {
		return "", fmt.Errorf("sub-agent produced no answer")
	}
	logging.Debug("sub-agent finished", "session", session.ID, "summary_chars", len(summary))
	return summary, nil
}

// lastAssistantText returns the text of the session's most recent
// assistant turn.
func lastAssistantText(session *chat.Session) string {
	history := session.History()
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == chat.RoleAssistant {
			if text := history[i].Text(); text != "" {
				return text
			}
		}
	}
	return ""
}

// memStore keeps sub-agent sessions in memory only; their transcripts
// live on in the parent's tool result.
type memStore struct{}

func (memStore) AppendTurn(s *chat.Session, t *chat.Turn) error {
	s.Append(t)
	return nil
}

func (memStore) Save(*chat.Session) error { return nil }

func (memStore) Load(id string) (*chat.Session, error) {
	return nil, fmt.Errorf("session %s not found", id)
}

func (memStore) List() ([]chat.SessionInfo, error) { return nil, nil }

func (memStore) Delete(string) error { return nil }
