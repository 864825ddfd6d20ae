package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"krusty/internal/chat"
	"krusty/internal/client"
	"krusty/internal/logging"
)

// ErrTurnInProgress is returned when RunTurn is called while another
// turn is still running on the same session.
var ErrTurnInProgress = errors.New("a turn is already running on this session")

// Loop drives one session: it streams model responses, dispatches tool
// calls, and persists every finalized turn before the next one starts.
type Loop struct {
	client        client.Client
	store         chat.Store
	session       *chat.Session
	dispatcher    *Dispatcher
	sink          Sink
	retry         client.RetryConfig
	maxIterations int
	streamCfg     client.StreamConfig

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// LoopConfig bundles the loop's collaborators and limits. StreamConfig
// carries the system instruction and the sealed tool declarations.
type LoopConfig struct {
	Client        client.Client
	Store         chat.Store
	Session       *chat.Session
	Dispatcher    *Dispatcher
	Sink          Sink
	Retry         client.RetryConfig
	MaxIterations int
	StreamConfig  client.StreamConfig
}

// NewLoop creates a session loop.
func NewLoop(cfg LoopConfig) *Loop {
	return &Loop{
		client:        cfg.Client,
		store:         cfg.Store,
		session:       cfg.Session,
		dispatcher:    cfg.Dispatcher,
		sink:          cfg.Sink,
		retry:         cfg.Retry,
		maxIterations: cfg.MaxIterations,
		streamCfg:     cfg.StreamConfig,
	}
}

// Session returns the session this loop drives.
func (l *Loop) Session() *chat.Session {
	return l.session
}

// Cancel interrupts the in-flight turn, if any. The turn is finalized
// with whatever streamed before the cancel and the session stays
// usable.
func (l *Loop) Cancel() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
	}
}

// RunTurn submits user input and drives the response to completion:
// stream, dispatch tools, feed results back, repeat until the model
// stops calling tools or the iteration cap is hit.
func (l *Loop) RunTurn(ctx context.Context, userText string) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return ErrTurnInProgress
	}
	runCtx, cancel := context.WithCancel(ctx)
	l.running = true
	l.cancel = cancel
	l.mu.Unlock()

	defer func() {
		cancel()
		l.mu.Lock()
		l.running = false
		l.cancel = nil
		l.mu.Unlock()
	}()

	userTurn := chat.UserTurn(l.session.NextSeq(), userText)
	if err := l.store.AppendTurn(l.session, userTurn); err != nil {
		return fmt.Errorf("failed to persist user turn: %w", err)
	}

	for iteration := 0; iteration < l.maxIterations; iteration++ {
		turn, err := l.streamOnce(runCtx)

		// Persist whatever was assembled, even partial turns.
		if len(turn.Blocks) > 0 || turn.Status != chat.TurnComplete {
			if perr := l.store.AppendTurn(l.session, turn); perr != nil {
				l.sink.Publish(RenderEvent{Kind: RenderTurnDone, Turn: turn})
				return fmt.Errorf("failed to persist assistant turn: %w", perr)
			}
		}
		l.sink.Publish(RenderEvent{Kind: RenderTurnDone, Turn: turn})

		if err != nil {
			if runCtx.Err() != nil {
				return runCtx.Err()
			}
			return err
		}

		calls := turn.ToolCalls()
		hasMalformed := false
		for _, c := range calls {
			if c.Status == chat.CallFailed {
				hasMalformed = true
			}
		}
		if len(calls) == 0 && !hasMalformed {
			return nil
		}

		toolTurn := l.dispatcher.Dispatch(runCtx, calls, l.session.NextSeq())
		if err := l.store.AppendTurn(l.session, toolTurn); err != nil {
			l.sink.Publish(RenderEvent{Kind: RenderTurnDone, Turn: toolTurn})
			return fmt.Errorf("failed to persist tool turn: %w", err)
		}
		l.sink.Publish(RenderEvent{Kind: RenderTurnDone, Turn: toolTurn})

		if toolTurn.Status == chat.TurnInterrupted {
			return runCtx.Err()
		}
	}

	logging.Warn("turn hit iteration cap", "session", l.session.ID, "cap", l.maxIterations)
	l.sink.Publish(RenderEvent{
		Kind: RenderNotice,
		Text: fmt.Sprintf("stopped after %d tool iterations", l.maxIterations),
	})
	return nil
}

// streamOnce streams one model response with retries. Retries only
// happen when nothing was surfaced yet; once partial output exists the
// turn is finalized as is.
func (l *Loop) streamOnce(ctx context.Context) (*chat.Turn, error) {
	var lastErr error
	var lastTurn *chat.Turn

	for attempt := 0; attempt <= l.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := client.Backoff(l.retry.RetryDelay, attempt-1, l.retry.MaxDelay)
			logging.Info("retrying model request", "attempt", attempt, "delay", delay)
			l.sink.Publish(RenderEvent{
				Kind: RenderNotice,
				Text: fmt.Sprintf("request failed, retrying in %v (attempt %d/%d)", delay, attempt, l.retry.MaxRetries),
			})
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				turn := chat.NewTurn(chat.RoleAssistant, l.session.NextSeq())
				turn.Status = chat.TurnInterrupted
				turn.EndedAt = time.Now()
				return turn, ctx.Err()
			}
		}

		sr, err := l.client.Stream(ctx, l.session.History(), l.streamCfg)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil || !client.IsRetryable(err) {
				break
			}
			continue
		}

		seq := l.session.NextSeq()
		turn, err := Assemble(ctx, sr, seq, l.sink)
		if err == nil {
			return turn, nil
		}
		lastErr = err
		lastTurn = turn

		if ctx.Err() != nil || !client.IsRetryable(err) {
			break
		}
		// Partial output already reached the sink; do not re-stream over it.
		if len(turn.Blocks) > 0 {
			break
		}
	}

	if lastTurn == nil {
		lastTurn = chat.NewTurn(chat.RoleAssistant, l.session.NextSeq())
		lastTurn.EndedAt = time.Now()
		if errors.Is(lastErr, context.Canceled) {
			lastTurn.Status = chat.TurnInterrupted
		} else {
			lastTurn.Status = chat.TurnFailed
		}
	}
	return lastTurn, lastErr
}
