package permission

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"

	"krusty/internal/chat"
	"krusty/internal/logging"
)

// PromptHandler asks the user to approve or deny a request. It blocks
// until a decision arrives or ctx is cancelled.
type PromptHandler func(ctx context.Context, req *Request) (Decision, error)

// maxCacheEntries bounds the session decision cache.
const maxCacheEntries = 1000

// Gate decides whether tool calls may run, given the session's
// permission and work modes.
type Gate struct {
	promptHandler PromptHandler
	sessionCache  map[string]Decision
	mu            sync.RWMutex
}

// NewGate creates a permission gate with no prompt handler. Without a
// handler, calls that need approval are denied.
func NewGate() *Gate {
	return &Gate{
		sessionCache: make(map[string]Decision),
	}
}

// SetPromptHandler sets the function called when user input is needed.
func (g *Gate) SetPromptHandler(handler PromptHandler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.promptHandler = handler
}

// cacheKey identifies a tool invocation for session decisions. Bash
// commands and file paths make the key specific to the action.
func cacheKey(toolName string, args map[string]any) string {
	switch toolName {
	case "bash":
		if cmd, ok := args["command"].(string); ok {
			hash := sha256.Sum256([]byte(cmd))
			return fmt.Sprintf("%s:%x", toolName, hash[:8])
		}
	case "write_file", "edit_file":
		if path, ok := args["path"].(string); ok {
			return fmt.Sprintf("%s:%s", toolName, path)
		}
	}
	return toolName
}

// Check decides whether the request may run.
//
// Read-only calls always pass. In Plan work mode mutating calls are
// denied outright. In Autonomous permission mode mutating calls pass
// without prompting. Otherwise the session cache is consulted, then
// the user is prompted.
func (g *Gate) Check(ctx context.Context, req *Request, permMode chat.PermissionMode, workMode chat.WorkMode) (*Response, error) {
	if !req.Mutating {
		return &Response{Allowed: true, Decision: DecisionAllow}, nil
	}

	if workMode == chat.ModePlan {
		return &Response{
			Allowed:  false,
			Decision: DecisionDeny,
			Reason:   fmt.Sprintf("tool %q is disabled in Plan mode", req.ToolName),
		}, nil
	}

	if permMode == chat.Autonomous {
		return &Response{Allowed: true, Decision: DecisionAllow}, nil
	}

	key := cacheKey(req.ToolName, req.Args)

	g.mu.RLock()
	cached, ok := g.sessionCache[key]
	g.mu.RUnlock()
	if ok {
		switch cached {
		case DecisionAllowSession:
			return &Response{Allowed: true, Decision: cached}, nil
		case DecisionDenySession:
			return &Response{Allowed: false, Decision: cached, Reason: "denied for session"}, nil
		}
	}

	return g.askUser(ctx, req, key)
}

// askUser prompts for a decision and applies it.
func (g *Gate) askUser(ctx context.Context, req *Request, key string) (*Response, error) {
	g.mu.RLock()
	handler := g.promptHandler
	g.mu.RUnlock()

	if handler == nil {
		return &Response{
			Allowed:  false,
			Decision: DecisionDeny,
			Reason:   "no approval channel available",
		}, nil
	}

	// The handler is supposed to honor ctx, but an interactive one may
	// sit in a blocking read. Run it in a goroutine so cancellation
	// resolves the call immediately either way.
	type answer struct {
		decision Decision
		err      error
	}
	ch := make(chan answer, 1)
	go func() {
		decision, err := handler(ctx, req)
		ch <- answer{decision, err}
	}()

	var decision Decision
	select {
	case <-ctx.Done():
		return &Response{
			Allowed:  false,
			Decision: DecisionDeny,
			Reason:   "cancelled",
		}, nil
	case a := <-ch:
		if a.err != nil {
			if errors.Is(a.err, context.Canceled) {
				return &Response{
					Allowed:  false,
					Decision: DecisionDeny,
					Reason:   "cancelled",
				}, nil
			}
			return &Response{Allowed: false, Decision: DecisionDeny, Reason: a.err.Error()}, a.err
		}
		decision = a.decision
	}

	switch decision {
	case DecisionAllow:
		return &Response{Allowed: true, Decision: decision}, nil

	case DecisionAllowSession:
		g.remember(key, decision)
		return &Response{Allowed: true, Decision: decision}, nil

	case DecisionDeny:
		return &Response{Allowed: false, Decision: decision, Reason: "denied by user"}, nil

	case DecisionDenySession:
		g.remember(key, decision)
		return &Response{Allowed: false, Decision: decision, Reason: "denied for session"}, nil

	default:
		logging.Warn("unknown permission decision", "decision", decision, "tool", req.ToolName)
		return &Response{Allowed: false, Decision: DecisionDeny, Reason: "unknown decision"}, nil
	}
}

// remember stores a session-level decision, evicting arbitrary entries
// when the cache is full.
func (g *Gate) remember(key string, decision Decision) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.sessionCache) >= maxCacheEntries {
		evict := maxCacheEntries / 2
		count := 0
		for k := range g.sessionCache {
			if count >= evict {
				break
			}
			delete(g.sessionCache, k)
			count++
		}
	}
	g.sessionCache[key] = decision
}

// Forget removes a session-level decision for a tool invocation.
func (g *Gate) Forget(toolName string, args map[string]any) {
	key := cacheKey(toolName, args)
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.sessionCache, key)
}

// ClearSession drops all session-level decisions.
func (g *Gate) ClearSession() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessionCache = make(map[string]Decision)
}
