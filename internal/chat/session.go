package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"krusty/internal/plan"
)

// PermissionMode controls approval gating for mutating tools.
type PermissionMode string

const (
	// Supervised requires user approval before mutating tools run.
	Supervised PermissionMode = "supervised"
	// Autonomous runs all permitted tools without asking.
	Autonomous PermissionMode = "autonomous"
)

// WorkMode restricts which tool classes may execute.
type WorkMode string

const (
	// ModePlan permits only read-only tools and plan-mutation tools.
	ModePlan WorkMode = "plan"
	// ModeBuild permits the full tool set.
	ModeBuild WorkMode = "build"
)

// Session holds one conversation's identity, modes, and ordered turn
// history. Turn insertion order is conversational order and is the context
// sent to the model. A session is mutated only by the loop that owns it.
type Session struct {
	ID             string         `json:"id"`
	CreatedAt      time.Time      `json:"created_at"`
	WorkDir        string         `json:"work_dir"`
	Provider       string         `json:"provider"`
	Model          string         `json:"model"`
	Effort         string         `json:"effort,omitempty"`
	PermissionMode PermissionMode `json:"permission_mode"`
	WorkMode       WorkMode       `json:"work_mode"`
	Turns          []*Turn        `json:"turns"`
	Plan           *plan.Plan     `json:"plan,omitempty"`

	seq int
	mu  sync.RWMutex
}

// NewSession creates a session rooted at workDir with default modes.
func NewSession(workDir string) *Session {
	return &Session{
		ID:             uuid.NewString(),
		CreatedAt:      time.Now(),
		WorkDir:        workDir,
		PermissionMode: Supervised,
		WorkMode:       ModeBuild,
		Plan:           plan.New(),
	}
}

// NextSeq issues the next monotonically increasing turn sequence number.
func (s *Session) NextSeq() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

// Append adds a finalized turn to the history.
func (s *Session) Append(t *Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Turns = append(s.Turns, t)
	if t.Seq > s.seq {
		s.seq = t.Seq
	}
}

// History returns a snapshot of the turn slice. The turns themselves are
// finalized and treated as immutable by callers.
func (s *Session) History() []*Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Turn, len(s.Turns))
	copy(out, s.Turns)
	return out
}

// TurnCount returns the number of turns in the history.
func (s *Session) TurnCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.Turns)
}

// SetWorkMode switches between plan and build mode. Takes effect for
// subsequent tool calls only; never retroactive.
func (s *Session) SetWorkMode(mode WorkMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.WorkMode = mode
}

// GetWorkMode returns the current work mode.
func (s *Session) GetWorkMode() WorkMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.WorkMode
}

// SetPermissionMode switches between supervised and autonomous gating.
func (s *Session) SetPermissionMode(mode PermissionMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PermissionMode = mode
}

// GetPermissionMode returns the current permission mode.
func (s *Session) GetPermissionMode() PermissionMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.PermissionMode
}

// restoreSeq recomputes the sequence counter after loading from disk.
func (s *Session) restoreSeq() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.Turns {
		if t.Seq > s.seq {
			s.seq = t.Seq
		}
	}
}
