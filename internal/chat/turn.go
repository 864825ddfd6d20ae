package chat

import "time"

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// TurnStatus is the terminal status of a finalized turn.
type TurnStatus string

const (
	TurnComplete    TurnStatus = "complete"
	TurnInterrupted TurnStatus = "interrupted"
	TurnFailed      TurnStatus = "failed"
)

// CallStatus tracks a tool call through its lifecycle:
// proposed -> awaiting_approval -> approved|denied -> running ->
// completed|failed|cancelled. Autonomous sessions and read-only tools skip
// straight from proposed to approved.
type CallStatus string

const (
	CallProposed         CallStatus = "proposed"
	CallAwaitingApproval CallStatus = "awaiting_approval"
	CallApproved         CallStatus = "approved"
	CallDenied           CallStatus = "denied"
	CallRunning          CallStatus = "running"
	CallCompleted        CallStatus = "completed"
	CallFailed           CallStatus = "failed"
	CallCancelled        CallStatus = "cancelled"
)

// BlockKind tags the variant of a Block.
type BlockKind string

const (
	BlockText       BlockKind = "text"
	BlockThinking   BlockKind = "thinking"
	BlockToolCall   BlockKind = "tool_call"
	BlockToolResult BlockKind = "tool_result"
)

// ToolCall is a model-proposed tool invocation.
type ToolCall struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Args    map[string]any `json:"args,omitempty"`
	RawArgs string         `json:"raw_args,omitempty"`
	Status  CallStatus     `json:"status"`
}

// ToolResult is the structured outcome of a tool call, fed back to the
// model as conversation context.
type ToolResult struct {
	CallID   string         `json:"call_id"`
	OK       bool           `json:"ok"`
	Content  string         `json:"content,omitempty"`
	Data     any            `json:"data,omitempty"`
	Error    string         `json:"error,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Block is a typed fragment of a turn.
type Block struct {
	Kind       BlockKind   `json:"kind"`
	Text       string      `json:"text,omitempty"`
	ToolCall   *ToolCall   `json:"tool_call,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

// TextBlock creates a text block.
func TextBlock(text string) Block {
	return Block{Kind: BlockText, Text: text}
}

// ThinkingBlock creates a thinking block.
func ThinkingBlock(text string) Block {
	return Block{Kind: BlockThinking, Text: text}
}

// ToolCallBlock creates a tool-call block.
func ToolCallBlock(call *ToolCall) Block {
	return Block{Kind: BlockToolCall, ToolCall: call}
}

// ToolResultBlock creates a tool-result block.
func ToolResultBlock(result *ToolResult) Block {
	return Block{Kind: BlockToolResult, ToolResult: result}
}

// Turn is one complete exchange unit in a session's history. Immutable
// once finalized, except for the status transition caused by cancellation.
type Turn struct {
	Role      Role       `json:"role"`
	Seq       int        `json:"seq"`
	Blocks    []Block    `json:"blocks"`
	Status    TurnStatus `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   time.Time  `json:"ended_at,omitempty"`
}

// NewTurn creates a turn with the given role and sequence number.
func NewTurn(role Role, seq int) *Turn {
	return &Turn{
		Role:      role,
		Seq:       seq,
		Status:    TurnComplete,
		StartedAt: time.Now(),
	}
}

// UserTurn creates a complete user turn holding a single text block.
func UserTurn(seq int, text string) *Turn {
	t := NewTurn(RoleUser, seq)
	t.Blocks = append(t.Blocks, TextBlock(text))
	t.EndedAt = time.Now()
	return t
}

// ToolCalls returns the tool-call blocks of the turn, in block order.
func (t *Turn) ToolCalls() []*ToolCall {
	var calls []*ToolCall
	for i := range t.Blocks {
		if t.Blocks[i].Kind == BlockToolCall && t.Blocks[i].ToolCall != nil {
			calls = append(calls, t.Blocks[i].ToolCall)
		}
	}
	return calls
}

// Results returns the tool-result blocks of the turn, in block order.
func (t *Turn) Results() []*ToolResult {
	var results []*ToolResult
	for i := range t.Blocks {
		if t.Blocks[i].Kind == BlockToolResult && t.Blocks[i].ToolResult != nil {
			results = append(results, t.Blocks[i].ToolResult)
		}
	}
	return results
}

// Text concatenates the turn's text blocks.
func (t *Turn) Text() string {
	var out string
	for i := range t.Blocks {
		if t.Blocks[i].Kind == BlockText {
			out += t.Blocks[i].Text
		}
	}
	return out
}
