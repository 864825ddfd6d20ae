package engine

import (
	"context"
	"fmt"
	"strings"

	"krusty/internal/chat"
	"krusty/internal/client"
	"krusty/internal/logging"
)

// maxTranscriptChars bounds how much history is fed to the summary
// request. Oldest turns are dropped first; the summary favors recent
// work.
const maxTranscriptChars = 120000

const summaryInstruction = `Summarize the coding session transcript below so a fresh
assistant can pick the work up seamlessly. Cover: the user's goal, what
was changed (files, commands), important findings, decisions made, and
what remains to be done. Be specific about file paths and names. Write
plain prose, no preamble.`

// Compressor rewrites a long session into a fresh one seeded with a
// model-written summary. The old session is left intact on disk.
type Compressor struct {
	client client.Client
	store  chat.Store
}

// NewCompressor creates a compressor.
func NewCompressor(c client.Client, store chat.Store) *Compressor {
	return &Compressor{client: c, store: store}
}

// Compress summarizes the session's history and returns a new session
// carrying the summary plus the old session's modes, plan, and working
// directory.
func (c *Compressor) Compress(ctx context.Context, session *chat.Session) (*chat.Session, error) {
	history := session.History()
	if len(history) == 0 {
		return nil, fmt.Errorf("session has no history to compress")
	}

	transcript := renderTranscript(history)
	prompt := summaryInstruction + "\n\n---\n\n" + transcript

	summary, err := c.client.Summarize(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("summary request failed: %w", err)
	}
	if strings.TrimSpace(summary) == "" {
		return nil, fmt.Errorf("summary request returned no content")
	}

	fresh := chat.NewSession(session.WorkDir)
	fresh.Provider = session.Provider
	fresh.Model = session.Model
	fresh.Effort = session.Effort
	fresh.SetPermissionMode(session.GetPermissionMode())
	fresh.SetWorkMode(session.GetWorkMode())
	// Deep-copy the plan so later edits through the fresh session
	// cannot reach back into the source.
	fresh.Plan = session.Plan.Snapshot()

	seed := chat.UserTurn(fresh.NextSeq(), "Summary of the conversation so far:\n\n"+summary)
	if err := c.store.AppendTurn(fresh, seed); err != nil {
		return nil, fmt.Errorf("failed to persist compressed session: %w", err)
	}

	logging.Info("session compressed",
		"old", session.ID, "new", fresh.ID,
		"old_turns", len(history), "summary_chars", len(summary))
	return fresh, nil
}

// renderTranscript flattens turns into plain text for the summary
// prompt, newest turns kept when the budget runs out.
func renderTranscript(history []*chat.Turn) string {
	parts := make([]string, 0, len(history))
	for _, turn := range history {
		var b strings.Builder
		b.WriteString(fmt.Sprintf("[%s]\n", turn.Role))
		for _, block := range turn.Blocks {
			switch block.Kind {
			case chat.BlockText:
				b.WriteString(block.Text)
				b.WriteString("\n")
			case chat.BlockToolCall:
				if block.ToolCall != nil {
					b.WriteString(fmt.Sprintf("(called tool %s with %s)\n", block.ToolCall.Name, block.ToolCall.RawArgs))
				}
			case chat.BlockToolResult:
				if block.ToolResult != nil {
					content := block.ToolResult.Content
					if len(content) > 2000 {
						content = content[:2000] + "..."
					}
					if block.ToolResult.OK {
						b.WriteString(fmt.Sprintf("(tool result: %s)\n", content))
					} else {
						b.WriteString(fmt.Sprintf("(tool error: %s)\n", block.ToolResult.Error))
					}
				}
			}
			// thinking blocks are not replayed into summaries
		}
		parts = append(parts, b.String())
	}

	total := 0
	start := len(parts)
	for i := len(parts) - 1; i >= 0; i-- {
		total += len(parts[i])
		if total > maxTranscriptChars {
			break
		}
		start = i
	}
	if start > 0 {
		return "(earlier turns omitted)\n\n" + strings.Join(parts[start:], "\n")
	}
	return strings.Join(parts, "\n")
}
