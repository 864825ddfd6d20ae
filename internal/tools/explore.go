package tools

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// SpawnResult is the outcome of one sub-agent task.
type SpawnResult struct {
	Task    string
	Summary string
	Err     error
}

// Spawner runs exploration tasks in parallel sub-agents. Implemented by
// the agent orchestrator and injected at wiring time.
type Spawner interface {
	Spawn(ctx context.Context, tasks []string) ([]SpawnResult, error)
}

// ExploreTool fans research tasks out to concurrent sub-agents. The
// sub-agents only get read-only tools, so the tool itself is read-only.
type ExploreTool struct {
	spawner Spawner
}

// NewExploreTool creates an explore tool. The spawner is set later via
// SetSpawner.
func NewExploreTool() *ExploreTool {
	return &ExploreTool{}
}

// SetSpawner wires in the sub-agent orchestrator.
func (t *ExploreTool) SetSpawner(s Spawner) {
	t.spawner = s
}

func (t *ExploreTool) Name() string {
	return "explore"
}

func (t *ExploreTool) Description() string {
	return `Spawns read-only sub-agents to research tasks in parallel. Each
task gets its own agent with file reading and searching tools; the
agents' summaries are returned in task order.

PARAMETERS:
- tasks (required): One or more self-contained research task descriptions

Use this to investigate several independent questions at once, such as
"how is logging configured" and "where are the HTTP handlers".`
}

func (t *ExploreTool) Classification() Classification {
	return ClassReadOnly
}

func (t *ExploreTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"tasks": {
					Type:        genai.TypeArray,
					Description: "Research task descriptions, one per sub-agent",
					Items: &genai.Schema{
						Type: genai.TypeString,
					},
				},
			},
			Required: []string{"tasks"},
		},
	}
}

// taskList extracts the tasks argument.
func taskList(args map[string]any) ([]string, error) {
	raw, ok := args["tasks"]
	if !ok {
		return nil, NewValidationError("tasks", "is required")
	}
	items, ok := raw.([]any)
	if !ok {
		// Single string is accepted for convenience.
		if s, ok := raw.(string); ok && s != "" {
			return []string{s}, nil
		}
		return nil, NewValidationError("tasks", "must be an array of strings")
	}
	tasks := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return nil, NewValidationError("tasks", "entries must be non-empty strings")
		}
		tasks = append(tasks, s)
	}
	if len(tasks) == 0 {
		return nil, NewValidationError("tasks", "must not be empty")
	}
	return tasks, nil
}

func (t *ExploreTool) Validate(args map[string]any) error {
	_, err := taskList(args)
	return err
}

func (t *ExploreTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	if t.spawner == nil {
		return NewErrorResult("sub-agent orchestrator is not available"), nil
	}

	tasks, err := taskList(args)
	if err != nil {
		return NewErrorResult(err.Error()), nil
	}

	results, err := t.spawner.Spawn(ctx, tasks)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return NewErrorResult(fmt.Sprintf("sub-agent run failed: %s", err)), nil
	}

	var builder strings.Builder
	succeeded := 0
	for i, r := range results {
		if i > 0 {
			builder.WriteString("\n\n")
		}
		builder.WriteString(fmt.Sprintf("## Task %d: %s\n", i+1, r.Task))
		if r.Err != nil {
			builder.WriteString(fmt.Sprintf("(failed: %s)", r.Err))
			continue
		}
		builder.WriteString(r.Summary)
		succeeded++
	}

	if succeeded == 0 {
		return NewErrorResult("all sub-agent tasks failed:\n" + builder.String()), nil
	}

	result := NewSuccessResultWithData(builder.String(), map[string]any{
		"tasks":     len(results),
		"succeeded": succeeded,
	})
	if succeeded < len(results) {
		result = result.WithWarning(fmt.Sprintf("%d of %d tasks failed", len(results)-succeeded, len(results)))
	}
	return result, nil
}
