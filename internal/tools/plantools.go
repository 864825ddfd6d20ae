package tools

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"krusty/internal/chat"
)

// Plan tools mutate only the session's task plan, which lives inside
// the conversation. They are classified read-only so they stay usable
// in Plan work mode.

// AddSubtaskTool adds a task to the session plan.
type AddSubtaskTool struct {
	session *chat.Session
}

// NewAddSubtaskTool creates an add_subtask tool bound to the session.
func NewAddSubtaskTool(session *chat.Session) *AddSubtaskTool {
	return &AddSubtaskTool{session: session}
}

func (t *AddSubtaskTool) Name() string {
	return "add_subtask"
}

func (t *AddSubtaskTool) Description() string {
	return `Adds a task to the plan under the named phase. The phase is
created if it does not exist. Returns the new task's id.

PARAMETERS:
- phase (required): Phase name to group the task under
- title (required): Short description of the task`
}

func (t *AddSubtaskTool) Classification() Classification {
	return ClassReadOnly
}

func (t *AddSubtaskTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"phase": {
					Type:        genai.TypeString,
					Description: "The phase to add the task to",
				},
				"title": {
					Type:        genai.TypeString,
					Description: "Short description of the task",
				},
			},
			Required: []string{"phase", "title"},
		},
	}
}

func (t *AddSubtaskTool) Validate(args map[string]any) error {
	if phase, ok := GetString(args, "phase"); !ok || phase == "" {
		return NewValidationError("phase", "is required")
	}
	if title, ok := GetString(args, "title"); !ok || title == "" {
		return NewValidationError("title", "is required")
	}
	return nil
}

func (t *AddSubtaskTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	phase, _ := GetString(args, "phase")
	title, _ := GetString(args, "title")

	id := t.session.Plan.AddTask(phase, title)
	return NewSuccessResultWithData(
		fmt.Sprintf("added task %s to phase %q", id, phase),
		map[string]any{"task_id": id},
	), nil
}

// SetDependencyTool records an ordering edge between two plan tasks.
type SetDependencyTool struct {
	session *chat.Session
}

// NewSetDependencyTool creates a set_dependency tool bound to the session.
func NewSetDependencyTool(session *chat.Session) *SetDependencyTool {
	return &SetDependencyTool{session: session}
}

func (t *SetDependencyTool) Name() string {
	return "set_dependency"
}

func (t *SetDependencyTool) Description() string {
	return `Makes one plan task depend on another. The dependent task cannot
start until the dependency is done. Cycles are rejected.

PARAMETERS:
- task_id (required): The task that must wait
- depends_on (required): The task it waits for`
}

func (t *SetDependencyTool) Classification() Classification {
	return ClassReadOnly
}

func (t *SetDependencyTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"task_id": {
					Type:        genai.TypeString,
					Description: "Id of the task that must wait",
				},
				"depends_on": {
					Type:        genai.TypeString,
					Description: "Id of the task it waits for",
				},
			},
			Required: []string{"task_id", "depends_on"},
		},
	}
}

func (t *SetDependencyTool) Validate(args map[string]any) error {
	taskID, ok := GetString(args, "task_id")
	if !ok || taskID == "" {
		return NewValidationError("task_id", "is required")
	}
	dep, ok := GetString(args, "depends_on")
	if !ok || dep == "" {
		return NewValidationError("depends_on", "is required")
	}
	if taskID == dep {
		return NewValidationError("depends_on", "a task cannot depend on itself")
	}
	return nil
}

func (t *SetDependencyTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	taskID, _ := GetString(args, "task_id")
	dep, _ := GetString(args, "depends_on")

	if err := t.session.Plan.AddDependency(taskID, dep); err != nil {
		return NewErrorResult(err.Error()), nil
	}
	return NewSuccessResult(fmt.Sprintf("task %s now depends on %s", taskID, dep)), nil
}

// TaskStartTool marks a plan task active.
type TaskStartTool struct {
	session *chat.Session
}

// NewTaskStartTool creates a task_start tool bound to the session.
func NewTaskStartTool(session *chat.Session) *TaskStartTool {
	return &TaskStartTool{session: session}
}

func (t *TaskStartTool) Name() string {
	return "task_start"
}

func (t *TaskStartTool) Description() string {
	return `Marks a plan task as active. Fails if the task has unfinished
dependencies.

PARAMETERS:
- task_id (required): The task to start`
}

func (t *TaskStartTool) Classification() Classification {
	return ClassReadOnly
}

func (t *TaskStartTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"task_id": {
					Type:        genai.TypeString,
					Description: "Id of the task to start",
				},
			},
			Required: []string{"task_id"},
		},
	}
}

func (t *TaskStartTool) Validate(args map[string]any) error {
	if taskID, ok := GetString(args, "task_id"); !ok || taskID == "" {
		return NewValidationError("task_id", "is required")
	}
	return nil
}

func (t *TaskStartTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	taskID, _ := GetString(args, "task_id")
	if err := t.session.Plan.Start(taskID); err != nil {
		return NewErrorResult(err.Error()), nil
	}
	return NewSuccessResult(fmt.Sprintf("task %s is now active", taskID)), nil
}

// TaskCompleteTool marks a plan task done.
type TaskCompleteTool struct {
	session *chat.Session
}

// NewTaskCompleteTool creates a task_complete tool bound to the session.
func NewTaskCompleteTool(session *chat.Session) *TaskCompleteTool {
	return &TaskCompleteTool{session: session}
}

func (t *TaskCompleteTool) Name() string {
	return "task_complete"
}

func (t *TaskCompleteTool) Description() string {
	return `Marks a plan task as done. Blocked tasks whose dependencies are
all done become startable again.

PARAMETERS:
- task_id (required): The task to complete`
}

func (t *TaskCompleteTool) Classification() Classification {
	return ClassReadOnly
}

func (t *TaskCompleteTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"task_id": {
					Type:        genai.TypeString,
					Description: "Id of the task to complete",
				},
			},
			Required: []string{"task_id"},
		},
	}
}

func (t *TaskCompleteTool) Validate(args map[string]any) error {
	if taskID, ok := GetString(args, "task_id"); !ok || taskID == "" {
		return NewValidationError("task_id", "is required")
	}
	return nil
}

func (t *TaskCompleteTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	taskID, _ := GetString(args, "task_id")
	if err := t.session.Plan.Complete(taskID); err != nil {
		return NewErrorResult(err.Error()), nil
	}
	return NewSuccessResult(fmt.Sprintf("task %s is done", taskID)), nil
}

// ShowPlanTool renders the current plan.
type ShowPlanTool struct {
	session *chat.Session
}

// NewShowPlanTool creates a show_plan tool bound to the session.
func NewShowPlanTool(session *chat.Session) *ShowPlanTool {
	return &ShowPlanTool{session: session}
}

func (t *ShowPlanTool) Name() string {
	return "show_plan"
}

func (t *ShowPlanTool) Description() string {
	return "Shows the current plan with phases, tasks, statuses, and dependencies."
}

func (t *ShowPlanTool) Classification() Classification {
	return ClassReadOnly
}

func (t *ShowPlanTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: &genai.Schema{
			Type:       genai.TypeObject,
			Properties: map[string]*genai.Schema{},
		},
	}
}

func (t *ShowPlanTool) Validate(args map[string]any) error {
	return nil
}

func (t *ShowPlanTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	rendered := t.session.Plan.Render()
	if rendered == "" {
		return NewSuccessResult("(plan is empty)"), nil
	}
	return NewSuccessResult(rendered), nil
}
