package plan

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle state of a single plan task.
type TaskStatus string

const (
	StatusPending TaskStatus = "pending"
	StatusActive  TaskStatus = "active"
	StatusDone    TaskStatus = "done"
	StatusBlocked TaskStatus = "blocked"
)

// Task is a single unit of work within a phase.
type Task struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Status    TaskStatus `json:"status"`
	DependsOn []string   `json:"depends_on,omitempty"`
}

// Phase is an ordered group of tasks.
type Phase struct {
	Name  string  `json:"name"`
	Tasks []*Task `json:"tasks"`
}

// Plan is an ordered list of phases with a dependency relation between
// tasks. The dependency graph is kept acyclic: a task cannot start before
// every task it depends on is done.
type Plan struct {
	Phases []*Phase `json:"phases"`

	mu sync.RWMutex
}

// New creates an empty plan.
func New() *Plan {
	return &Plan{}
}

// AddTask appends a task to the named phase, creating the phase if needed.
// Returns the new task's ID.
func (p *Plan) AddTask(phase, title string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	task := &Task{
		ID:     uuid.NewString()[:8],
		Title:  title,
		Status: StatusPending,
	}

	for _, ph := range p.Phases {
		if ph.Name == phase {
			ph.Tasks = append(ph.Tasks, task)
			return task.ID
		}
	}
	p.Phases = append(p.Phases, &Phase{Name: phase, Tasks: []*Task{task}})
	return task.ID
}

// findLocked returns the task with the given ID. Caller holds the lock.
func (p *Plan) findLocked(id string) *Task {
	for _, ph := range p.Phases {
		for _, t := range ph.Tasks {
			if t.ID == id {
				return t
			}
		}
	}
	return nil
}

// Find returns the task with the given ID.
func (p *Plan) Find(id string) (*Task, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t := p.findLocked(id)
	return t, t != nil
}

// AddDependency records that task id depends on task dep. The edge is
// rejected if either task is unknown or if it would create a cycle.
func (p *Plan) AddDependency(id, dep string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	task := p.findLocked(id)
	if task == nil {
		return fmt.Errorf("unknown task: %s", id)
	}
	if p.findLocked(dep) == nil {
		return fmt.Errorf("unknown task: %s", dep)
	}
	if id == dep {
		return fmt.Errorf("task cannot depend on itself")
	}

	for _, existing := range task.DependsOn {
		if existing == dep {
			return nil
		}
	}

	task.DependsOn = append(task.DependsOn, dep)
	if p.hasCycleLocked() {
		task.DependsOn = task.DependsOn[:len(task.DependsOn)-1]
		return fmt.Errorf("dependency %s -> %s would create a cycle", id, dep)
	}
	return nil
}

// hasCycleLocked runs a DFS over the adjacency index. Caller holds the lock.
func (p *Plan) hasCycleLocked() bool {
	adj := make(map[string][]string)
	for _, ph := range p.Phases {
		for _, t := range ph.Tasks {
			adj[t.ID] = t.DependsOn
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(adj))

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		for _, dep := range adj[id] {
			switch color[dep] {
			case gray:
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}

	ids := make([]string, 0, len(adj))
	for id := range adj {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if color[id] == white && visit(id) {
			return true
		}
	}
	return false
}

// Start transitions a task to active. Fails if any dependency is not done.
func (p *Plan) Start(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	task := p.findLocked(id)
	if task == nil {
		return fmt.Errorf("unknown task: %s", id)
	}
	if task.Status == StatusDone {
		return fmt.Errorf("task %s is already done", id)
	}

	for _, dep := range task.DependsOn {
		d := p.findLocked(dep)
		if d == nil || d.Status != StatusDone {
			task.Status = StatusBlocked
			return fmt.Errorf("task %s is blocked on %s", id, dep)
		}
	}
	task.Status = StatusActive
	return nil
}

// Complete transitions a task to done and unblocks dependents whose
// remaining dependencies are all done.
func (p *Plan) Complete(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	task := p.findLocked(id)
	if task == nil {
		return fmt.Errorf("unknown task: %s", id)
	}
	task.Status = StatusDone

	for _, ph := range p.Phases {
		for _, t := range ph.Tasks {
			if t.Status != StatusBlocked {
				continue
			}
			ready := true
			for _, dep := range t.DependsOn {
				d := p.findLocked(dep)
				if d == nil || d.Status != StatusDone {
					ready = false
					break
				}
			}
			if ready {
				t.Status = StatusPending
			}
		}
	}
	return nil
}

// Snapshot returns a deep copy for external rendering.
func (p *Plan) Snapshot() *Plan {
	p.mu.RLock()
	defer p.mu.RUnlock()

	cp := &Plan{Phases: make([]*Phase, 0, len(p.Phases))}
	for _, ph := range p.Phases {
		nph := &Phase{Name: ph.Name, Tasks: make([]*Task, 0, len(ph.Tasks))}
		for _, t := range ph.Tasks {
			nt := &Task{
				ID:        t.ID,
				Title:     t.Title,
				Status:    t.Status,
				DependsOn: append([]string(nil), t.DependsOn...),
			}
			nph.Tasks = append(nph.Tasks, nt)
		}
		cp.Phases = append(cp.Phases, nph)
	}
	return cp
}

// TaskCount returns the total number of tasks across all phases.
func (p *Plan) TaskCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	n := 0
	for _, ph := range p.Phases {
		n += len(ph.Tasks)
	}
	return n
}

// Render produces the structured-text form of the plan used for
// persistence and for prompting the model.
func (p *Plan) Render() string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.Phases) == 0 {
		return "(empty plan)"
	}

	var sb strings.Builder
	for i, ph := range p.Phases {
		fmt.Fprintf(&sb, "Phase %d: %s\n", i+1, ph.Name)
		for _, t := range ph.Tasks {
			marker := " "
			switch t.Status {
			case StatusActive:
				marker = ">"
			case StatusDone:
				marker = "x"
			case StatusBlocked:
				marker = "!"
			}
			fmt.Fprintf(&sb, "  [%s] %s %s", marker, t.ID, t.Title)
			if len(t.DependsOn) > 0 {
				fmt.Fprintf(&sb, " (after %s)", strings.Join(t.DependsOn, ", "))
			}
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
