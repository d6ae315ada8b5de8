// Package task defines the task model and persistence for desk work items.
package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a task identifier is absent from the store.
var ErrNotFound = errors.New("task not found")

// Status represents the lifecycle state of a task.
//
// The processor only ever moves a task along
// pending -> in_progress -> completed|failed. Blocked and in_review are
// externally managed states (dependency holds, QA review) and are never set
// by the runtime itself.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusInReview   Status = "in_review"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Priority orders tasks from low to critical. The zero value means "unset";
// stores default it to PriorityMedium at creation.
type Priority int

const (
	PriorityLow      Priority = 1
	PriorityMedium   Priority = 2
	PriorityHigh     Priority = 3
	PriorityCritical Priority = 4
)

var priorityNames = map[Priority]string{
	PriorityLow:      "low",
	PriorityMedium:   "medium",
	PriorityHigh:     "high",
	PriorityCritical: "critical",
}

// ParsePriority converts a priority name to its Priority value. Unknown names
// are an error; there is no silent fallback.
func ParsePriority(s string) (Priority, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for p, n := range priorityNames {
		if n == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("invalid priority %q", s)
}

func (p Priority) String() string {
	if n, ok := priorityNames[p]; ok {
		return n
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// MarshalJSON serializes the priority by name.
func (p Priority) MarshalJSON() ([]byte, error) {
	n, ok := priorityNames[p]
	if !ok {
		return nil, fmt.Errorf("invalid priority %d", int(p))
	}
	return json.Marshal(n)
}

// UnmarshalJSON parses a priority name, rejecting unknown values.
func (p *Priority) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParsePriority(name)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Artifact is an output produced while executing a task. Immutable once
// created.
type Artifact struct {
	ID        string            `json:"id"`
	TaskID    string            `json:"task_id"`
	Type      string            `json:"type"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Usage accumulates execution cost bookkeeping for a task.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Task is a unit of work routed through the desk organization.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	CreatedBy   string     `json:"created_by,omitempty"`
	AssignedTo  string     `json:"assigned_to,omitempty"` // desk ID
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority"`
	ParentID    string     `json:"parent_id,omitempty"` // for sub-tasks
	DependsOn   []string   `json:"depends_on,omitempty"`
	Artifacts   []Artifact `json:"artifacts,omitempty"`
	QARequired  bool       `json:"qa_required,omitempty"`
	QAAssignee  string     `json:"qa_assignee,omitempty"`
	Result      string     `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	Usage       Usage      `json:"usage"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy so callers can mutate freely.
func (t *Task) Clone() *Task {
	cp := *t
	if t.DependsOn != nil {
		cp.DependsOn = append([]string(nil), t.DependsOn...)
	}
	if t.Artifacts != nil {
		cp.Artifacts = make([]Artifact, len(t.Artifacts))
		for i, a := range t.Artifacts {
			cp.Artifacts[i] = a
			if a.Metadata != nil {
				cp.Artifacts[i].Metadata = make(map[string]string, len(a.Metadata))
				for k, v := range a.Metadata {
					cp.Artifacts[i].Metadata[k] = v
				}
			}
		}
	}
	if t.StartedAt != nil {
		at := *t.StartedAt
		cp.StartedAt = &at
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		cp.CompletedAt = &at
	}
	return &cp
}

// Store persists and retrieves tasks. Tasks are never removed; terminal
// states are the end of the line.
type Store interface {
	// Create persists a new task and returns its identifier. A task arriving
	// without an ID gets a collision-safe generated one; status defaults to
	// pending and priority to medium.
	Create(ctx context.Context, t *Task) (string, error)

	// Get retrieves a copy of a task by ID.
	Get(ctx context.Context, id string) (*Task, error)

	// Update saves changes to an existing task.
	Update(ctx context.Context, t *Task) error

	// List returns tasks matching the given filter.
	List(ctx context.Context, filter Filter) ([]*Task, error)
}

// Filter controls which tasks are returned by List.
type Filter struct {
	Status     *Status `json:"status,omitempty"`
	AssignedTo string  `json:"assigned_to,omitempty"`
	CreatedBy  string  `json:"created_by,omitempty"`
	Limit      int     `json:"limit,omitempty"`
	Offset     int     `json:"offset,omitempty"`
}
