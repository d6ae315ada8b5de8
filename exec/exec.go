// Package exec defines the work routine that desks run to complete tasks.
package exec

import (
	"context"

	"github.com/GoCodeAlone/agentdesk/desk"
	"github.com/GoCodeAlone/agentdesk/task"
)

// Result is the outcome of a completed work routine.
type Result struct {
	Output    string          `json:"output"`
	Artifacts []task.Artifact `json:"artifacts,omitempty"`
	Usage     task.Usage      `json:"usage"`
}

// Executor performs the work for a task on behalf of a desk.
type Executor interface {
	// Name returns the executor identifier (e.g., "simulator", "func").
	Name() string

	// Execute runs the task to completion or returns an error. The context
	// carries cancellation from pool shutdown and per-task timeouts.
	Execute(ctx context.Context, d *desk.Desk, t *task.Task) (*Result, error)
}

// Func adapts a plain function to the Executor interface.
type Func func(ctx context.Context, d *desk.Desk, t *task.Task) (*Result, error)

// Name returns the executor identifier.
func (f Func) Name() string { return "func" }

// Execute invokes the wrapped function.
func (f Func) Execute(ctx context.Context, d *desk.Desk, t *task.Task) (*Result, error) {
	return f(ctx, d, t)
}
