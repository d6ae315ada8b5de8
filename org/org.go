// Package org wires desks, tasks, delegation, and processing into one
// organization. All state hangs off the Organization value; two
// organizations in one process never share anything.
package org

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/GoCodeAlone/agentdesk/audit"
	"github.com/GoCodeAlone/agentdesk/comms"
	"github.com/GoCodeAlone/agentdesk/desk"
	"github.com/GoCodeAlone/agentdesk/exec"
	"github.com/GoCodeAlone/agentdesk/task"
)

// operatorActor is the audit actor for assignments made through the API
// rather than by a desk.
const operatorActor = "api"

// Config carries the collaborators an Organization is built from. Zero
// fields get in-memory defaults, so tests can construct one from nothing.
type Config struct {
	Name            string
	Registry        *desk.Registry
	Tasks           task.Store
	Bus             comms.Bus
	Audit           audit.Log
	Executor        exec.Executor
	Timeout         time.Duration // per-task execution deadline; 0 disables
	Rules           []Rule
	DefaultAssignee string
	Logger          *slog.Logger
}

// Organization owns one desk registry, one task store, one bus, one audit
// log, one executor, and one processing pool.
type Organization struct {
	name            string
	registry        *desk.Registry
	tasks           task.Store
	bus             comms.Bus
	audit           audit.Log
	executor        exec.Executor
	pool            *Pool
	timeout         time.Duration
	rules           []Rule
	defaultAssignee string
	logger          *slog.Logger
}

// New creates an Organization from cfg, filling unset collaborators with
// in-memory implementations.
func New(cfg Config) *Organization {
	if cfg.Name == "" {
		cfg.Name = "agentdesk"
	}
	if cfg.Registry == nil {
		cfg.Registry = desk.NewRegistry()
	}
	if cfg.Tasks == nil {
		cfg.Tasks = task.NewMemStore()
	}
	if cfg.Bus == nil {
		cfg.Bus = comms.NewInMemoryBus()
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.NewMemLog()
	}
	if cfg.Executor == nil {
		cfg.Executor = exec.NewSimulator(0, 0, 0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Organization{
		name:            cfg.Name,
		registry:        cfg.Registry,
		tasks:           cfg.Tasks,
		bus:             cfg.Bus,
		audit:           cfg.Audit,
		executor:        cfg.Executor,
		pool:            NewPool(cfg.Logger),
		timeout:         cfg.Timeout,
		rules:           cfg.Rules,
		defaultAssignee: cfg.DefaultAssignee,
		logger:          cfg.Logger,
	}
}

// Name returns the organization name.
func (o *Organization) Name() string { return o.name }

// Registry returns the desk registry.
func (o *Organization) Registry() *desk.Registry { return o.registry }

// Tasks returns the task store.
func (o *Organization) Tasks() task.Store { return o.tasks }

// Bus returns the notification bus.
func (o *Organization) Bus() comms.Bus { return o.bus }

// Audit returns the audit log.
func (o *Organization) Audit() audit.Log { return o.audit }

// Pool returns the processing pool.
func (o *Organization) Pool() *Pool { return o.pool }

// Create stores a new task and announces it on the bus. The creator goes in
// the audit trail of the task itself (CreatedBy), not the audit log, which
// records delegation decisions only.
func (o *Organization) Create(ctx context.Context, t *task.Task) (string, error) {
	id, err := o.tasks.Create(ctx, t)
	if err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}
	o.publish(ctx, &comms.Message{
		Type:    comms.TypeTaskCreated,
		From:    t.CreatedBy,
		Subject: fmt.Sprintf("Task created: %s", t.Title),
		Payload: map[string]string{"task_id": id, "priority": t.Priority.String()},
	})
	return id, nil
}

// Drain waits for in-flight processing to finish.
func (o *Organization) Drain(ctx context.Context) error {
	return o.pool.Drain(ctx)
}

// Shutdown cancels in-flight processing and waits for it to stop.
func (o *Organization) Shutdown(ctx context.Context) error {
	return o.pool.Shutdown(ctx)
}

// publish sends a bus message; failures are logged, never propagated.
func (o *Organization) publish(ctx context.Context, msg *comms.Message) {
	if err := o.bus.Publish(ctx, msg); err != nil {
		o.logger.Warn("bus publish failed", "type", msg.Type, "error", err)
	}
}

// record appends an audit entry; failures are logged, never propagated.
func (o *Organization) record(ctx context.Context, e *audit.Entry) {
	if err := o.audit.Record(ctx, e); err != nil {
		o.logger.Warn("audit record failed", "task", e.TaskID, "error", err)
	}
}
