package org

import (
	"context"
	"errors"
	"fmt"

	"github.com/GoCodeAlone/agentdesk/audit"
	"github.com/GoCodeAlone/agentdesk/comms"
	"github.com/GoCodeAlone/agentdesk/desk"
	"github.com/GoCodeAlone/agentdesk/task"
)

// ErrTaskTerminal is returned when delegating a completed or failed task.
var ErrTaskTerminal = errors.New("task already terminal")

// Delegate hands a task from one desk to another. It returns (false, nil)
// when the handoff is not authorized; errors are reserved for missing
// desks/tasks and terminal tasks. On success the new assignee is stored
// before Delegate returns, and processing is scheduled asynchronously.
func (o *Organization) Delegate(ctx context.Context, taskID, fromID, toID string) (bool, error) {
	from, err := o.registry.Get(fromID)
	if err != nil {
		return false, fmt.Errorf("delegating desk: %w", err)
	}
	to, err := o.registry.Get(toID)
	if err != nil {
		return false, fmt.Errorf("target desk: %w", err)
	}
	t, err := o.tasks.Get(ctx, taskID)
	if err != nil {
		return false, err
	}
	if t.Status.Terminal() {
		return false, fmt.Errorf("%w: %s is %s", ErrTaskTerminal, taskID, t.Status)
	}

	ok := desk.CanDelegate(from, to)
	o.record(ctx, &audit.Entry{
		Actor:      fromID,
		Action:     audit.ActionDelegate,
		TaskID:     taskID,
		FromDesk:   fromID,
		ToDesk:     toID,
		Authorized: ok,
		Reason:     delegationReason(from, to),
	})
	if !ok {
		o.logger.Info("delegation denied", "task", taskID, "from", fromID, "to", toID)
		return false, nil
	}

	if err := o.assign(ctx, t, fromID, toID); err != nil {
		return false, err
	}
	return true, nil
}

// Assign routes a task to a desk without an authorizing source desk. It is
// the operator path used by the HTTP API and administrative tooling; the
// decision is still audited.
func (o *Organization) Assign(ctx context.Context, taskID, toID string) error {
	if _, err := o.registry.Get(toID); err != nil {
		return fmt.Errorf("target desk: %w", err)
	}
	t, err := o.tasks.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if t.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrTaskTerminal, taskID, t.Status)
	}

	o.record(ctx, &audit.Entry{
		Actor:      operatorActor,
		Action:     audit.ActionAssign,
		TaskID:     taskID,
		ToDesk:     toID,
		Authorized: true,
		Reason:     "operator assignment",
	})
	return o.assign(ctx, t, operatorActor, toID)
}

// assign persists the new assignee, announces it, and schedules processing.
// The store update completes before the processing routine is submitted, so
// readers observe AssignedTo no later than the handoff's return.
func (o *Organization) assign(ctx context.Context, t *task.Task, actor, toID string) error {
	t.AssignedTo = toID
	if err := o.tasks.Update(ctx, t); err != nil {
		return fmt.Errorf("store assignee: %w", err)
	}

	o.publish(ctx, &comms.Message{
		Type:    comms.TypeTaskAssigned,
		From:    actor,
		To:      toID,
		Subject: fmt.Sprintf("Task assigned: %s", t.Title),
		Payload: map[string]string{"task_id": t.ID, "assigned_to": toID},
	})

	taskID := t.ID
	if err := o.pool.Submit(taskID, toID, func(runCtx context.Context) {
		o.process(runCtx, toID, taskID)
	}); err != nil {
		return fmt.Errorf("schedule processing: %w", err)
	}
	return nil
}

// delegationReason names the rule that authorized (or would authorize) a
// handoff, for the audit trail.
func delegationReason(from, to *desk.Desk) string {
	switch {
	case to.ReportsTo == from.ID:
		return "direct report"
	case from.TeamID != "" && from.TeamID == to.TeamID && to.Level >= from.Level:
		return "same team"
	default:
		return "not authorized"
	}
}
