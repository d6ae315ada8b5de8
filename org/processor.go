package org

import (
	"context"
	"fmt"
	"time"

	"github.com/GoCodeAlone/agentdesk/comms"
	"github.com/GoCodeAlone/agentdesk/task"
)

// process runs one task to completion on behalf of a desk. Execution
// failures are recorded on the task and never propagate; the desk always
// comes back idle.
//
// Cancellation and the per-task timeout apply to the executor call only.
// Store and registry writes run on an uncancellable context so the outcome
// is recorded even when the deadline killed the run.
func (o *Organization) process(ctx context.Context, deskID, taskID string) {
	base := context.WithoutCancel(ctx)
	execCtx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	d, err := o.registry.Get(deskID)
	if err != nil {
		o.logger.Error("processing desk vanished", "desk", deskID, "task", taskID, "error", err)
		return
	}

	if err := o.registry.SetBusy(deskID, taskID); err != nil {
		o.logger.Warn("set desk busy", "desk", deskID, "error", err)
	}
	defer func() {
		if err := o.registry.SetIdle(deskID); err != nil {
			o.logger.Warn("set desk idle", "desk", deskID, "error", err)
		}
		o.publish(base, &comms.Message{
			Type:    comms.TypeDeskStatus,
			From:    deskID,
			Subject: fmt.Sprintf("%s is idle", deskID),
			Payload: map[string]string{"desk": deskID, "status": "idle"},
		})
	}()

	t, err := o.tasks.Get(base, taskID)
	if err != nil {
		o.logger.Error("processing task vanished", "task", taskID, "error", err)
		return
	}

	now := time.Now().UTC()
	t.Status = task.StatusInProgress
	t.StartedAt = &now
	if err := o.tasks.Update(base, t); err != nil {
		o.logger.Error("mark task in progress", "task", taskID, "error", err)
		return
	}
	o.publish(base, &comms.Message{
		Type:    comms.TypeTaskStarted,
		From:    deskID,
		Subject: fmt.Sprintf("Task started: %s", t.Title),
		Payload: map[string]string{"task_id": taskID, "desk": deskID},
	})

	res, execErr := o.executor.Execute(execCtx, d, t)

	done := time.Now().UTC()
	t.CompletedAt = &done
	if execErr != nil {
		t.Status = task.StatusFailed
		t.Error = execErr.Error()
		o.logger.Warn("task failed", "task", taskID, "desk", deskID, "error", execErr)
	} else {
		t.Status = task.StatusCompleted
		t.Result = res.Output
		t.Artifacts = append(t.Artifacts, res.Artifacts...)
		t.Usage.InputTokens += res.Usage.InputTokens
		t.Usage.OutputTokens += res.Usage.OutputTokens
	}
	if err := o.tasks.Update(base, t); err != nil {
		o.logger.Error("store task outcome", "task", taskID, "status", t.Status, "error", err)
		return
	}

	if execErr != nil {
		o.publish(base, &comms.Message{
			Type:    comms.TypeTaskFailed,
			From:    deskID,
			Subject: fmt.Sprintf("Task failed: %s", t.Title),
			Body:    t.Error,
			Payload: map[string]string{"task_id": taskID, "desk": deskID},
		})
		return
	}
	o.publish(base, &comms.Message{
		Type:    comms.TypeTaskCompleted,
		From:    deskID,
		Subject: fmt.Sprintf("Task completed: %s", t.Title),
		Body:    t.Result,
		Payload: map[string]string{"task_id": taskID, "desk": deskID},
	})
}
