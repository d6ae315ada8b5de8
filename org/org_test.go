package org

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/GoCodeAlone/agentdesk/audit"
	"github.com/GoCodeAlone/agentdesk/desk"
	"github.com/GoCodeAlone/agentdesk/exec"
	"github.com/GoCodeAlone/agentdesk/task"
)

// testRegistry builds the standard three-desk org: an executive with a
// developer and a QA engineer on different teams.
func testRegistry(t *testing.T) *desk.Registry {
	t.Helper()
	r := desk.NewRegistry()
	desks := []*desk.Desk{
		{ID: "cto-001", Title: "CTO", Role: desk.RoleExecutive, Level: 1},
		{ID: "dev-001", Title: "Senior Developer", Role: desk.RoleSeniorEngineer, Level: 2, ReportsTo: "cto-001", TeamID: "backend-team"},
		{ID: "qa-001", Title: "QA Engineer", Role: desk.RoleQAEngineer, Level: 2, ReportsTo: "cto-001", TeamID: "qa-team"},
	}
	for _, d := range desks {
		if err := r.Add(d); err != nil {
			t.Fatalf("Add(%s): %v", d.ID, err)
		}
	}
	return r
}

func newTestOrg(t *testing.T, executor exec.Executor) *Organization {
	t.Helper()
	o := New(Config{
		Name:     "test-org",
		Registry: testRegistry(t),
		Executor: executor,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		o.Shutdown(ctx)
	})
	return o
}

func createTask(t *testing.T, o *Organization, tk *task.Task) string {
	t.Helper()
	id, err := o.Create(context.Background(), tk)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return id
}

// waitForStatus polls the store until the task reaches want.
func waitForStatus(t *testing.T, o *Organization, id string, want task.Status) *task.Task {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		got, err := o.Tasks().Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get %s: %v", id, err)
		}
		if got.Status == want {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s never reached %s", id, want)
	return nil
}

func TestDelegate_DirectReport(t *testing.T) {
	o := newTestOrg(t, nil)
	ctx := context.Background()

	id := createTask(t, o, &task.Task{Title: "Ship feature", CreatedBy: "cto-001"})
	ok, err := o.Delegate(ctx, id, "cto-001", "dev-001")
	if err != nil {
		t.Fatalf("Delegate: %v", err)
	}
	if !ok {
		t.Fatal("Delegate denied a direct-report handoff")
	}

	got, err := o.Tasks().Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.AssignedTo != "dev-001" {
		t.Errorf("AssignedTo = %q, want dev-001", got.AssignedTo)
	}

	waitForStatus(t, o, id, task.StatusCompleted)
}

func TestDelegate_CrossTeamDenied(t *testing.T) {
	o := newTestOrg(t, nil)
	ctx := context.Background()

	id := createTask(t, o, &task.Task{Title: "Review tests", CreatedBy: "qa-001"})
	ok, err := o.Delegate(ctx, id, "qa-001", "dev-001")
	if err != nil {
		t.Fatalf("Delegate returned error for a denial: %v", err)
	}
	if ok {
		t.Fatal("cross-team delegation was authorized")
	}

	// Denial leaves the task untouched.
	got, err := o.Tasks().Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.AssignedTo != "" {
		t.Errorf("AssignedTo = %q after denial, want empty", got.AssignedTo)
	}
	if got.Status != task.StatusPending {
		t.Errorf("Status = %s after denial, want pending", got.Status)
	}
}

func TestDelegate_AssigneeVisibleBeforeProcessing(t *testing.T) {
	gate := make(chan struct{})
	executor := exec.Func(func(ctx context.Context, _ *desk.Desk, _ *task.Task) (*exec.Result, error) {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return &exec.Result{Output: "done"}, nil
	})
	o := newTestOrg(t, executor)
	ctx := context.Background()

	id := createTask(t, o, &task.Task{Title: "Slow work"})
	ok, err := o.Delegate(ctx, id, "cto-001", "dev-001")
	if err != nil || !ok {
		t.Fatalf("Delegate = (%v, %v)", ok, err)
	}

	// The executor is still gated, so the assignment must already be stored.
	got, err := o.Tasks().Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.AssignedTo != "dev-001" {
		t.Errorf("AssignedTo = %q before processing finished, want dev-001", got.AssignedTo)
	}
	if got.Status.Terminal() {
		t.Errorf("Status = %s while executor gated", got.Status)
	}

	close(gate)
	waitForStatus(t, o, id, task.StatusCompleted)
}

func TestDelegate_UnknownDesk(t *testing.T) {
	o := newTestOrg(t, nil)
	ctx := context.Background()
	id := createTask(t, o, &task.Task{Title: "Orphan work"})

	if _, err := o.Delegate(ctx, id, "ghost-001", "dev-001"); !errors.Is(err, desk.ErrNotFound) {
		t.Errorf("unknown from desk: err = %v, want desk.ErrNotFound", err)
	}
	if _, err := o.Delegate(ctx, id, "cto-001", "ghost-001"); !errors.Is(err, desk.ErrNotFound) {
		t.Errorf("unknown to desk: err = %v, want desk.ErrNotFound", err)
	}
}

func TestDelegate_UnknownTask(t *testing.T) {
	o := newTestOrg(t, nil)
	if _, err := o.Delegate(context.Background(), "task_9999", "cto-001", "dev-001"); !errors.Is(err, task.ErrNotFound) {
		t.Errorf("err = %v, want task.ErrNotFound", err)
	}
}

func TestDelegate_TerminalTask(t *testing.T) {
	o := newTestOrg(t, nil)
	ctx := context.Background()

	id := createTask(t, o, &task.Task{Title: "Finished work"})
	done, err := o.Tasks().Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	done.Status = task.StatusCompleted
	if err := o.Tasks().Update(ctx, done); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if _, err := o.Delegate(ctx, id, "cto-001", "dev-001"); !errors.Is(err, ErrTaskTerminal) {
		t.Errorf("Delegate on completed task: err = %v, want ErrTaskTerminal", err)
	}
	if err := o.Assign(ctx, id, "dev-001"); !errors.Is(err, ErrTaskTerminal) {
		t.Errorf("Assign on completed task: err = %v, want ErrTaskTerminal", err)
	}
}

func TestDelegate_Audited(t *testing.T) {
	o := newTestOrg(t, nil)
	ctx := context.Background()

	okID := createTask(t, o, &task.Task{Title: "Allowed work"})
	deniedID := createTask(t, o, &task.Task{Title: "Blocked work"})

	if ok, err := o.Delegate(ctx, okID, "cto-001", "dev-001"); err != nil || !ok {
		t.Fatalf("authorized Delegate = (%v, %v)", ok, err)
	}
	if ok, err := o.Delegate(ctx, deniedID, "qa-001", "dev-001"); err != nil || ok {
		t.Fatalf("denied Delegate = (%v, %v)", ok, err)
	}

	entries, err := o.Audit().List(ctx, audit.Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("audit has %d entries, want 2", len(entries))
	}
	first, second := entries[0], entries[1]
	if !first.Authorized || first.Reason != "direct report" || first.Actor != "cto-001" {
		t.Errorf("authorized entry = %+v", first)
	}
	if second.Authorized || second.Reason != "not authorized" {
		t.Errorf("denied entry = %+v", second)
	}
	waitForStatus(t, o, okID, task.StatusCompleted)
}

func TestAssign_OperatorPath(t *testing.T) {
	o := newTestOrg(t, nil)
	ctx := context.Background()

	id := createTask(t, o, &task.Task{Title: "Routed work"})
	if err := o.Assign(ctx, id, "qa-001"); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	got := waitForStatus(t, o, id, task.StatusCompleted)
	if got.AssignedTo != "qa-001" {
		t.Errorf("AssignedTo = %q, want qa-001", got.AssignedTo)
	}

	entries, err := o.Audit().List(ctx, audit.Filter{Actor: "api"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("api audit entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Action != audit.ActionAssign || !e.Authorized || e.FromDesk != "" || e.ToDesk != "qa-001" {
		t.Errorf("operator entry = %+v", e)
	}
}

func TestAssign_UnknownDesk(t *testing.T) {
	o := newTestOrg(t, nil)
	ctx := context.Background()
	id := createTask(t, o, &task.Task{Title: "Nowhere work"})

	if err := o.Assign(ctx, id, "ghost-001"); !errors.Is(err, desk.ErrNotFound) {
		t.Errorf("err = %v, want desk.ErrNotFound", err)
	}
}

func TestNew_Defaults(t *testing.T) {
	o := New(Config{})
	if o.Name() != "agentdesk" {
		t.Errorf("Name = %q", o.Name())
	}
	if o.Registry() == nil || o.Tasks() == nil || o.Bus() == nil || o.Audit() == nil || o.Pool() == nil {
		t.Error("New left collaborators nil")
	}
}
