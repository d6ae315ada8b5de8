package exec

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/GoCodeAlone/agentdesk/desk"
	"github.com/GoCodeAlone/agentdesk/task"
)

func testDeskAndTask() (*desk.Desk, *task.Task) {
	d := &desk.Desk{ID: "dev-001", Title: "Senior Developer", Role: desk.RoleSeniorEngineer}
	tk := &task.Task{ID: "task_0001", Title: "Fix login bug", Description: "Session cookie expires too early"}
	return d, tk
}

func TestFunc_Execute(t *testing.T) {
	called := false
	f := Func(func(_ context.Context, d *desk.Desk, tk *task.Task) (*Result, error) {
		called = true
		return &Result{Output: d.ID + " did " + tk.ID}, nil
	})

	if f.Name() != "func" {
		t.Errorf("Name() = %q, want %q", f.Name(), "func")
	}

	d, tk := testDeskAndTask()
	res, err := f.Execute(context.Background(), d, tk)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !called {
		t.Error("wrapped function not invoked")
	}
	if res.Output != "dev-001 did task_0001" {
		t.Errorf("Output = %q", res.Output)
	}
}

func TestSimulator_Success(t *testing.T) {
	s := NewSimulator(0, 0, 0)
	if s.Name() != "simulator" {
		t.Errorf("Name() = %q, want %q", s.Name(), "simulator")
	}

	d, tk := testDeskAndTask()
	res, err := s.Execute(context.Background(), d, tk)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(res.Output, tk.Title) {
		t.Errorf("Output = %q, want it to mention %q", res.Output, tk.Title)
	}
	if len(res.Artifacts) != 1 {
		t.Fatalf("got %d artifacts, want 1", len(res.Artifacts))
	}
	a := res.Artifacts[0]
	if a.Type != "summary" || a.TaskID != tk.ID || a.ID == "" {
		t.Errorf("artifact = %+v", a)
	}
	if res.Usage.OutputTokens == 0 {
		t.Error("Usage.OutputTokens = 0, want > 0")
	}
}

func TestSimulator_AlwaysFails(t *testing.T) {
	s := NewSimulator(0, 0, 1.0)
	d, tk := testDeskAndTask()
	for i := 0; i < 5; i++ {
		if _, err := s.Execute(context.Background(), d, tk); err == nil {
			t.Fatalf("run %d succeeded with failure rate 1.0", i)
		}
	}
}

func TestSimulator_ContextCancelled(t *testing.T) {
	s := NewSimulator(5*time.Second, 5*time.Second, 0)
	ctx, cancel := context.WithCancel(context.Background())

	d, tk := testDeskAndTask()
	done := make(chan error, 1)
	go func() {
		_, err := s.Execute(ctx, d, tk)
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Execute() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Execute() did not return after cancellation")
	}
}

func TestSimulator_DelayBounds(t *testing.T) {
	s := NewSimulator(20*time.Millisecond, 40*time.Millisecond, 0)
	d, tk := testDeskAndTask()

	start := time.Now()
	if _, err := s.Execute(context.Background(), d, tk); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("finished in %v, want at least the minimum delay", elapsed)
	}
}

func TestNewSimulator_SwappedBounds(t *testing.T) {
	s := NewSimulator(30*time.Millisecond, 10*time.Millisecond, 0)
	if s.MaxDelay != s.MinDelay {
		t.Errorf("MaxDelay = %v, want clamped to MinDelay %v", s.MaxDelay, s.MinDelay)
	}
}
