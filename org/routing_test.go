package org

import (
	"errors"
	"testing"

	"github.com/GoCodeAlone/agentdesk/desk"
	"github.com/GoCodeAlone/agentdesk/task"
)

func TestRoute_RuleByKeyword(t *testing.T) {
	o := New(Config{
		Registry: testRegistry(t),
		Rules: []Rule{
			{Keyword: "security", Assignee: "qa-001"},
			{Keyword: "deploy", Assignee: "dev-001"},
		},
	})

	got, err := o.Route(&task.Task{Title: "Security review of auth flow"})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if got != "qa-001" {
		t.Errorf("Route = %s, want qa-001", got)
	}

	got, err = o.Route(&task.Task{Title: "Fix CI", Description: "deploy pipeline broken"})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if got != "dev-001" {
		t.Errorf("Route = %s, want dev-001 (keyword in description)", got)
	}
}

func TestRoute_RuleByPriority(t *testing.T) {
	o := New(Config{
		Registry: testRegistry(t),
		Rules:    []Rule{{Priority: task.PriorityHigh, Assignee: "dev-001"}},
	})

	got, err := o.Route(&task.Task{Title: "Anything", Priority: task.PriorityHigh})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if got != "dev-001" {
		t.Errorf("Route = %s, want dev-001", got)
	}
}

func TestRoute_FirstMatchingRuleWins(t *testing.T) {
	o := New(Config{
		Registry: testRegistry(t),
		Rules: []Rule{
			{Keyword: "bug", Assignee: "dev-001"},
			{Keyword: "bug", Assignee: "qa-001"},
		},
	})
	got, err := o.Route(&task.Task{Title: "bug in parser"})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if got != "dev-001" {
		t.Errorf("Route = %s, want the first rule's assignee", got)
	}
}

func TestRoute_RuleWithUnknownDeskSkipped(t *testing.T) {
	o := New(Config{
		Registry: testRegistry(t),
		Rules:    []Rule{{Keyword: "bug", Assignee: "ghost-001"}},
	})
	got, err := o.Route(&task.Task{Title: "bug report", Priority: task.PriorityCritical})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if got != "cto-001" {
		t.Errorf("Route = %s, want fall-through to the critical path", got)
	}
}

func TestRoute_CriticalEscalatesToRoot(t *testing.T) {
	o := New(Config{Registry: testRegistry(t)})
	got, err := o.Route(&task.Task{Title: "Outage", Priority: task.PriorityCritical})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if got != "cto-001" {
		t.Errorf("Route = %s, want cto-001", got)
	}
}

func TestRoute_DefaultAssignee(t *testing.T) {
	o := New(Config{Registry: testRegistry(t), DefaultAssignee: "qa-001"})
	got, err := o.Route(&task.Task{Title: "Routine chore"})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if got != "qa-001" {
		t.Errorf("Route = %s, want the default assignee", got)
	}
}

func TestRoute_PrefersIdleSubordinate(t *testing.T) {
	r := testRegistry(t)
	if err := r.SetStatus("qa-001", desk.StatusIdle); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	o := New(Config{Registry: r})

	got, err := o.Route(&task.Task{Title: "Routine chore"})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if got != "qa-001" {
		t.Errorf("Route = %s, want the idle subordinate", got)
	}
}

func TestRoute_FallsBackToFirstSubordinate(t *testing.T) {
	o := New(Config{Registry: testRegistry(t)})
	got, err := o.Route(&task.Task{Title: "Routine chore"})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if got != "dev-001" {
		t.Errorf("Route = %s, want the first subordinate", got)
	}
}

func TestRoute_SingleDeskOrganization(t *testing.T) {
	r := desk.NewRegistry()
	if err := r.Add(&desk.Desk{ID: "solo-001", Title: "Founder", Role: desk.RoleExecutive, Level: 1}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	o := New(Config{Registry: r})

	got, err := o.Route(&task.Task{Title: "Everything"})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if got != "solo-001" {
		t.Errorf("Route = %s, want the only desk", got)
	}
}

func TestRoute_EmptyOrganization(t *testing.T) {
	o := New(Config{})
	if _, err := o.Route(&task.Task{Title: "Anything"}); !errors.Is(err, ErrNoRoute) {
		t.Errorf("Route = %v, want ErrNoRoute", err)
	}
}
