package org

import (
	"strings"
	"testing"

	"github.com/GoCodeAlone/agentdesk/config"
	"github.com/GoCodeAlone/agentdesk/task"
)

func TestBuildRegistry_ChildBeforeParent(t *testing.T) {
	oc := config.OrgConfig{
		Desks: []config.DeskConfig{
			// Listed child-first on purpose.
			{ID: "dev-001", Title: "Developer", Role: "engineer", Level: 2, ReportsTo: "cto-001"},
			{ID: "cto-001", Title: "CTO", Role: "executive", Level: 1},
			{ID: "jr-001", Title: "Junior", Role: "junior_engineer", Level: 3, ReportsTo: "dev-001"},
		},
	}
	r, err := BuildRegistry(oc)
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}
	if got := len(r.List()); got != 3 {
		t.Fatalf("registry has %d desks, want 3", got)
	}

	chain, err := r.HierarchyChain("jr-001")
	if err != nil {
		t.Fatalf("HierarchyChain: %v", err)
	}
	if len(chain) != 3 || chain[2].ID != "cto-001" {
		t.Errorf("chain has %d desks ending at %s, want 3 ending at cto-001", len(chain), chain[len(chain)-1].ID)
	}
}

func TestBuildRegistry_UnresolvableParent(t *testing.T) {
	oc := config.OrgConfig{
		Desks: []config.DeskConfig{
			{ID: "a-001", Title: "A", ReportsTo: "b-001"},
			{ID: "b-001", Title: "B", ReportsTo: "a-001"},
		},
	}
	if _, err := BuildRegistry(oc); err == nil || !strings.Contains(err.Error(), "unresolvable") {
		t.Errorf("BuildRegistry = %v, want unresolvable chain error", err)
	}
}

func TestBuildRegistry_Teams(t *testing.T) {
	oc := config.OrgConfig{
		Desks: []config.DeskConfig{
			{ID: "cto-001", Title: "CTO", Level: 1},
			{ID: "dev-001", Title: "Developer", Level: 2, ReportsTo: "cto-001", TeamID: "backend-team"},
		},
		Teams: []config.TeamConfig{{ID: "backend-team", Name: "Backend", Lead: "dev-001"}},
	}
	r, err := BuildRegistry(oc)
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}
	team, err := r.Team("backend-team")
	if err != nil {
		t.Fatalf("Team: %v", err)
	}
	if team.Lead != "dev-001" {
		t.Errorf("Lead = %q", team.Lead)
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Exec.MinDelay = "0s"
	cfg.Exec.MaxDelay = "0s"
	cfg.Exec.FailureRate = 0
	cfg.Org.Routing = []config.RuleConfig{{Priority: "high", Keyword: "bug", Assignee: "dev-001"}}

	o, err := FromConfig(cfg, Config{})
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if o.Name() != "agentdesk" {
		t.Errorf("Name = %q", o.Name())
	}
	if got := len(o.Registry().List()); got != 3 {
		t.Errorf("registry has %d desks, want 3", got)
	}
	if len(o.rules) != 1 || o.rules[0].Priority != task.PriorityHigh {
		t.Errorf("rules = %+v", o.rules)
	}
}

func TestFromConfig_BadRulePriority(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Org.Routing = []config.RuleConfig{{Priority: "urgent", Assignee: "dev-001"}}

	if _, err := FromConfig(cfg, Config{}); err == nil {
		t.Fatal("FromConfig accepted an unknown priority name")
	}
}
