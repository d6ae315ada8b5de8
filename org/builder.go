package org

import (
	"fmt"

	"github.com/GoCodeAlone/agentdesk/config"
	"github.com/GoCodeAlone/agentdesk/desk"
	"github.com/GoCodeAlone/agentdesk/exec"
	"github.com/GoCodeAlone/agentdesk/task"
)

// FromConfig builds an Organization from the configuration. Stores, bus,
// audit log, and logger come pre-set on deps; the org definition, routing
// rules, and executor tuning come from cfg. A non-nil deps.Registry (for
// example a loaded snapshot) takes precedence over the configured desks.
func FromConfig(cfg *config.Config, deps Config) (*Organization, error) {
	deps.Name = cfg.Org.Name

	if deps.Registry == nil {
		r, err := BuildRegistry(cfg.Org)
		if err != nil {
			return nil, err
		}
		deps.Registry = r
	}

	if deps.Executor == nil {
		minDelay, maxDelay, err := cfg.Exec.Delays()
		if err != nil {
			return nil, err
		}
		deps.Executor = exec.NewSimulator(minDelay, maxDelay, cfg.Exec.FailureRate)
	}

	timeout, err := cfg.Exec.TaskTimeout()
	if err != nil {
		return nil, err
	}
	deps.Timeout = timeout

	rules, err := buildRules(cfg.Org.Routing)
	if err != nil {
		return nil, err
	}
	deps.Rules = rules
	deps.DefaultAssignee = cfg.Org.DefaultAssignee

	return New(deps), nil
}

// BuildRegistry constructs a registry from the configured desks and teams.
// Desks are inserted parents first; config order is preserved among desks
// whose parents are already in.
func BuildRegistry(oc config.OrgConfig) (*desk.Registry, error) {
	r := desk.NewRegistry()

	pending := make([]config.DeskConfig, len(oc.Desks))
	copy(pending, oc.Desks)
	added := make(map[string]bool, len(pending))
	for len(pending) > 0 {
		var next []config.DeskConfig
		for _, dc := range pending {
			if dc.ReportsTo != "" && !added[dc.ReportsTo] {
				next = append(next, dc)
				continue
			}
			if err := r.Add(deskFromConfig(dc)); err != nil {
				return nil, fmt.Errorf("add desk %s: %w", dc.ID, err)
			}
			added[dc.ID] = true
		}
		if len(next) == len(pending) {
			return nil, fmt.Errorf("unresolvable reports_to chain among %d desks", len(next))
		}
		pending = next
	}

	for _, tc := range oc.Teams {
		if err := r.AddTeam(&desk.Team{ID: tc.ID, Name: tc.Name, Lead: tc.Lead}); err != nil {
			return nil, fmt.Errorf("add team %s: %w", tc.ID, err)
		}
	}
	return r, nil
}

func deskFromConfig(dc config.DeskConfig) *desk.Desk {
	return &desk.Desk{
		ID:           dc.ID,
		Title:        dc.Title,
		Role:         desk.Role(dc.Role),
		Capabilities: dc.Capabilities,
		Level:        dc.Level,
		ReportsTo:    dc.ReportsTo,
		TeamID:       dc.TeamID,
	}
}

func buildRules(rcs []config.RuleConfig) ([]Rule, error) {
	var rules []Rule
	for i, rc := range rcs {
		rule := Rule{Keyword: rc.Keyword, Assignee: rc.Assignee}
		if rc.Priority != "" {
			p, err := task.ParsePriority(rc.Priority)
			if err != nil {
				return nil, fmt.Errorf("routing rule %d: %w", i, err)
			}
			rule.Priority = p
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
