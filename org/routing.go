package org

import (
	"errors"
	"fmt"
	"strings"

	"github.com/GoCodeAlone/agentdesk/desk"
	"github.com/GoCodeAlone/agentdesk/task"
)

// ErrNoRoute is returned when no desk can take a task.
var ErrNoRoute = errors.New("no route for task")

// Rule routes matching tasks to a fixed assignee. A zero Priority matches
// any priority; an empty Keyword matches any text; a rule with neither set
// is a catch-all.
type Rule struct {
	Priority task.Priority
	Keyword  string // case-insensitive, matched against title and description
	Assignee string
}

func (r Rule) matches(t *task.Task) bool {
	if r.Priority != 0 && t.Priority != r.Priority {
		return false
	}
	if r.Keyword != "" {
		hay := strings.ToLower(t.Title + " " + t.Description)
		if !strings.Contains(hay, strings.ToLower(r.Keyword)) {
			return false
		}
	}
	return true
}

// Route picks the desk a new task should go to. Routing rules win in config
// order; critical tasks escalate to the first top-level desk; everything
// else goes to the default assignee or down the availability cascade (idle
// subordinate, any subordinate, the top-level desk itself).
func (o *Organization) Route(t *task.Task) (string, error) {
	for _, r := range o.rules {
		if !r.matches(t) {
			continue
		}
		if _, err := o.registry.Get(r.Assignee); err != nil {
			o.logger.Warn("routing rule names unknown desk", "assignee", r.Assignee)
			continue
		}
		return r.Assignee, nil
	}

	root := o.firstRoot()
	if root == nil {
		return "", fmt.Errorf("%w: organization has no desks", ErrNoRoute)
	}

	if t.Priority == task.PriorityCritical {
		return root.ID, nil
	}

	if o.defaultAssignee != "" {
		if _, err := o.registry.Get(o.defaultAssignee); err == nil {
			return o.defaultAssignee, nil
		}
		o.logger.Warn("default assignee not registered", "assignee", o.defaultAssignee)
	}

	subs := o.registry.Subordinates(root.ID)
	for _, d := range subs {
		if d.Status == desk.StatusIdle {
			return d.ID, nil
		}
	}
	if len(subs) > 0 {
		return subs[0].ID, nil
	}
	return root.ID, nil
}

// firstRoot returns the first desk with no manager, in insertion order.
func (o *Organization) firstRoot() *desk.Desk {
	for _, d := range o.registry.List() {
		if d.ReportsTo == "" {
			return d
		}
	}
	return nil
}
