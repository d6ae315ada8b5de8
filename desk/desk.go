// Package desk defines the agent desk model, the organization registry, and
// the delegation authorization rule.
package desk

import (
	"errors"
	"time"
)

// Sentinel errors for registry operations.
var (
	ErrNotFound      = errors.New("desk not found")
	ErrDuplicate     = errors.New("desk already registered")
	ErrCycleDetected = errors.New("cycle in reports_to chain")
	ErrTeamNotFound  = errors.New("team not found")
	ErrDuplicateTeam = errors.New("team already registered")
)

// Status represents the lifecycle state of a desk.
type Status string

const (
	StatusActive  Status = "active"
	StatusIdle    Status = "idle"
	StatusBusy    Status = "busy"
	StatusOffline Status = "offline"
)

// Role is the business role an agent desk plays in the organization.
type Role string

const (
	RoleExecutive       Role = "executive"
	RoleManager         Role = "manager"
	RoleSeniorEngineer  Role = "senior_engineer"
	RoleEngineer        Role = "engineer"
	RoleJuniorEngineer  Role = "junior_engineer"
	RoleQAEngineer      Role = "qa_engineer"
	RoleSecurityAnalyst Role = "security_analyst"
	RoleResearcher      Role = "researcher"
)

// Exchange is one entry in a desk's conversation history.
type Exchange struct {
	From    string    `json:"from"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Memory is the mutable working memory attached to a desk.
type Memory struct {
	History   []Exchange        `json:"history,omitempty"`
	Learnings []string          `json:"learnings,omitempty"`
	Context   map[string]string `json:"context,omitempty"`
}

func (m Memory) clone() Memory {
	cp := Memory{}
	if m.History != nil {
		cp.History = append([]Exchange(nil), m.History...)
	}
	if m.Learnings != nil {
		cp.Learnings = append([]string(nil), m.Learnings...)
	}
	if m.Context != nil {
		cp.Context = make(map[string]string, len(m.Context))
		for k, v := range m.Context {
			cp.Context[k] = v
		}
	}
	return cp
}

// Desk is a named position in the org chart, representing one simulated
// agent.
//
// Level is caller-supplied and not derived from the reports_to chain; the
// registry does not verify the two are consistent.
type Desk struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Role         Role      `json:"role"`
	Capabilities []string  `json:"capabilities,omitempty"`
	Level        int       `json:"hierarchy_level"`
	ReportsTo    string    `json:"reports_to,omitempty"`
	TeamID       string    `json:"team_id,omitempty"`
	Status       Status    `json:"status"`
	CurrentTask  string    `json:"current_task,omitempty"`
	Memory       Memory    `json:"memory"`
	CreatedAt    time.Time `json:"created_at"`
}

// Clone returns a deep copy so callers can mutate freely.
func (d *Desk) Clone() *Desk {
	cp := *d
	if d.Capabilities != nil {
		cp.Capabilities = append([]string(nil), d.Capabilities...)
	}
	cp.Memory = d.Memory.clone()
	return &cp
}

// Team is a named grouping of desks. Membership is derived from each desk's
// TeamID; the team record itself only carries identity and an optional lead.
type Team struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Lead      string    `json:"lead,omitempty"` // desk ID
	CreatedAt time.Time `json:"created_at"`
}
