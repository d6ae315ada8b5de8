package desk

import (
	"fmt"
	"time"
)

// AddTeam registers a team record. The optional lead must already be a
// registered desk.
func (r *Registry) AddTeam(t *Team) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("team ID required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.teams[t.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTeam, t.ID)
	}
	if t.Lead != "" {
		if _, ok := r.desks[t.Lead]; !ok {
			return fmt.Errorf("team %s lead %q: %w", t.ID, t.Lead, ErrNotFound)
		}
	}

	cp := *t
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	r.teams[cp.ID] = &cp
	r.teamOrder = append(r.teamOrder, cp.ID)
	t.CreatedAt = cp.CreatedAt
	return nil
}

// Team retrieves a team record by ID.
func (r *Registry) Team(id string) (*Team, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.teams[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTeamNotFound, id)
	}
	cp := *t
	return &cp, nil
}

// Teams returns all team records in registration order.
func (r *Registry) Teams() []*Team {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Team, 0, len(r.teamOrder))
	for _, id := range r.teamOrder {
		cp := *r.teams[id]
		out = append(out, &cp)
	}
	return out
}

// TeamDesks returns the desks carrying the given team ID, in registration
// order.
func (r *Registry) TeamDesks(teamID string) []*Desk {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Desk
	for _, id := range r.order {
		d := r.desks[id]
		if d.TeamID == teamID {
			out = append(out, d.Clone())
		}
	}
	return out
}
