package desk

import (
	"fmt"
	"sync"
	"time"
)

// Registry is the in-memory source of truth for one organization's desks and
// teams. All methods are safe for concurrent use; desk mutation is serialized
// by the registry lock so status and current-task writes never interleave.
//
// Desks are returned as copies. Nothing outside the registry holds a pointer
// into it.
type Registry struct {
	mu        sync.RWMutex
	desks     map[string]*Desk
	order     []string
	teams     map[string]*Team
	teamOrder []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		desks: make(map[string]*Desk),
		teams: make(map[string]*Team),
	}
}

// Add inserts a desk keyed by its identifier. Re-registering an existing
// identifier fails with ErrDuplicate rather than overwriting. A reports_to
// reference must name a desk already present.
func (r *Registry) Add(d *Desk) error {
	if d == nil || d.ID == "" {
		return fmt.Errorf("desk ID required")
	}
	if d.Level < 0 {
		return fmt.Errorf("desk %s: negative hierarchy level", d.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.desks[d.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, d.ID)
	}
	if d.ReportsTo != "" {
		if _, ok := r.desks[d.ReportsTo]; !ok {
			return fmt.Errorf("desk %s reports_to %q: %w", d.ID, d.ReportsTo, ErrNotFound)
		}
	}

	cp := d.Clone()
	if cp.Status == "" {
		cp.Status = StatusActive
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	r.desks[cp.ID] = cp
	r.order = append(r.order, cp.ID)

	// Reflect defaults back to the caller's copy.
	d.Status = cp.Status
	d.CreatedAt = cp.CreatedAt
	return nil
}

// Get retrieves a copy of a desk by ID.
func (r *Registry) Get(id string) (*Desk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.desks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return d.Clone(), nil
}

// List returns all desks in registration order.
func (r *Registry) List() []*Desk {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Desk, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.desks[id].Clone())
	}
	return out
}

// Subordinates returns the desks reporting directly to the given desk, in
// registration order. An unknown ID yields an empty list, matching lookup
// semantics for a desk with no reports.
func (r *Registry) Subordinates(id string) []*Desk {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Desk
	for _, did := range r.order {
		d := r.desks[did]
		if d.ReportsTo == id {
			out = append(out, d.Clone())
		}
	}
	return out
}

// HierarchyChain returns the desks from the named desk up to the root,
// child first, following reports_to links. The walk keeps a visited set and
// fails with ErrCycleDetected if it would revisit a desk.
func (r *Registry) HierarchyChain(id string) ([]*Desk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	start, ok := r.desks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	var chain []*Desk
	visited := make(map[string]bool)
	for cur := start; cur != nil; {
		if visited[cur.ID] {
			return nil, fmt.Errorf("%w: revisited %s", ErrCycleDetected, cur.ID)
		}
		visited[cur.ID] = true
		chain = append(chain, cur.Clone())
		if cur.ReportsTo == "" {
			break
		}
		cur = r.desks[cur.ReportsTo]
	}
	return chain, nil
}

// OrgNode is one desk in the org-chart projection.
type OrgNode struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Role     Role       `json:"role"`
	Level    int        `json:"hierarchy_level"`
	TeamID   string     `json:"team_id,omitempty"`
	Status   Status     `json:"status"`
	Children []*OrgNode `json:"children,omitempty"`
}

// OrgChart builds the tree projection of the whole registry iteratively.
// Roots are desks with no reports_to; desks only reachable through a cycle
// are appended as detached roots instead of being traversed forever.
func (r *Registry) OrgChart() []*OrgNode {
	r.mu.RLock()
	defer r.mu.RUnlock()

	children := make(map[string][]string)
	var roots []string
	for _, id := range r.order {
		d := r.desks[id]
		if d.ReportsTo == "" {
			roots = append(roots, id)
			continue
		}
		children[d.ReportsTo] = append(children[d.ReportsTo], id)
	}

	nodes := make(map[string]*OrgNode, len(r.desks))
	visited := make(map[string]bool)
	var out []*OrgNode

	attach := func(rootID string) *OrgNode {
		root := r.nodeFor(rootID, nodes)
		visited[rootID] = true
		stack := []string{rootID}
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, childID := range children[id] {
				if visited[childID] {
					continue
				}
				visited[childID] = true
				child := r.nodeFor(childID, nodes)
				nodes[id].Children = append(nodes[id].Children, child)
				stack = append(stack, childID)
			}
		}
		return root
	}

	for _, id := range roots {
		out = append(out, attach(id))
	}
	// Anything left unvisited sits on a reports_to cycle. Surface each such
	// desk once rather than looping.
	for _, id := range r.order {
		if !visited[id] {
			out = append(out, attach(id))
		}
	}
	return out
}

func (r *Registry) nodeFor(id string, nodes map[string]*OrgNode) *OrgNode {
	if n, ok := nodes[id]; ok {
		return n
	}
	d := r.desks[id]
	n := &OrgNode{
		ID:     d.ID,
		Title:  d.Title,
		Role:   d.Role,
		Level:  d.Level,
		TeamID: d.TeamID,
		Status: d.Status,
	}
	nodes[id] = n
	return n
}

// SetBusy marks a desk busy on the given task.
func (r *Registry) SetBusy(id, taskID string) error {
	return r.mutate(id, func(d *Desk) {
		d.Status = StatusBusy
		d.CurrentTask = taskID
	})
}

// SetIdle reverts a desk to idle and clears its current task.
func (r *Registry) SetIdle(id string) error {
	return r.mutate(id, func(d *Desk) {
		d.Status = StatusIdle
		d.CurrentTask = ""
	})
}

// SetStatus sets an explicit lifecycle status without touching the current
// task reference.
func (r *Registry) SetStatus(id string, st Status) error {
	return r.mutate(id, func(d *Desk) {
		d.Status = st
	})
}

// AppendHistory records a conversation exchange in the desk's memory.
func (r *Registry) AppendHistory(id string, ex Exchange) error {
	if ex.At.IsZero() {
		ex.At = time.Now().UTC()
	}
	return r.mutate(id, func(d *Desk) {
		d.Memory.History = append(d.Memory.History, ex)
	})
}

// AddLearning records a learning in the desk's memory.
func (r *Registry) AddLearning(id, note string) error {
	return r.mutate(id, func(d *Desk) {
		d.Memory.Learnings = append(d.Memory.Learnings, note)
	})
}

// SetContext sets one key of the desk's free-form memory context.
func (r *Registry) SetContext(id, key, value string) error {
	return r.mutate(id, func(d *Desk) {
		if d.Memory.Context == nil {
			d.Memory.Context = make(map[string]string)
		}
		d.Memory.Context[key] = value
	})
}

func (r *Registry) mutate(id string, fn func(*Desk)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.desks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	fn(d)
	return nil
}
