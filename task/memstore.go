package task

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemStore is an in-memory Store. It preserves creation order for List and
// issues zero-padded sequential identifiers under a lock, so concurrent
// creators can never collide.
type MemStore struct {
	mu    sync.RWMutex
	seq   int
	tasks map[string]*Task
	order []string
}

// NewMemStore returns an empty in-memory task store.
func NewMemStore() *MemStore {
	return &MemStore{tasks: make(map[string]*Task)}
}

// Create persists a new task. An empty ID is replaced with the next
// sequential identifier (task_0001, task_0002, ...).
func (s *MemStore) Create(_ context.Context, t *Task) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		s.seq++
		t.ID = fmt.Sprintf("task_%04d", s.seq)
	}
	if _, exists := s.tasks[t.ID]; exists {
		return "", fmt.Errorf("task %s already exists", t.ID)
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	if t.Priority == 0 {
		t.Priority = PriorityMedium
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	s.tasks[t.ID] = t.Clone()
	s.order = append(s.order, t.ID)
	return t.ID, nil
}

// Get retrieves a copy of a task by ID.
func (s *MemStore) Get(_ context.Context, id string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t.Clone(), nil
}

// Update saves changes to an existing task.
func (s *MemStore) Update(_ context.Context, t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[t.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, t.ID)
	}
	t.UpdatedAt = time.Now().UTC()
	s.tasks[t.ID] = t.Clone()
	return nil
}

// List returns tasks matching the filter, in creation order.
func (s *MemStore) List(_ context.Context, filter Filter) ([]*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Task
	skipped := 0
	for _, id := range s.order {
		t := s.tasks[id]
		if !matches(t, filter) {
			continue
		}
		if filter.Offset > 0 && skipped < filter.Offset {
			skipped++
			continue
		}
		out = append(out, t.Clone())
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func matches(t *Task, f Filter) bool {
	if f.Status != nil && t.Status != *f.Status {
		return false
	}
	if f.AssignedTo != "" && t.AssignedTo != f.AssignedTo {
		return false
	}
	if f.CreatedBy != "" && t.CreatedBy != f.CreatedBy {
		return false
	}
	return true
}
