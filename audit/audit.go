// Package audit records every delegation decision, authorized or not.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Action identifies what was attempted.
type Action string

const (
	ActionDelegate Action = "delegate" // desk-to-desk handoff
	ActionAssign   Action = "assign"   // operator assignment, no authorization check
)

// Entry is one recorded delegation decision.
type Entry struct {
	ID         string    `json:"id"`
	Time       time.Time `json:"time"`
	Actor      string    `json:"actor"` // desk ID or "api"
	Action     Action    `json:"action"`
	TaskID     string    `json:"task_id"`
	FromDesk   string    `json:"from_desk,omitempty"`
	ToDesk     string    `json:"to_desk"`
	Authorized bool      `json:"authorized"`
	Reason     string    `json:"reason,omitempty"`
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	TaskID string
	Actor  string
	Limit  int
}

// Log stores delegation decisions.
type Log interface {
	// Record appends an entry, stamping missing IDs and times.
	Record(ctx context.Context, e *Entry) error

	// List returns matching entries oldest first.
	List(ctx context.Context, f Filter) ([]*Entry, error)
}

// MemLog is an in-memory Log.
type MemLog struct {
	mu      sync.RWMutex
	entries []*Entry
}

// NewMemLog creates an empty MemLog.
func NewMemLog() *MemLog {
	return &MemLog{}
}

// Record appends an entry.
func (l *MemLog) Record(_ context.Context, e *Entry) error {
	stamp(e)
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *e
	l.entries = append(l.entries, &cp)
	return nil
}

// List returns matching entries oldest first.
func (l *MemLog) List(_ context.Context, f Filter) ([]*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []*Entry
	for _, e := range l.entries {
		if !f.matches(e) {
			continue
		}
		cp := *e
		result = append(result, &cp)
		if f.Limit > 0 && len(result) >= f.Limit {
			break
		}
	}
	return result, nil
}

func (f Filter) matches(e *Entry) bool {
	if f.TaskID != "" && e.TaskID != f.TaskID {
		return false
	}
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	return true
}

func stamp(e *Entry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
}
