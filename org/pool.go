package org

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
)

// ErrPoolClosed is returned by Submit after Shutdown.
var ErrPoolClosed = errors.New("pool closed")

// Pool runs task processing routines as tracked goroutines. Every scheduled
// unit is retained until it finishes, so in-flight work is enumerable,
// cancellable per task, and shutdown is bounded.
type Pool struct {
	logger *slog.Logger

	mu       sync.RWMutex
	closed   bool
	inflight map[string]*unit // task ID -> newest unit for that task

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type unit struct {
	taskID string
	deskID string
	cancel context.CancelFunc
}

// NewPool creates an empty Pool.
func NewPool(logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		logger:   logger,
		inflight: make(map[string]*unit),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Submit schedules run on its own goroutine. The context passed to run is
// cancelled by Cancel(taskID) and by Shutdown. Submitting a task that is
// already in flight starts a second routine; the newest one owns the task's
// Cancel handle.
func (p *Pool) Submit(taskID, deskID string, run func(ctx context.Context)) error {
	ctx, cancel := context.WithCancel(p.ctx)
	u := &unit{taskID: taskID, deskID: deskID, cancel: cancel}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		cancel()
		return ErrPoolClosed
	}
	p.inflight[taskID] = u
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			p.mu.Lock()
			if p.inflight[taskID] == u {
				delete(p.inflight, taskID)
			}
			p.mu.Unlock()
			p.wg.Done()
		}()
		run(ctx)
	}()
	return nil
}

// InFlight returns the IDs of tasks currently being processed, sorted.
func (p *Pool) InFlight() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.inflight))
	for id := range p.inflight {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of tasks in flight.
func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.inflight)
}

// Cancel cancels the in-flight routine for the given task. It reports
// whether a routine was found.
func (p *Pool) Cancel(taskID string) bool {
	p.mu.RLock()
	u, ok := p.inflight[taskID]
	p.mu.RUnlock()
	if ok {
		u.cancel()
	}
	return ok
}

// Drain waits for all in-flight work to finish without cancelling it.
// Returns the context's error if the deadline expires first.
func (p *Pool) Drain(ctx context.Context) error {
	return p.wait(ctx)
}

// Shutdown cancels all in-flight work, rejects new submissions, and waits
// for the routines to exit.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	if err := p.wait(ctx); err != nil {
		p.logger.Warn("pool shutdown timed out", "inflight", p.Count(), "error", err)
		return err
	}
	return nil
}

func (p *Pool) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
