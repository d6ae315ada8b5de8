package exec

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GoCodeAlone/agentdesk/desk"
	"github.com/GoCodeAlone/agentdesk/task"
)

// Simulator is an Executor that stands in for a real worker. It sleeps for
// a random duration inside the configured bounds, fails a configurable
// fraction of runs, and produces a summary artifact with token usage.
type Simulator struct {
	MinDelay    time.Duration
	MaxDelay    time.Duration
	FailureRate float64 // 0.0 never fails, 1.0 always fails

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulator creates a Simulator with the given delay bounds and failure
// rate. Zero bounds mean no delay.
func NewSimulator(minDelay, maxDelay time.Duration, failureRate float64) *Simulator {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &Simulator{
		MinDelay:    minDelay,
		MaxDelay:    maxDelay,
		FailureRate: failureRate,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Name returns the executor identifier.
func (s *Simulator) Name() string { return "simulator" }

// Execute simulates working the task. It honors context cancellation during
// the delay and reports it as the execution error.
func (s *Simulator) Execute(ctx context.Context, d *desk.Desk, t *task.Task) (*Result, error) {
	delay, fail := s.roll()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if fail {
		return nil, fmt.Errorf("simulated failure working task %s", t.ID)
	}

	output := fmt.Sprintf("%s completed %q", d.Title, t.Title)
	return &Result{
		Output: output,
		Artifacts: []task.Artifact{{
			ID:        uuid.NewString(),
			TaskID:    t.ID,
			Type:      "summary",
			Content:   output,
			CreatedAt: time.Now().UTC(),
		}},
		Usage: task.Usage{
			InputTokens:  len(t.Title) + len(t.Description),
			OutputTokens: len(output),
		},
	}, nil
}

// roll draws the delay and failure outcome for one run. The shared rng is
// not safe for concurrent use.
func (s *Simulator) roll() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delay := s.MinDelay
	if spread := s.MaxDelay - s.MinDelay; spread > 0 {
		delay += time.Duration(s.rng.Int63n(int64(spread)))
	}
	fail := s.FailureRate > 0 && s.rng.Float64() < s.FailureRate
	return delay, fail
}
