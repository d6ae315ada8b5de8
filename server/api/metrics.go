package api

import (
	"context"
	"net/http"

	"github.com/patrickmn/go-cache"

	"github.com/GoCodeAlone/agentdesk/audit"
	"github.com/GoCodeAlone/agentdesk/task"
)

// metricsKey caches the aggregate snapshot; recomputing it walks every task
// and audit entry.
const metricsKey = "metrics"

// Metrics is the aggregate snapshot served by GET /api/metrics.
type Metrics struct {
	Tasks      TaskMetrics            `json:"tasks"`
	Desks      map[string]DeskMetrics `json:"desks"`
	Usage      task.Usage             `json:"usage"`
	Audit      AuditMetrics           `json:"audit"`
	SSEClients int                    `json:"sse_clients"`
}

// TaskMetrics counts tasks by status and priority.
type TaskMetrics struct {
	Total      int            `json:"total"`
	ByStatus   map[string]int `json:"by_status"`
	ByPriority map[string]int `json:"by_priority"`
}

// DeskMetrics counts one desk's task outcomes.
type DeskMetrics struct {
	Assigned  int `json:"assigned"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// AuditMetrics counts delegation decisions.
type AuditMetrics struct {
	Authorized int `json:"authorized"`
	Denied     int `json:"denied"`
}

func (h *Handlers) metrics(w http.ResponseWriter, r *http.Request) {
	if h.Cache != nil {
		if v, ok := h.Cache.Get(metricsKey); ok {
			writeJSON(w, http.StatusOK, v)
			return
		}
	}

	m, err := h.collectMetrics(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if h.Cache != nil {
		h.Cache.Set(metricsKey, m, cache.DefaultExpiration)
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handlers) collectMetrics(ctx context.Context) (*Metrics, error) {
	tasks, err := h.Org.Tasks().List(ctx, task.Filter{})
	if err != nil {
		return nil, err
	}
	entries, err := h.Org.Audit().List(ctx, audit.Filter{})
	if err != nil {
		return nil, err
	}

	m := &Metrics{
		Tasks: TaskMetrics{
			Total:      len(tasks),
			ByStatus:   make(map[string]int),
			ByPriority: make(map[string]int),
		},
		Desks: make(map[string]DeskMetrics),
	}
	for _, t := range tasks {
		m.Tasks.ByStatus[string(t.Status)]++
		m.Tasks.ByPriority[t.Priority.String()]++
		m.Usage.InputTokens += t.Usage.InputTokens
		m.Usage.OutputTokens += t.Usage.OutputTokens

		if t.AssignedTo == "" {
			continue
		}
		d := m.Desks[t.AssignedTo]
		d.Assigned++
		switch t.Status {
		case task.StatusCompleted:
			d.Completed++
		case task.StatusFailed:
			d.Failed++
		}
		m.Desks[t.AssignedTo] = d
	}
	for _, e := range entries {
		if e.Authorized {
			m.Audit.Authorized++
		} else {
			m.Audit.Denied++
		}
	}
	if h.Hub != nil {
		m.SSEClients = h.Hub.ClientCount()
	}
	return m, nil
}
