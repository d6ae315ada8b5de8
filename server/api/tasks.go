package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/GoCodeAlone/agentdesk/org"
	"github.com/GoCodeAlone/agentdesk/task"
)

// createTaskRequest is the body accepted by POST /api/tasks. Priority is a
// name (low, medium, high, critical); unknown names are rejected.
type createTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	CreatedBy   string `json:"created_by"`
	Priority    string `json:"priority"`
	QARequired  bool   `json:"qa_required"`
}

// delegateRequest is the body accepted by POST /api/tasks/{id}/delegate.
type delegateRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (h *Handlers) listTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := task.Filter{
		AssignedTo: q.Get("assigned_to"),
		CreatedBy:  q.Get("created_by"),
		Limit:      intQuery(q, "limit", 0),
		Offset:     intQuery(q, "offset", 0),
	}
	if s := q.Get("status"); s != "" {
		st := task.Status(s)
		filter.Status = &st
	}

	tasks, err := h.Org.Tasks().List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// createTask stores the task, routes it, and hands it to the chosen desk.
// When no desk can take it the task is still created and stays pending; the
// response carries whatever assignment state routing produced.
func (h *Handlers) createTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	t := &task.Task{
		Title:       req.Title,
		Description: req.Description,
		CreatedBy:   req.CreatedBy,
		QARequired:  req.QARequired,
	}
	if req.Priority != "" {
		p, err := task.ParsePriority(req.Priority)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		t.Priority = p
	}

	id, err := h.Org.Create(r.Context(), t)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if assignee, err := h.Org.Route(t); err != nil {
		if !errors.Is(err, org.ErrNoRoute) {
			writeDomainError(w, err)
			return
		}
		h.logger().Warn("task not routable", slog.String("task", id), slog.Any("err", err))
	} else if err := h.Org.Assign(r.Context(), id, assignee); err != nil {
		writeDomainError(w, err)
		return
	}

	created, err := h.Org.Tasks().Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handlers) getTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.Org.Tasks().Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handlers) delegateTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req delegateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.From == "" || req.To == "" {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}

	ok, err := h.Org.Delegate(r.Context(), id, req.From, req.To)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusForbidden, fmt.Sprintf("%s may not delegate to %s", req.From, req.To))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"delegated":   true,
		"task_id":     id,
		"assigned_to": req.To,
	})
}
