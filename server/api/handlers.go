// Package api implements the REST handlers for the AgentDesk server.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/GoCodeAlone/agentdesk/audit"
	"github.com/GoCodeAlone/agentdesk/comms"
	"github.com/GoCodeAlone/agentdesk/desk"
	"github.com/GoCodeAlone/agentdesk/org"
	"github.com/GoCodeAlone/agentdesk/server/ws"
	"github.com/GoCodeAlone/agentdesk/task"
)

// Handlers bundles the REST API's collaborators. Hub and Cache are optional:
// a nil Cache serves metrics and the org chart uncached, a nil Hub drops the
// SSE client count from metrics.
type Handlers struct {
	Org     *org.Organization
	Hub     *ws.Hub
	Cache   *cache.Cache
	Logger  *slog.Logger
	Version string
	StartAt time.Time
}

// RegisterRoutes registers all API routes on the given mux.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/agents", h.listDesks)
	mux.HandleFunc("POST /api/agents", h.createDesk)
	mux.HandleFunc("GET /api/agents/{id}", h.getDesk)
	mux.HandleFunc("GET /api/agents/{id}/chain", h.getChain)

	mux.HandleFunc("GET /api/orgchart", h.orgChart)

	mux.HandleFunc("GET /api/teams", h.listTeams)
	mux.HandleFunc("GET /api/teams/{id}", h.getTeam)

	mux.HandleFunc("GET /api/tasks", h.listTasks)
	mux.HandleFunc("POST /api/tasks", h.createTask)
	mux.HandleFunc("GET /api/tasks/{id}", h.getTask)
	mux.HandleFunc("POST /api/tasks/{id}/delegate", h.delegateTask)

	mux.HandleFunc("GET /api/audit", h.listAudit)
	mux.HandleFunc("GET /api/metrics", h.metrics)
	mux.HandleFunc("GET /api/messages", h.listMessages)

	mux.HandleFunc("GET /api/status", h.status)
	mux.HandleFunc("GET /api/version", h.version)
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps domain sentinel errors to response codes. Unknown
// identifiers become 404, constraint violations 409, anything else 500.
func writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, task.ErrNotFound),
		errors.Is(err, desk.ErrNotFound),
		errors.Is(err, desk.ErrTeamNotFound):
		status = http.StatusNotFound
	case errors.Is(err, desk.ErrDuplicate),
		errors.Is(err, desk.ErrDuplicateTeam),
		errors.Is(err, desk.ErrCycleDetected),
		errors.Is(err, org.ErrTaskTerminal):
		status = http.StatusConflict
	}
	writeError(w, status, err.Error())
}

// intQuery parses an integer query parameter, falling back to def.
func intQuery(q url.Values, key string, def int) int {
	v := q.Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// --- Audit and message handlers ---

func (h *Handlers) listAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, err := h.Org.Audit().List(r.Context(), audit.Filter{
		TaskID: q.Get("task_id"),
		Actor:  q.Get("actor"),
		Limit:  intQuery(q, "limit", 100),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if entries == nil {
		entries = []*audit.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handlers) listMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	msgs, err := h.Org.Bus().History(q.Get("recipient"), intQuery(q, "limit", 50))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if msgs == nil {
		msgs = []*comms.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// --- Status / version ---

func (h *Handlers) status(w http.ResponseWriter, _ *http.Request) {
	uptime := "0s"
	if !h.StartAt.IsZero() {
		uptime = time.Since(h.StartAt).Round(time.Second).String()
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.Version,
		"org":     h.Org.Name(),
		"uptime":  uptime,
	})
}

// StatusHandler returns the status handler function for external registration.
func (h *Handlers) StatusHandler() http.HandlerFunc {
	return h.status
}

func (h *Handlers) version(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": h.Version,
	})
}

func (h *Handlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
