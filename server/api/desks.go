package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/patrickmn/go-cache"

	"github.com/GoCodeAlone/agentdesk/desk"
)

// orgChartKey caches the tree projection briefly; desk status changes show
// up after the entry expires.
const orgChartKey = "orgchart"

func (h *Handlers) listDesks(w http.ResponseWriter, _ *http.Request) {
	desks := h.Org.Registry().List()
	if desks == nil {
		desks = []*desk.Desk{}
	}
	writeJSON(w, http.StatusOK, desks)
}

func (h *Handlers) createDesk(w http.ResponseWriter, r *http.Request) {
	var d desk.Desk
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.Org.Registry().Add(&d); err != nil {
		// An unknown reports_to reference is a client mistake, not a
		// missing resource.
		status := http.StatusBadRequest
		if errors.Is(err, desk.ErrDuplicate) {
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, &d)
}

func (h *Handlers) getDesk(w http.ResponseWriter, r *http.Request) {
	d, err := h.Org.Registry().Get(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handlers) getChain(w http.ResponseWriter, r *http.Request) {
	chain, err := h.Org.Registry().HierarchyChain(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chain)
}

func (h *Handlers) orgChart(w http.ResponseWriter, _ *http.Request) {
	if h.Cache != nil {
		if v, ok := h.Cache.Get(orgChartKey); ok {
			writeJSON(w, http.StatusOK, v)
			return
		}
	}
	tree := h.Org.Registry().OrgChart()
	if tree == nil {
		tree = []*desk.OrgNode{}
	}
	if h.Cache != nil {
		h.Cache.Set(orgChartKey, tree, cache.DefaultExpiration)
	}
	writeJSON(w, http.StatusOK, tree)
}

// teamView is a team record plus its member desks.
type teamView struct {
	*desk.Team
	Members []*desk.Desk `json:"members"`
}

func (h *Handlers) teamView(t *desk.Team) teamView {
	members := h.Org.Registry().TeamDesks(t.ID)
	if members == nil {
		members = []*desk.Desk{}
	}
	return teamView{Team: t, Members: members}
}

func (h *Handlers) listTeams(w http.ResponseWriter, _ *http.Request) {
	teams := h.Org.Registry().Teams()
	out := make([]teamView, 0, len(teams))
	for _, t := range teams {
		out = append(out, h.teamView(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) getTeam(w http.ResponseWriter, r *http.Request) {
	t, err := h.Org.Registry().Team(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.teamView(t))
}
