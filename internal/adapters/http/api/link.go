package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/okian/ttlink/internal/domain/types"
)

// LinkHandler serves automatic and manual linking.
type LinkHandler struct {
	deps Dependencies
}

// NewLinkHandler creates a new link handler.
func NewLinkHandler(deps Dependencies) *LinkHandler {
	return &LinkHandler{deps: deps}
}

type linkRequest struct {
	Events    []types.Event    `json:"events"`
	WorkItems []types.WorkItem `json:"workItems"`
}

type linkResponse struct {
	Decisions  []types.Decision     `json:"decisions"`
	Linked     []types.Pair         `json:"linked"`
	Unlinked   []types.Event        `json:"unlinked"`
	Ignored    []types.IgnoredEvent `json:"ignored"`
	Excluded   []types.Event        `json:"excluded"`
	Duplicates []types.Duplicate    `json:"duplicates"`
	Counts     map[string]int       `json:"counts"`
}

// HandleAutoLink handles POST /link requests.
func (h *LinkHandler) HandleAutoLink(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	report, err := h.deps.AutoLink(r.Context(), types.Events(req.Events), types.WorkItems(req.WorkItems))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := linkResponse{
		Decisions:  make([]types.Decision, 0, len(report.Decisions)),
		Linked:     make([]types.Pair, 0, len(report.Linked)),
		Unlinked:   make([]types.Event, 0, len(report.Unlinked)),
		Ignored:    make([]types.IgnoredEvent, 0, len(report.Ignored)),
		Excluded:   make([]types.Event, 0, len(report.Excluded)),
		Duplicates: make([]types.Duplicate, 0, len(report.Duplicates)),
		Counts:     make(map[string]int, len(report.Counts)),
	}
	for _, d := range report.Decisions {
		resp.Decisions = append(resp.Decisions, types.FromDecision(d))
	}
	for _, p := range report.Linked {
		resp.Linked = append(resp.Linked, types.FromPair(p))
	}
	for _, ev := range report.Unlinked {
		resp.Unlinked = append(resp.Unlinked, types.FromEvent(ev))
	}
	for _, m := range report.Ignored {
		resp.Ignored = append(resp.Ignored, types.FromMatch(m))
	}
	for _, ev := range report.Excluded {
		resp.Excluded = append(resp.Excluded, types.FromEvent(ev))
	}
	for _, d := range report.Duplicates {
		resp.Duplicates = append(resp.Duplicates, types.FromDuplicate(d))
	}
	for src, n := range report.Counts {
		resp.Counts[string(src)] = n
	}
	writeJSON(w, http.StatusOK, resp)
}

type manualRequest struct {
	EventID    string           `json:"eventId"`
	WorkItemID string           `json:"workItemId"`
	Unlinked   []types.Event    `json:"unlinked"`
	WorkItems  []types.WorkItem `json:"workItems"`
}

type manualResponse struct {
	Success bool        `json:"success"`
	Pair    *types.Pair `json:"pair,omitempty"`
}

// HandleManual handles POST /link/manual requests.
func (h *LinkHandler) HandleManual(w http.ResponseWriter, r *http.Request) {
	var req manualRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if strings.TrimSpace(req.EventID) == "" || strings.TrimSpace(req.WorkItemID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("eventId and workItemId are required"))
		return
	}

	sel, err := h.deps.SelectWorkItem(r.Context(), req.EventID, req.WorkItemID,
		types.Events(req.Unlinked), types.WorkItems(req.WorkItems))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !sel.Success {
		writeJSON(w, http.StatusNotFound, errorResponse{Code: sel.Err.Kind + "_not_found", Message: sel.Message()})
		return
	}
	p := types.FromPair(sel.Pair)
	writeJSON(w, http.StatusOK, manualResponse{Success: true, Pair: &p})
}
