package api

import (
	"net/http"
	"time"

	service "github.com/okian/ttlink/internal/app"
	"github.com/okian/ttlink/internal/domain/registration"
	"github.com/okian/ttlink/internal/domain/types"
)

// RunsHandler starts and follows registration runs.
type RunsHandler struct {
	deps Dependencies
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(deps Dependencies) *RunsHandler {
	return &RunsHandler{deps: deps}
}

type runRequest struct {
	Pairs   []types.Pair `json:"pairs"`
	Skipped []types.Pair `json:"skipped"`
}

type runCreated struct {
	ID string `json:"id"`
}

type runItem struct {
	Key    string             `json:"key"`
	Pair   types.Pair         `json:"pair"`
	State  registration.State `json:"state"`
	Detail string             `json:"detail,omitempty"`
}

type runResponse struct {
	ID            string                   `json:"id"`
	Progress      registration.Progress    `json:"progress"`
	Items         []runItem                `json:"items"`
	Failures      []registration.ItemError `json:"failures"`
	HistoryErrors []registration.ItemError `json:"historyErrors"`
	Complete      bool                     `json:"complete"`
	Cancelled     bool                     `json:"cancelled"`
	StartedAt     time.Time                `json:"startedAt"`
	FinishedAt    *time.Time               `json:"finishedAt,omitempty"`
}

func toRunResponse(st service.RunStatus) runResponse {
	resp := runResponse{
		ID:            st.ID,
		Progress:      st.Progress,
		Items:         make([]runItem, 0, len(st.Items)),
		Failures:      st.Failures,
		HistoryErrors: st.HistoryErrors,
		Complete:      st.Complete,
		Cancelled:     st.Cancelled,
		StartedAt:     st.StartedAt,
	}
	if resp.Failures == nil {
		resp.Failures = []registration.ItemError{}
	}
	if resp.HistoryErrors == nil {
		resp.HistoryErrors = []registration.ItemError{}
	}
	if !st.FinishedAt.IsZero() {
		at := st.FinishedAt
		resp.FinishedAt = &at
	}
	for _, it := range st.Items {
		resp.Items = append(resp.Items, runItem{Key: it.Key, Pair: types.FromPair(it.Pair), State: it.State, Detail: it.Detail})
	}
	return resp
}

// HandleStart handles POST /runs requests.
func (h *RunsHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	id, err := h.deps.StartRun(r.Context(), types.Pairs(req.Pairs), types.Pairs(req.Skipped))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Location", "/runs/"+id)
	writeJSON(w, http.StatusAccepted, runCreated{ID: id})
}

// HandleGet handles GET /runs/{id} requests.
func (h *RunsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	st, ok := h.deps.Run(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", service.ErrRunNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toRunResponse(st))
}

// HandleCancel handles POST /runs/{id}/cancel requests.
func (h *RunsHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.deps.CancelRun(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	st, _ := h.deps.Run(id)
	writeJSON(w, http.StatusOK, toRunResponse(st))
}
