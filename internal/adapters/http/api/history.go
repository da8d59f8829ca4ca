package api

import (
	"net/http"
	"strconv"

	"github.com/okian/ttlink/internal/domain/history"
)

// HistoryHandler exposes the learned links.
type HistoryHandler struct {
	deps Dependencies
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(deps Dependencies) *HistoryHandler {
	return &HistoryHandler{deps: deps}
}

type historyResponse struct {
	Entries []history.Entry `json:"entries"`
}

// HandleList handles GET /history requests.
func (h *HistoryHandler) HandleList(w http.ResponseWriter, _ *http.Request) {
	entries := h.deps.History()
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Entries: entries})
}

// HandleDelete handles DELETE /history/{sig} requests.
func (h *HistoryHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ok, err := h.deps.DeleteHistory(r.Context(), r.PathValue("sig"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleExport handles GET /history/export requests with a YAML body.
func (h *HistoryHandler) HandleExport(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="ttlink-history.yaml"`)
	if err := h.deps.ExportHistory(w); err != nil {
		writeServiceError(w, err)
	}
}

type importResponse struct {
	Imported int `json:"imported"`
}

// HandleImport handles POST /history/import requests. The body is a YAML
// export; merge=true keeps existing entries that were used more recently.
func (h *HistoryHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	merge := false
	if v := r.URL.Query().Get("merge"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err)
			return
		}
		merge = b
	}
	n, err := h.deps.ImportHistory(r.Context(), http.MaxBytesReader(w, r.Body, maxBodyBytes), merge)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, importResponse{Imported: n})
}
