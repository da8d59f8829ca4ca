// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	service "github.com/okian/ttlink/internal/app"
	"github.com/okian/ttlink/internal/domain/history"
	"github.com/okian/ttlink/internal/domain/linking"
	"github.com/okian/ttlink/internal/domain/model"
	"github.com/okian/ttlink/pkg/metrics"
)

const maxBodyBytes = 8 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	AutoLink(ctx context.Context, events []model.Event, workItems []model.WorkItem) (service.LinkReport, error)
	SelectWorkItem(ctx context.Context, eventID, workItemID string, unlinked []model.Event, workItems []model.WorkItem) (linking.Selection, error)

	StartRun(ctx context.Context, pairs, skipped []model.Pair) (string, error)
	Run(id string) (service.RunStatus, bool)
	CancelRun(ctx context.Context, id string) error

	History() []history.Entry
	DeleteHistory(ctx context.Context, signature string) (bool, error)
	ExportHistory(w io.Writer) error
	ImportHistory(ctx context.Context, r io.Reader, merge bool) (int, error)
}

// Server wires HTTP routes for the linking API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	linkHandler    *LinkHandler
	historyHandler *HistoryHandler
	runsHandler    *RunsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(statsProvider),
		linkHandler:    NewLinkHandler(deps),
		historyHandler: NewHistoryHandler(deps),
		runsHandler:    NewRunsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /link", MetricsMiddleware(s.linkHandler.HandleAutoLink, "link"))
	mux.HandleFunc("POST /link/manual", MetricsMiddleware(s.linkHandler.HandleManual, "link_manual"))

	mux.HandleFunc("GET /history", MetricsMiddleware(s.historyHandler.HandleList, "history"))
	mux.HandleFunc("GET /history/export", MetricsMiddleware(s.historyHandler.HandleExport, "history_export"))
	mux.HandleFunc("POST /history/import", MetricsMiddleware(s.historyHandler.HandleImport, "history_import"))
	mux.HandleFunc("DELETE /history/{sig}", MetricsMiddleware(s.historyHandler.HandleDelete, "history_delete"))

	mux.HandleFunc("POST /runs", MetricsMiddleware(s.runsHandler.HandleStart, "runs"))
	mux.HandleFunc("GET /runs/{id}", MetricsMiddleware(s.runsHandler.HandleGet, "run"))
	mux.HandleFunc("POST /runs/{id}/cancel", MetricsMiddleware(s.runsHandler.HandleCancel, "run_cancel"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// decode reads a JSON body into v, rejecting unknown fields.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}

// writeServiceError maps service and domain errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var verr *linking.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Code: verr.Reason, Message: err.Error()})
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrEmptyRun):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, service.ErrRunNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, service.ErrRunFinished):
		writeError(w, http.StatusConflict, "conflict", err)
	case errors.Is(err, service.ErrNoRegistrar), errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	case errors.Is(err, linking.ErrStorage), errors.Is(err, history.ErrStorage):
		writeError(w, http.StatusInternalServerError, "storage_error", err)
	case errors.Is(err, history.ErrDecode):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
