package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/akaeyuhi/SwiftE-commerce-sub007/internal/api/middleware"
	"github.com/akaeyuhi/SwiftE-commerce-sub007/internal/maintenance"
)

// MaintenanceHandler exposes the cleanup tasks for on-demand runs, mainly
// for operators verifying a retention change with dry_run before the next
// scheduled sweep.
type MaintenanceHandler struct {
	runner *maintenance.Runner
	logger *zap.Logger
}

func NewMaintenanceHandler(runner *maintenance.Runner, logger *zap.Logger) *MaintenanceHandler {
	return &MaintenanceHandler{runner: runner, logger: logger}
}

// List handles GET /api/v1/maintenance/tasks
//
// @Summary  List registered maintenance tasks
// @Tags     maintenance
// @Produce  json
// @Success  200  {object}  map[string][]string
// @Router   /api/v1/maintenance/tasks [get]
func (h *MaintenanceHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string][]string{"tasks": h.runner.TaskNames()})
}

// RunTask handles POST /api/v1/maintenance/tasks/{name}/run
//
// @Summary  Run one maintenance task now
// @Tags     maintenance
// @Produce  json
// @Param    name     path      string  true   "Task name"
// @Param    dry_run  query     bool    false  "Report counts without deleting"
// @Success  200      {object}  domain.TaskResult
// @Failure  404      {object}  map[string]string
// @Router   /api/v1/maintenance/tasks/{name}/run [post]
func (h *MaintenanceHandler) RunTask(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	dryRun := parseBool(r.URL.Query().Get("dry_run"))

	res, err := h.runner.RunTask(r.Context(), name, dryRun)
	if err != nil {
		h.logger.Warn("manual task run failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.String("task", name),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// RunAll handles POST /api/v1/maintenance/run
//
// @Summary  Run every registered maintenance task
// @Tags     maintenance
// @Produce  json
// @Param    dry_run  query     bool  false  "Report counts without deleting"
// @Success  200      {object}  domain.TaskResult
// @Router   /api/v1/maintenance/run [post]
func (h *MaintenanceHandler) RunAll(w http.ResponseWriter, r *http.Request) {
	res, err := h.runner.RunAll(r.Context(), parseBool(r.URL.Query().Get("dry_run")))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}
