package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/janovincze/commentsync/internal/api/models"
	"github.com/janovincze/commentsync/internal/ingest/run"
)

// RunTrigger starts runs and reports on them.
type RunTrigger interface {
	Trigger(ctx context.Context, trigger string) (*run.Report, error)
	Last() *run.Report
	State() run.State
}

// RunHandler handles run endpoints.
type RunHandler struct {
	runs RunTrigger
}

// NewRunHandler creates a new RunHandler.
func NewRunHandler(runs RunTrigger) *RunHandler {
	return &RunHandler{runs: runs}
}

// Trigger executes one ingestion run and waits for it. A client disconnect
// does not cancel the run.
// POST /api/v1/runs
func (h *RunHandler) Trigger(c *gin.Context) {
	report, err := h.runs.Trigger(context.WithoutCancel(c.Request.Context()), run.TriggerHTTP)
	switch {
	case errors.Is(err, run.ErrRunInProgress):
		models.RespondWithError(c, models.NewConflictError(c.Request.URL.Path, err.Error()))
		return
	case err != nil:
		runID := ""
		if report != nil {
			runID = report.ID
		}
		models.RespondWithError(c, models.NewRunFailedError(c.Request.URL.Path, runID, err.Error()))
		return
	}

	c.JSON(http.StatusOK, models.NewRunResponse(report, h.runs.State()))
}

// GetLast returns the most recent run.
// GET /api/v1/runs/last
func (h *RunHandler) GetLast(c *gin.Context) {
	last := h.runs.Last()
	if last == nil {
		models.RespondWithError(c, models.NewNotFoundError(c.Request.URL.Path, "no run has completed yet"))
		return
	}
	c.JSON(http.StatusOK, models.NewRunResponse(last, h.runs.State()))
}
