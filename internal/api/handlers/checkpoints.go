package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/janovincze/commentsync/internal/api/models"
	"github.com/janovincze/commentsync/internal/ingest"
)

// CheckpointReader loads the persisted checkpoint documents.
type CheckpointReader interface {
	LoadWatermark(ctx context.Context, now time.Time) (ingest.Watermark, error)
	LoadProgress(ctx context.Context) (ingest.Progress, error)
}

// CheckpointHandler handles checkpoint endpoints.
type CheckpointHandler struct {
	checkpoints CheckpointReader
	now         func() time.Time
}

// NewCheckpointHandler creates a new CheckpointHandler.
func NewCheckpointHandler(checkpoints CheckpointReader) *CheckpointHandler {
	return &CheckpointHandler{checkpoints: checkpoints, now: time.Now}
}

// Get returns the current watermark and progress map.
// GET /api/v1/checkpoints
func (h *CheckpointHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	w, err := h.checkpoints.LoadWatermark(ctx, h.now())
	if err != nil {
		models.RespondWithError(c, models.NewInternalError(c.Request.URL.Path, err.Error()))
		return
	}
	p, err := h.checkpoints.LoadProgress(ctx)
	if err != nil {
		models.RespondWithError(c, models.NewInternalError(c.Request.URL.Path, err.Error()))
		return
	}

	c.JSON(http.StatusOK, models.NewCheckpointsResponse(w, p))
}
