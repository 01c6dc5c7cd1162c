package handlers

import (
	"net/http"
	"runtime"

	"github.com/gin-gonic/gin"

	"github.com/janovincze/commentsync/internal/api/models"
)

// Build-time variables (set via -ldflags).
var (
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// VersionHandler serves version information.
type VersionHandler struct {
	version string
}

// NewVersionHandler creates a new VersionHandler.
func NewVersionHandler(version string) *VersionHandler {
	return &VersionHandler{version: version}
}

// GetVersion returns version information.
// GET /api/v1/version
func (h *VersionHandler) GetVersion(c *gin.Context) {
	c.JSON(http.StatusOK, models.VersionResponse{
		Version:    h.version,
		APIVersion: "v1",
		GoVersion:  runtime.Version(),
		BuildTime:  BuildTime,
		GitCommit:  GitCommit,
	})
}
