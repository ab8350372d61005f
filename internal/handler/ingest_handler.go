package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jauapai/jauap/internal/pkg/errcode"
	"github.com/jauapai/jauap/internal/pkg/response"
	"github.com/jauapai/jauap/internal/repo"
)

type IngestHandler struct {
	runs *repo.IngestRunRepo
}

func NewIngestHandler(runs *repo.IngestRunRepo) *IngestHandler {
	return &IngestHandler{runs: runs}
}

func (h *IngestHandler) ListRuns(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			response.Error(c, errcode.ErrInvalid, "invalid limit")
			return
		}
		limit = parsed
	}
	runs, err := h.runs.List(c.Request.Context(), limit)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"runs": runs})
}

func (h *IngestHandler) GetRun(c *gin.Context) {
	runID := c.Param("id")
	run, err := h.runs.Get(c.Request.Context(), runID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, run)
}
