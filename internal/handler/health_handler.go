package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/jauapai/jauap/internal/index"
	"github.com/jauapai/jauap/internal/pkg/errcode"
	"github.com/jauapai/jauap/internal/pkg/response"
)

type HealthHandler struct {
	store index.Store
}

func NewHealthHandler(store index.Store) *HealthHandler {
	return &HealthHandler{store: store}
}

// Check pings the vector index. An unreachable or uninitialized index is a
// 503 so deployment probes catch misconfiguration instead of the API
// serving empty search results.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.store.Ping(ctx); err != nil {
		logutil.GetLogger(ctx).Error("index health check failed", zap.Error(err))
		response.ErrorWithStatus(c, http.StatusServiceUnavailable, errcode.ErrIndexUnavailable, "vector index unavailable")
		return
	}
	response.Success(c, gin.H{"status": "ok"})
}
