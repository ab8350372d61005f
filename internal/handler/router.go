package handler

import (
	"github.com/gin-gonic/gin"
)

type RouterDeps struct {
	Chat   *ChatHandler
	Health *HealthHandler
	Ingest *IngestHandler
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/health", deps.Health.Check)

	api.POST("/chat", deps.Chat.Chat)
	api.POST("/chat/stream", deps.Chat.Stream)

	api.GET("/ingest/runs", deps.Ingest.ListRuns)
	api.GET("/ingest/runs/:id", deps.Ingest.GetRun)
}
