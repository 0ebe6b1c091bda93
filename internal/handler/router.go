package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/huduma-ai/civicqa/internal/middleware"
)

type RouterDeps struct {
	Pipeline *PipelineHandler
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.Use(middleware.Role())
	api.POST("/reindex", deps.Pipeline.Reindex)
	api.GET("/search", deps.Pipeline.Search)
	api.POST("/ask", deps.Pipeline.Ask)
	api.GET("/documents", deps.Pipeline.Documents)
	api.GET("/health", deps.Pipeline.Health)
}
