package handler

import (
	"github.com/gin-gonic/gin"
)

type RouterDeps struct {
	Image  *ImageHandler
	Models *ModelsHandler
	Stats  *StatsHandler
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/image/*prompt", deps.Image.Generate)
	api.GET("/models", deps.Models.List)
	api.GET("/stats", deps.Stats.Stats)
	api.GET("/healthz", deps.Stats.Health)
}
