package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pixelgate/pixelgate/internal/pkg/response"
	"github.com/pixelgate/pixelgate/internal/service"
)

type StatsHandler struct {
	cache *service.CacheService
}

func NewStatsHandler(cache *service.CacheService) *StatsHandler {
	return &StatsHandler{cache: cache}
}

func (h *StatsHandler) Stats(c *gin.Context) {
	response.Success(c, h.cache.Stats())
}

func (h *StatsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
