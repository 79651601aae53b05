package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/pixelgate/pixelgate/internal/pkg/response"
	"github.com/pixelgate/pixelgate/internal/service"
)

type ModelsHandler struct {
	models *service.ModelsCache
}

func NewModelsHandler(models *service.ModelsCache) *ModelsHandler {
	return &ModelsHandler{models: models}
}

func (h *ModelsHandler) List(c *gin.Context) {
	models, err := h.models.Get(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, models)
}
