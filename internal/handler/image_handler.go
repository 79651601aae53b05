package handler

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pixelgate/pixelgate/internal/model"
	appErr "github.com/pixelgate/pixelgate/internal/pkg/errors"
	"github.com/pixelgate/pixelgate/internal/service"
	"github.com/pixelgate/pixelgate/internal/upstream"
)

const (
	defaultModel  = "flux"
	defaultWidth  = 1024
	defaultHeight = 1024
	minDimension  = 64
	maxDimension  = 2048
)

type ImageHandler struct {
	cache *service.CacheService
}

func NewImageHandler(cache *service.CacheService) *ImageHandler {
	return &ImageHandler{cache: cache}
}

// Generate serves GET /image/*prompt. The wildcard segment is the prompt;
// generation parameters arrive as query values.
func (h *ImageHandler) Generate(c *gin.Context) {
	req, err := h.parseRequest(c)
	if err != nil {
		handleError(c, err)
		return
	}
	res, err := h.cache.Serve(c.Request.Context(), req)
	if err != nil {
		handleError(c, err)
		return
	}
	c.Header("X-Cache", string(res.Status))
	c.Header("X-Cache-Key", res.Key)
	if res.Status == model.CacheStatusSimilar {
		c.Header("X-Similar-Key", res.MatchedKey)
		c.Header("X-Similar-Score", strconv.FormatFloat(res.Score, 'f', 4, 64))
	}
	c.Data(http.StatusOK, res.ContentType, res.Data)
}

func (h *ImageHandler) parseRequest(c *gin.Context) (*model.GenerateRequest, error) {
	prompt := strings.TrimPrefix(c.Param("prompt"), "/")
	if unescaped, err := url.PathUnescape(prompt); err == nil {
		prompt = unescaped
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("prompt is required, %w", appErr.ErrInvalid)
	}
	req := &model.GenerateRequest{
		Prompt: prompt,
		Model:  defaultModel,
		Width:  defaultWidth,
		Height: defaultHeight,
	}
	if name := c.Query("model"); name != "" {
		kind, err := upstream.ResolveKind(name)
		if err != nil {
			return nil, err
		}
		req.Model = string(kind)
	}
	var err error
	if req.Width, err = parseDimension(c, "width", defaultWidth); err != nil {
		return nil, err
	}
	if req.Height, err = parseDimension(c, "height", defaultHeight); err != nil {
		return nil, err
	}
	if raw := c.Query("seed"); raw != "" {
		seed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid seed: %s, %w", raw, appErr.ErrInvalid)
		}
		req.Seed = &seed
	}
	if raw := c.Query("nocache"); raw != "" {
		req.NoCache = raw == "true" || raw == "1"
	}
	if raw := c.Query("similarity"); raw != "" {
		sim, err := strconv.ParseFloat(raw, 64)
		if err != nil || sim <= 0 || sim > 1 {
			return nil, fmt.Errorf("similarity must be in (0, 1], %w", appErr.ErrInvalid)
		}
		req.MinSimilarity = sim
	}
	return req, nil
}

func parseDimension(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %s, %w", name, raw, appErr.ErrInvalid)
	}
	if v < minDimension {
		v = minDimension
	}
	if v > maxDimension {
		v = maxDimension
	}
	return v, nil
}
