package service

import (
	"context"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/pixelgate/pixelgate/internal/model"
)

// ModelsCache memoizes the upstream model list for a TTL. When a refresh
// fails and a previous list exists, the stale list is served instead of
// the error.
type ModelsCache struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	fetch     func(ctx context.Context) ([]model.UpstreamModel, error)
	fetchedAt time.Time
	models    []model.UpstreamModel
}

func NewModelsCache(fetch func(ctx context.Context) ([]model.UpstreamModel, error), ttl time.Duration) *ModelsCache {
	return &ModelsCache{
		ttl:   ttl,
		now:   time.Now,
		fetch: fetch,
	}
}

func (c *ModelsCache) Get(ctx context.Context) ([]model.UpstreamModel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.models != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.models, nil
	}
	models, err := c.fetch(ctx)
	if err != nil {
		if c.models != nil {
			logutil.GetLogger(ctx).Warn("model list refresh failed, serving stale", zap.Error(err))
			return c.models, nil
		}
		return nil, err
	}
	c.models = models
	c.fetchedAt = c.now()
	return c.models, nil
}
