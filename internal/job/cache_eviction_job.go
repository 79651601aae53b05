package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/pixelgate/pixelgate/internal/blobstore"
	"github.com/pixelgate/pixelgate/internal/cachekey"
	"github.com/pixelgate/pixelgate/internal/repo"
)

// CacheEvictionJob drops cache entries, embeddings and blobs older than
// maxAgeDays. Blob deletion is best effort: a blob that fails to delete
// is orphaned, not fatal, since its metadata row is already gone.
type CacheEvictionJob struct {
	entries    *repo.EntryRepo
	vectors    *repo.VectorRepo
	blobs      blobstore.Store
	maxAgeDays int
}

func NewCacheEvictionJob(entries *repo.EntryRepo, vectors *repo.VectorRepo, blobs blobstore.Store, maxAgeDays int) *CacheEvictionJob {
	return &CacheEvictionJob{entries: entries, vectors: vectors, blobs: blobs, maxAgeDays: maxAgeDays}
}

func (j *CacheEvictionJob) Name() string {
	return "cache_eviction"
}

func (j *CacheEvictionJob) Run(ctx context.Context) error {
	if j.entries == nil || j.vectors == nil {
		return nil
	}
	maxAgeDays := j.maxAgeDays
	if maxAgeDays <= 0 {
		maxAgeDays = 30
	}
	cutoff := time.Now().Add(-time.Duration(maxAgeDays) * 24 * time.Hour).UnixMilli()
	logger := logutil.GetLogger(ctx)

	keys, err := j.entries.DeleteBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if _, err := j.vectors.DeleteBefore(ctx, cutoff); err != nil {
		return err
	}
	for _, key := range keys {
		if err := j.blobs.Delete(ctx, cachekey.BlobKey(key)); err != nil {
			logger.Warn("evict blob failed", zap.String("cache_key", key), zap.Error(err))
		}
	}
	if len(keys) > 0 {
		logger.Info("cache eviction done", zap.Int("evicted", len(keys)))
	}
	return nil
}
