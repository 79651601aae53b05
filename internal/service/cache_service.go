package service

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/pixelgate/pixelgate/internal/ai"
	"github.com/pixelgate/pixelgate/internal/cachekey"
	"github.com/pixelgate/pixelgate/internal/model"
	appErr "github.com/pixelgate/pixelgate/internal/pkg/errors"
	"github.com/pixelgate/pixelgate/internal/similarity"
	"github.com/pixelgate/pixelgate/internal/upstream"
)

// EntryStore is the metadata half of the exact-match store.
type EntryStore interface {
	Get(ctx context.Context, key string) (*model.CacheEntry, error)
	Put(ctx context.Context, entry *model.CacheEntry) error
}

// VectorIndex answers nearest-neighbour prompt lookups.
type VectorIndex interface {
	Insert(ctx context.Context, rec *model.EmbeddingRecord) error
	Query(ctx context.Context, vec []float32, filter model.VectorFilter, topK int) ([]*model.SimilarityMatch, error)
}

// BlobStore holds the image bytes keyed by blob key.
type BlobStore interface {
	Save(ctx context.Context, key string, data []byte, contentType string) error
	Open(ctx context.Context, key string) ([]byte, string, error)
}

// Generator produces a fresh image for a request.
type Generator interface {
	Generate(ctx context.Context, req *model.GenerateRequest) (*upstream.Result, error)
}

// Stats is a point-in-time snapshot of cache outcomes.
type Stats struct {
	ExactHits   uint64 `json:"exact_hits"`
	SimilarHits uint64 `json:"similar_hits"`
	Misses      uint64 `json:"misses"`
	Bypasses    uint64 `json:"bypasses"`
}

type CacheService struct {
	entries  EntryStore
	vectors  VectorIndex
	blobs    BlobStore
	embedder ai.IEmbedder
	gen      Generator
	policy   similarity.Policy
	topK     int
	disabled bool

	embedTimeout time.Duration
	now          func() time.Time

	exactHits   atomic.Uint64
	similarHits atomic.Uint64
	misses      atomic.Uint64
	bypasses    atomic.Uint64
}

type CacheOption func(*CacheService)

func WithPolicy(p similarity.Policy) CacheOption {
	return func(s *CacheService) {
		s.policy = p
	}
}

func WithTopK(k int) CacheOption {
	return func(s *CacheService) {
		s.topK = k
	}
}

func WithDisabled(disabled bool) CacheOption {
	return func(s *CacheService) {
		s.disabled = disabled
	}
}

func WithEmbedTimeout(d time.Duration) CacheOption {
	return func(s *CacheService) {
		s.embedTimeout = d
	}
}

func WithClock(now func() time.Time) CacheOption {
	return func(s *CacheService) {
		s.now = now
	}
}

func NewCacheService(entries EntryStore, vectors VectorIndex, blobs BlobStore,
	embedder ai.IEmbedder, gen Generator, opts ...CacheOption) *CacheService {
	s := &CacheService{
		entries:      entries,
		vectors:      vectors,
		blobs:        blobs,
		embedder:     embedder,
		gen:          gen,
		policy:       similarity.DefaultPolicy(),
		topK:         1,
		embedTimeout: 5 * time.Second,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve resolves a generation request through the cache: exact key match
// first, then embedding similarity, then the upstream generator. Only an
// upstream failure surfaces as an error; every cache-side failure degrades
// to the next tier.
func (s *CacheService) Serve(ctx context.Context, req *model.GenerateRequest) (*model.CacheResult, error) {
	key := cachekey.ForRequest(req)
	logger := logutil.GetLogger(ctx).With(zap.String("cache_key", key))
	if s.disabled || req.NoCache {
		s.bypasses.Add(1)
		return s.fetchAndStore(ctx, req, key, nil)
	}
	if res := s.lookupExact(ctx, key); res != nil {
		s.exactHits.Add(1)
		return res, nil
	}
	vec := s.embedPrompt(ctx, req.Prompt)
	if res := s.lookupSimilar(ctx, req, key, vec); res != nil {
		s.similarHits.Add(1)
		return res, nil
	}
	s.misses.Add(1)
	logger.Debug("cache miss, generating upstream")
	return s.fetchAndStore(ctx, req, key, vec)
}

func (s *CacheService) lookupExact(ctx context.Context, key string) *model.CacheResult {
	logger := logutil.GetLogger(ctx).With(zap.String("cache_key", key))
	entry, err := s.entries.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, appErr.ErrNotFound) {
			logger.Error("exact lookup failed", zap.Error(err))
		}
		return nil
	}
	data, ct, err := s.blobs.Open(ctx, cachekey.BlobKey(key))
	if err != nil {
		logger.Error("entry blob missing, treating as miss", zap.Error(err))
		return nil
	}
	if ct == "" {
		ct = entry.ContentType
	}
	return &model.CacheResult{
		Status:      model.CacheStatusHit,
		Key:         key,
		Data:        data,
		ContentType: ct,
	}
}

func (s *CacheService) embedPrompt(ctx context.Context, prompt string) []float32 {
	ectx, cancel := context.WithTimeout(ctx, s.embedTimeout)
	defer cancel()
	vec, err := s.embedder.Embed(ectx, prompt)
	if err != nil {
		logutil.GetLogger(ctx).Warn("embedding unavailable, skipping similarity", zap.Error(err))
		return nil
	}
	if similarity.IsZero(vec) {
		logutil.GetLogger(ctx).Warn("embedder returned zero vector, skipping similarity")
		return nil
	}
	return vec
}

func (s *CacheService) lookupSimilar(ctx context.Context, req *model.GenerateRequest, key string, vec []float32) *model.CacheResult {
	if vec == nil {
		return nil
	}
	logger := logutil.GetLogger(ctx).With(zap.String("cache_key", key))
	filter := model.VectorFilter{Model: req.Model, Width: req.Width, Height: req.Height}
	// The index query sits on the fast path to a hit, so it gets the same
	// bounded budget as the embedding call. A slow index degrades to miss.
	qctx, cancel := context.WithTimeout(ctx, s.embedTimeout)
	defer cancel()
	matches, err := s.vectors.Query(qctx, vec, filter, s.topK)
	if err != nil {
		logger.Error("similarity query failed", zap.Error(err))
		return nil
	}
	threshold := s.policy.Threshold(len([]rune(req.Prompt)))
	if req.MinSimilarity > 0 {
		threshold = req.MinSimilarity
	}
	for _, m := range matches {
		if !s.policy.Accepts(m.Score, threshold) {
			continue
		}
		data, ct, err := s.blobs.Open(ctx, cachekey.BlobKey(m.Key))
		if err != nil {
			logger.Error("similar blob missing, skipping match",
				zap.String("matched_key", m.Key), zap.Error(err))
			continue
		}
		return &model.CacheResult{
			Status:      model.CacheStatusSimilar,
			Key:         key,
			MatchedKey:  m.Key,
			Score:       m.Score,
			Data:        data,
			ContentType: ct,
		}
	}
	return nil
}

func (s *CacheService) fetchAndStore(ctx context.Context, req *model.GenerateRequest, key string, vec []float32) (*model.CacheResult, error) {
	res, err := s.gen.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	s.writeBack(context.WithoutCancel(ctx), req, key, vec, res)
	return &model.CacheResult{
		Status:      model.CacheStatusMiss,
		Key:         key,
		Data:        res.Data,
		ContentType: res.ContentType,
	}, nil
}

// writeBack persists a freshly generated image. Errors are logged and
// swallowed: the image already went to the caller.
func (s *CacheService) writeBack(ctx context.Context, req *model.GenerateRequest, key string, vec []float32, res *upstream.Result) {
	logger := logutil.GetLogger(ctx).With(zap.String("cache_key", key))
	if err := s.blobs.Save(ctx, cachekey.BlobKey(key), res.Data, res.ContentType); err != nil {
		logger.Error("blob write-back failed", zap.Error(err))
		return
	}
	entry := &model.CacheEntry{
		Key:         key,
		Prompt:      req.Prompt,
		Model:       req.Model,
		Width:       req.Width,
		Height:      req.Height,
		Seed:        req.Seed,
		ContentType: res.ContentType,
		Size:        int64(len(res.Data)),
		Ctime:       s.now().UnixMilli(),
	}
	if err := s.entries.Put(ctx, entry); err != nil {
		logger.Error("entry write-back failed", zap.Error(err))
		return
	}
	if vec == nil {
		vec = s.embedPrompt(ctx, req.Prompt)
	}
	if vec == nil {
		return
	}
	rec := &model.EmbeddingRecord{
		Key:       key,
		Model:     req.Model,
		Width:     req.Width,
		Height:    req.Height,
		Embedding: vec,
		Ctime:     entry.Ctime,
	}
	if err := s.vectors.Insert(ctx, rec); err != nil {
		if errors.Is(err, appErr.ErrConflict) {
			return
		}
		logger.Error("embedding write-back failed", zap.Error(err))
	}
}

func (s *CacheService) Stats() Stats {
	return Stats{
		ExactHits:   s.exactHits.Load(),
		SimilarHits: s.similarHits.Load(),
		Misses:      s.misses.Load(),
		Bypasses:    s.bypasses.Load(),
	}
}
