package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pixelgate/pixelgate/internal/cachekey"
	"github.com/pixelgate/pixelgate/internal/model"
	appErr "github.com/pixelgate/pixelgate/internal/pkg/errors"
	"github.com/pixelgate/pixelgate/internal/similarity"
	"github.com/pixelgate/pixelgate/internal/upstream"
)

type fakeEntryStore struct {
	entries map[string]*model.CacheEntry
	putErr  error
}

func newFakeEntryStore() *fakeEntryStore {
	return &fakeEntryStore{entries: make(map[string]*model.CacheEntry)}
}

func (f *fakeEntryStore) Get(ctx context.Context, key string) (*model.CacheEntry, error) {
	entry, ok := f.entries[key]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return entry, nil
}

func (f *fakeEntryStore) Put(ctx context.Context, entry *model.CacheEntry) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.entries[entry.Key] = entry
	return nil
}

type fakeVectorIndex struct {
	records   map[string]*model.EmbeddingRecord
	matches   []*model.SimilarityMatch
	insertErr error
}

func newFakeVectorIndex() *fakeVectorIndex {
	return &fakeVectorIndex{records: make(map[string]*model.EmbeddingRecord)}
}

func (f *fakeVectorIndex) Insert(ctx context.Context, rec *model.EmbeddingRecord) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	if _, ok := f.records[rec.Key]; ok {
		return appErr.ErrConflict
	}
	f.records[rec.Key] = rec
	return nil
}

func (f *fakeVectorIndex) Query(ctx context.Context, vec []float32, filter model.VectorFilter, topK int) ([]*model.SimilarityMatch, error) {
	return f.matches, nil
}

type fakeBlobStore struct {
	blobs   map[string][]byte
	saveErr error
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{blobs: make(map[string][]byte)}
}

func (f *fakeBlobStore) Save(ctx context.Context, key string, data []byte, contentType string) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.blobs[key] = data
	return nil
}

func (f *fakeBlobStore) Open(ctx context.Context, key string) ([]byte, string, error) {
	data, ok := f.blobs[key]
	if !ok {
		return nil, "", appErr.ErrNotFound
	}
	return data, "image/jpeg", nil
}

type fakeEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func (f *fakeEmbedder) ModelName() string {
	return "fake-embed"
}

type fakeGenerator struct {
	data  []byte
	err   error
	calls int
}

func (f *fakeGenerator) Generate(ctx context.Context, req *model.GenerateRequest) (*upstream.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &upstream.Result{Data: f.data, ContentType: "image/jpeg"}, nil
}

type fixture struct {
	entries  *fakeEntryStore
	vectors  *fakeVectorIndex
	blobs    *fakeBlobStore
	embedder *fakeEmbedder
	gen      *fakeGenerator
	svc      *CacheService
}

func newFixture(opts ...CacheOption) *fixture {
	f := &fixture{
		entries:  newFakeEntryStore(),
		vectors:  newFakeVectorIndex(),
		blobs:    newFakeBlobStore(),
		embedder: &fakeEmbedder{vec: []float32{0.1, 0.2, 0.3}},
		gen:      &fakeGenerator{data: []byte("fresh-image")},
	}
	f.svc = NewCacheService(f.entries, f.vectors, f.blobs, f.embedder, f.gen, opts...)
	return f
}

func testRequest() *model.GenerateRequest {
	return &model.GenerateRequest{
		Prompt: "a red car on a beach",
		Model:  "flux",
		Width:  1024,
		Height: 1024,
	}
}

func TestServeMissThenExactHit(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	req := testRequest()

	res, err := f.svc.Serve(ctx, req)
	require.NoError(t, err)
	require.Equal(t, model.CacheStatusMiss, res.Status)
	require.Equal(t, []byte("fresh-image"), res.Data)
	require.Equal(t, 1, f.gen.calls)

	res, err = f.svc.Serve(ctx, req)
	require.NoError(t, err)
	require.Equal(t, model.CacheStatusHit, res.Status)
	require.Equal(t, []byte("fresh-image"), res.Data)
	require.Equal(t, 1, f.gen.calls)

	stats := f.svc.Stats()
	require.EqualValues(t, 1, stats.Misses)
	require.EqualValues(t, 1, stats.ExactHits)
}

func TestServeSimilarHit(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	seeded := testRequest()
	_, err := f.svc.Serve(ctx, seeded)
	require.NoError(t, err)
	seededKey := cachekey.ForRequest(seeded)

	f.vectors.matches = []*model.SimilarityMatch{{Key: seededKey, Score: 0.95}}
	req := testRequest()
	req.Prompt = "a scarlet car on a beach"
	res, err := f.svc.Serve(ctx, req)
	require.NoError(t, err)
	require.Equal(t, model.CacheStatusSimilar, res.Status)
	require.Equal(t, seededKey, res.MatchedKey)
	require.InDelta(t, 0.95, res.Score, 1e-9)
	require.Equal(t, []byte("fresh-image"), res.Data)
	require.Equal(t, 1, f.gen.calls)
}

func TestServeSimilarBelowThresholdMisses(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	seeded := testRequest()
	_, err := f.svc.Serve(ctx, seeded)
	require.NoError(t, err)

	f.vectors.matches = []*model.SimilarityMatch{{Key: cachekey.ForRequest(seeded), Score: 0.5}}
	req := testRequest()
	req.Prompt = "a blue whale in space"
	res, err := f.svc.Serve(ctx, req)
	require.NoError(t, err)
	require.Equal(t, model.CacheStatusMiss, res.Status)
	require.Equal(t, 2, f.gen.calls)
}

func TestServeCustomSimilarityOverride(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	seeded := testRequest()
	_, err := f.svc.Serve(ctx, seeded)
	require.NoError(t, err)

	f.vectors.matches = []*model.SimilarityMatch{{Key: cachekey.ForRequest(seeded), Score: 0.7}}
	req := testRequest()
	req.Prompt = "a crimson car near the ocean"
	req.MinSimilarity = 0.6
	res, err := f.svc.Serve(ctx, req)
	require.NoError(t, err)
	require.Equal(t, model.CacheStatusSimilar, res.Status)
}

func TestServeEmbedFailureDegradesToMiss(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.embedder.err = fmt.Errorf("embedding backend down")
	res, err := f.svc.Serve(ctx, testRequest())
	require.NoError(t, err)
	require.Equal(t, model.CacheStatusMiss, res.Status)
	require.Equal(t, 1, f.gen.calls)
	require.Empty(t, f.vectors.records)
}

func TestServeZeroVectorSkipsSimilarity(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.embedder.vec = []float32{0, 0, 0}
	f.vectors.matches = []*model.SimilarityMatch{{Key: "whatever", Score: 0.99}}
	res, err := f.svc.Serve(ctx, testRequest())
	require.NoError(t, err)
	require.Equal(t, model.CacheStatusMiss, res.Status)
}

func TestServeMetadataWithoutBlobIsMiss(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	req := testRequest()
	key := cachekey.ForRequest(req)
	f.entries.entries[key] = &model.CacheEntry{Key: key, Prompt: req.Prompt}

	res, err := f.svc.Serve(ctx, req)
	require.NoError(t, err)
	require.Equal(t, model.CacheStatusMiss, res.Status)
	require.Equal(t, 1, f.gen.calls)
}

func TestServeSimilarBlobMissingFallsThrough(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.vectors.matches = []*model.SimilarityMatch{{Key: "gone-key", Score: 0.99}}
	res, err := f.svc.Serve(ctx, testRequest())
	require.NoError(t, err)
	require.Equal(t, model.CacheStatusMiss, res.Status)
	require.Equal(t, 1, f.gen.calls)
}

func TestServeBypassStillWritesBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	req := testRequest()
	req.NoCache = true
	res, err := f.svc.Serve(ctx, req)
	require.NoError(t, err)
	require.Equal(t, model.CacheStatusMiss, res.Status)

	key := cachekey.ForRequest(req)
	require.Contains(t, f.entries.entries, key)
	require.Contains(t, f.blobs.blobs, cachekey.BlobKey(key))
	require.Contains(t, f.vectors.records, key)
	require.EqualValues(t, 1, f.svc.Stats().Bypasses)
}

func TestServeDisabledBypassesLookup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(WithDisabled(true))
	req := testRequest()
	_, err := f.svc.Serve(ctx, req)
	require.NoError(t, err)
	_, err = f.svc.Serve(ctx, req)
	require.NoError(t, err)
	require.Equal(t, 2, f.gen.calls)
}

func TestServeUpstreamErrorPropagates(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.gen.err = fmt.Errorf("upstream exploded")
	_, err := f.svc.Serve(ctx, testRequest())
	require.Error(t, err)
}

func TestServeWriteBackFailuresSwallowed(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.blobs.saveErr = fmt.Errorf("disk full")
	res, err := f.svc.Serve(ctx, testRequest())
	require.NoError(t, err)
	require.Equal(t, []byte("fresh-image"), res.Data)
	require.Empty(t, f.entries.entries)
}

func TestServeDuplicateEmbeddingInsertIgnored(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.vectors.insertErr = appErr.ErrConflict
	res, err := f.svc.Serve(ctx, testRequest())
	require.NoError(t, err)
	require.Equal(t, model.CacheStatusMiss, res.Status)
}

func TestServeWriteBackSurvivesCancelledRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := newFixture()
	req := testRequest()
	res, err := f.svc.Serve(ctx, req)
	cancel()
	require.NoError(t, err)
	require.Equal(t, model.CacheStatusMiss, res.Status)
	require.Contains(t, f.entries.entries, cachekey.ForRequest(req))
}

func TestServeThresholdFollowsPromptLength(t *testing.T) {
	ctx := context.Background()
	policy := similarity.Policy{ShortThreshold: 0.86, LongThreshold: 0.92, LengthCutoff: 48}
	f := newFixture(WithPolicy(policy))
	seeded := testRequest()
	_, err := f.svc.Serve(ctx, seeded)
	require.NoError(t, err)

	// 0.9 clears the short-prompt bound but not the long-prompt one.
	f.vectors.matches = []*model.SimilarityMatch{{Key: cachekey.ForRequest(seeded), Score: 0.9}}

	short := testRequest()
	short.Prompt = "red car"
	res, err := f.svc.Serve(ctx, short)
	require.NoError(t, err)
	require.Equal(t, model.CacheStatusSimilar, res.Status)

	long := testRequest()
	long.Prompt = "a highly detailed oil painting of a red sports car parked on a beach"
	res, err = f.svc.Serve(ctx, long)
	require.NoError(t, err)
	require.Equal(t, model.CacheStatusMiss, res.Status)
}

func TestServeEndToEndScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	seed := int64(42)
	first := &model.GenerateRequest{
		Prompt: "a beautiful sunset over mountains",
		Model:  "flux",
		Width:  1024,
		Height: 512,
		Seed:   &seed,
	}

	res, err := f.svc.Serve(ctx, first)
	require.NoError(t, err)
	require.Equal(t, model.CacheStatusMiss, res.Status)
	require.Equal(t, 1, f.gen.calls)
	firstBody := res.Data
	firstKey := res.Key

	res, err = f.svc.Serve(ctx, first)
	require.NoError(t, err)
	require.Equal(t, model.CacheStatusHit, res.Status)
	require.Equal(t, firstBody, res.Data)
	require.Equal(t, 1, f.gen.calls)

	f.vectors.matches = []*model.SimilarityMatch{{Key: firstKey, Score: 0.97}}
	third := &model.GenerateRequest{
		Prompt: "a gorgeous sunset over mountains",
		Model:  "flux",
		Width:  1024,
		Height: 512,
		Seed:   &seed,
	}
	res, err = f.svc.Serve(ctx, third)
	require.NoError(t, err)
	require.Equal(t, model.CacheStatusSimilar, res.Status)
	require.Equal(t, firstKey, res.MatchedKey)
	require.GreaterOrEqual(t, res.Score, 0.86)
	require.Equal(t, firstBody, res.Data)
	require.Equal(t, 1, f.gen.calls)
}

func TestModelsCache(t *testing.T) {
	now := time.Unix(1000, 0)
	calls := 0
	var fetchErr error
	cache := NewModelsCache(func(ctx context.Context) ([]model.UpstreamModel, error) {
		calls++
		if fetchErr != nil {
			return nil, fetchErr
		}
		return []model.UpstreamModel{{Name: "flux"}, {Name: "turbo"}}, nil
	}, 10*time.Minute)
	cache.now = func() time.Time { return now }

	ctx := context.Background()
	models, err := cache.Get(ctx)
	require.NoError(t, err)
	require.Len(t, models, 2)
	require.Equal(t, 1, calls)

	// Within TTL, no refetch.
	now = now.Add(5 * time.Minute)
	_, err = cache.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	// Expired and failing: serve stale.
	now = now.Add(10 * time.Minute)
	fetchErr = fmt.Errorf("upstream down")
	models, err = cache.Get(ctx)
	require.NoError(t, err)
	require.Len(t, models, 2)
	require.Equal(t, 2, calls)

	// Expired and healthy: refresh.
	fetchErr = nil
	_, err = cache.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestModelsCacheFirstFetchErrorPropagates(t *testing.T) {
	cache := NewModelsCache(func(ctx context.Context) ([]model.UpstreamModel, error) {
		return nil, fmt.Errorf("boom")
	}, time.Minute)
	_, err := cache.Get(context.Background())
	require.Error(t, err)
}
