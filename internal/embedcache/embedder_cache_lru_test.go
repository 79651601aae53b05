package embedcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	calls int
	vec   []float32
	err   error
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.vec, nil
}

func (c *countingEmbedder) ModelName() string {
	return "test-model"
}

func TestLruEmbedderMemoizes(t *testing.T) {
	inner := &countingEmbedder{vec: []float32{0.1, 0.2, 0.3}}
	e := WrapLruCacheToEmbedder(inner, 16, time.Minute)

	first, err := e.Embed(context.Background(), "a red car")
	require.NoError(t, err)
	second, err := e.Embed(context.Background(), "a red car")
	require.NoError(t, err)

	require.Equal(t, 1, inner.calls)
	require.Equal(t, first, second)

	// The cached value must be a copy, not an alias.
	second[0] = 99
	third, err := e.Embed(context.Background(), "a red car")
	require.NoError(t, err)
	require.Equal(t, float32(0.1), third[0])
}

func TestLruEmbedderDistinctTexts(t *testing.T) {
	inner := &countingEmbedder{vec: []float32{1}}
	e := WrapLruCacheToEmbedder(inner, 16, time.Minute)

	_, err := e.Embed(context.Background(), "a red car")
	require.NoError(t, err)
	_, err = e.Embed(context.Background(), "a blue car")
	require.NoError(t, err)
	require.Equal(t, 2, inner.calls)
}

func TestWrapDisabled(t *testing.T) {
	inner := &countingEmbedder{vec: []float32{1}}
	require.Same(t, inner, WrapLruCacheToEmbedder(inner, 0, time.Minute))
	require.Same(t, inner, WrapLruCacheToEmbedder(inner, 16, 0))
}
