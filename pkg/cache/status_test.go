package cache

import (
	"context"
	"testing"

	"social-brand-analyzer/pkg/models"

	"github.com/go-playground/assert/v2"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	_, ok, err := c.Get(ctx, "missing")
	assert.Equal(t, nil, err)
	assert.Equal(t, false, ok)

	result := &models.AnalysisResult{
		AnalysisID: "a1",
		Status:     models.StatusProcessing,
		Progress:   23,
		BrandsData: map[string]models.BrandData{"BYD": {Keywords: []string{"SEAL"}}},
	}
	assert.Equal(t, nil, c.Set(ctx, result))

	// later changes to the caller's document do not leak into the cache
	result.Progress = 50
	result.BrandsData["Tesla"] = models.BrandData{}

	got, ok, err := c.Get(ctx, "a1")
	assert.Equal(t, nil, err)
	assert.Equal(t, true, ok)
	assert.Equal(t, 23, got.Progress)
	assert.Equal(t, 1, len(got.BrandsData))

	assert.Equal(t, nil, c.Delete(ctx, "a1"))
	_, ok, _ = c.Get(ctx, "a1")
	assert.Equal(t, false, ok)
}
