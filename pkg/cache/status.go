package cache

import (
	"context"
	"sync"

	"social-brand-analyzer/pkg/models"
)

// StatusCache holds in-flight and recent analysis documents for polling
type StatusCache interface {
	Set(ctx context.Context, result *models.AnalysisResult) error
	Get(ctx context.Context, analysisID string) (*models.AnalysisResult, bool, error)
	Delete(ctx context.Context, analysisID string) error
}

// MemoryCache is a process-local StatusCache
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*models.AnalysisResult
}

// NewMemoryCache creates an empty in-memory cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]*models.AnalysisResult)}
}

// Set stores a copy of result
func (c *MemoryCache) Set(ctx context.Context, result *models.AnalysisResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[result.AnalysisID] = result.Clone()
	return nil
}

// Get returns a copy of the cached document
func (c *MemoryCache) Get(ctx context.Context, analysisID string) (*models.AnalysisResult, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result, ok := c.entries[analysisID]
	if !ok {
		return nil, false, nil
	}
	return result.Clone(), true, nil
}

func (c *MemoryCache) Delete(ctx context.Context, analysisID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, analysisID)
	return nil
}
