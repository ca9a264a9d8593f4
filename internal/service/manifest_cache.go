package service

import (
	"sync"
	"time"

	"github.com/set-night/pixchat/internal/domain"
)

type ManifestCache struct {
	mu       sync.RWMutex
	manifest *domain.ContentManifest
	cachedAt time.Time
	ttl      time.Duration
}

func NewManifestCache(ttl time.Duration) *ManifestCache {
	return &ManifestCache{ttl: ttl}
}

// Get returns the cached manifest and whether it is still within its TTL.
func (c *ManifestCache) Get() (*domain.ContentManifest, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.manifest == nil {
		return nil, false
	}
	return c.manifest, time.Since(c.cachedAt) <= c.ttl
}

func (c *ManifestCache) Set(manifest *domain.ContentManifest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manifest = manifest
	c.cachedAt = time.Now()
}
