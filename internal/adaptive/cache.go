package adaptive

import (
	"fmt"
	"log"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache holds loaded presentations, bounded by an LRU of configurable
// capacity. Accessed only from request handlers; the lru type carries its own
// lock, so concurrent handlers are safe even though the original served from
// a single event loop.
type Cache struct {
	lru *lru.Cache[string, *Presentation]

	// Size, when set, observes the entry count after every change.
	Size func(n int)
}

// NewCache builds a presentation cache holding up to capacity entries.
func NewCache(capacity int) (*Cache, error) {
	if capacity < 1 {
		capacity = 1
	}
	var c Cache
	inner, err := lru.NewWithEvict[string, *Presentation](capacity,
		func(key string, _ *Presentation) {
			log.Printf("adaptive: evicting presentation %s", key)
		})
	if err != nil {
		return nil, fmt.Errorf("adaptive: cache: %w", err)
	}
	c.lru = inner
	return &c, nil
}

// Key builds the cache key for one presentation variant.
func Key(contentID, version string, drm DrmType, stream StreamType) string {
	return fmt.Sprintf("%s/%s/%s/%s", contentID, version, drm.Name(), stream.Name())
}

// Get returns a cached presentation, or nil.
func (c *Cache) Get(key string) *Presentation {
	p, ok := c.lru.Get(key)
	if !ok {
		return nil
	}
	return p
}

// Put stores a presentation and reports the new size.
func (c *Cache) Put(key string, p *Presentation) {
	c.lru.Add(key, p)
	if c.Size != nil {
		c.Size(c.lru.Len())
	}
}

// Len returns the number of cached presentations.
func (c *Cache) Len() int { return c.lru.Len() }
