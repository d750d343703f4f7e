package server

import (
	"slices"
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/sync/singleflight"

	"github.com/cedrugs/embeddy/embedder"
)

// EmbedderCache holds one Embedder per model identifier for the lifetime
// of the process. Loads are single-flighted: concurrent first requests for
// the same identifier share one underlying load, so at most one
// construction per identifier is ever observable. There is no eviction;
// the cache grows with the number of distinct identifiers served.
type EmbedderCache struct {
	mu     sync.RWMutex
	loaded map[string]*embedder.Embedder

	group singleflight.Group
	load  func(name string) (*embedder.Embedder, error)
}

func NewEmbedderCache(load func(name string) (*embedder.Embedder, error)) *EmbedderCache {
	return &EmbedderCache{
		loaded: make(map[string]*embedder.Embedder),
		load:   load,
	}
}

// Get returns the embedder for name, loading it on first access. Reads of
// already-present entries never block on loads of other models.
func (c *EmbedderCache) Get(name string) (*embedder.Embedder, error) {
	c.mu.RLock()
	e, ok := c.loaded[name]
	c.mu.RUnlock()
	if ok {
		return e, nil
	}

	v, err, _ := c.group.Do(name, func() (any, error) {
		// a concurrent loader may have finished while this call queued
		c.mu.RLock()
		e, ok := c.loaded[name]
		c.mu.RUnlock()
		if ok {
			return e, nil
		}

		e, err := c.load(name)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.loaded[name] = e
		c.mu.Unlock()
		return e, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*embedder.Embedder), nil
}

// Loaded returns the identifiers of all loaded models, sorted.
func (c *EmbedderCache) Loaded() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := maps.Keys(c.loaded)
	slices.Sort(names)
	return names
}
