package routing

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/signalsfoundry/resource-fabric/model"
)

const defaultCacheSize = 256

type cacheKey struct {
	src     string
	dst     string
	policy  model.RoutingPolicy
	version uint64
}

// Cache memoises computed routes per topology version. Entries for older
// versions are never returned and age out of the LRU.
type Cache struct {
	entries *lru.Cache[cacheKey, Path]

	mu     sync.Mutex
	hits   int64
	misses int64
}

// NewCache creates a cache holding at most size routes; size <= 0 uses a
// default.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = defaultCacheSize
	}
	entries, err := lru.New[cacheKey, Path](size)
	if err != nil {
		// lru.New only fails on a non-positive size.
		panic(err)
	}
	return &Cache{entries: entries}
}

func (c *Cache) Get(src, dst string, policy model.RoutingPolicy, version uint64) (Path, bool) {
	if c == nil {
		return Path{}, false
	}
	p, ok := c.entries.Get(cacheKey{src: src, dst: dst, policy: policy, version: version})
	c.mu.Lock()
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	c.mu.Unlock()
	if !ok {
		return Path{}, false
	}
	return p.clone(), true
}

func (c *Cache) Put(src, dst string, policy model.RoutingPolicy, version uint64, p Path) {
	if c == nil {
		return
	}
	c.entries.Add(cacheKey{src: src, dst: dst, policy: policy, version: version}, p.clone())
}

// Purge drops every cached route.
func (c *Cache) Purge() {
	if c == nil {
		return
	}
	c.entries.Purge()
}

func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}

func (c *Cache) Stats() (hits, misses int64) {
	if c == nil {
		return 0, 0
	}
	c.mu.Lock()
	hits, misses = c.hits, c.misses
	c.mu.Unlock()
	return
}

// HitRatio returns hits / (hits + misses), or 0 before any lookup.
func (c *Cache) HitRatio() float64 {
	hits, misses := c.Stats()
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}
