package auth

import (
	"maps"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// closureCache memoizes the permission closure of each user. Entries are
// purged wholesale on any graph or grant mutation. Sets are copied in and out
// so no caller ever holds the cached map.
type closureCache struct {
	lru *expirable.LRU[string, map[string]struct{}]
}

func newClosureCache(size int, ttl time.Duration) *closureCache {
	if size <= 0 {
		return nil
	}
	return &closureCache{lru: expirable.NewLRU[string, map[string]struct{}](size, nil, ttl)}
}

func (c *closureCache) get(userID string) (map[string]struct{}, bool) {
	if c == nil {
		return nil, false
	}
	set, ok := c.lru.Get(userID)
	if !ok {
		return nil, false
	}
	return maps.Clone(set), true
}

func (c *closureCache) put(userID string, set map[string]struct{}) {
	if c == nil {
		return
	}
	c.lru.Add(userID, maps.Clone(set))
}

func (c *closureCache) purge() {
	if c == nil {
		return
	}
	c.lru.Purge()
}

func (c *closureCache) len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
