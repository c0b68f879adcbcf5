// Package cache fronts the store with a bounded in-memory hot tier. Two
// tiers: id lookups live until evicted, search results carry a TTL. Loads
// are single-flight per key; mutations invalidate, never update.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	. "github.com/Wawtawsha/durandal-mcp/internal/logging"
	"github.com/Wawtawsha/durandal-mcp/internal/metrics"
	"github.com/Wawtawsha/durandal-mcp/internal/store"
)

// Cache is the request-scoped hot tier. All methods are safe for
// concurrent use. A cache failure degrades to a direct store read; it
// never fails the caller.
type Cache struct {
	ids      *lru.Cache[int64, store.Memory]
	searches *expirable.LRU[string, any]
	group    singleflight.Group
}

// New creates a cache with the given entry capacity per tier and TTL for
// search-result entries. Id entries live until evicted.
func New(capacity int, searchTTL time.Duration) (*Cache, error) {
	if capacity <= 0 {
		capacity = 1000
	}
	if searchTTL <= 0 {
		searchTTL = 30 * time.Minute
	}

	ids, err := lru.NewWithEvict[int64, store.Memory](capacity, func(int64, store.Memory) {
		metrics.MetricInc("cache", "evictions")
	})
	if err != nil {
		return nil, fmt.Errorf("create id cache: %w", err)
	}

	searches := expirable.NewLRU[string, any](capacity, func(string, any) {
		metrics.MetricInc("cache", "evictions")
	}, searchTTL)

	return &Cache{ids: ids, searches: searches}, nil
}

// Fingerprint derives the deterministic cache key for a search: a hash of
// the normalized query, the filter tuple, and the limit.
func Fingerprint(query string, opts store.SearchOptions, limit int) string {
	cats := append([]string(nil), opts.Categories...)
	for i := range cats {
		cats[i] = strings.ToLower(cats[i])
	}
	sort.Strings(cats)

	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%.4f\x00%s\x00%s\x00%s\x00%d",
		strings.ToLower(strings.Join(strings.Fields(query), " ")),
		opts.MinImportance,
		strings.Join(cats, ","),
		opts.Project,
		opts.Session,
		limit,
	)
	return hex.EncodeToString(h.Sum(nil))
}

// GetMemory returns the cached row for id, loading through on a miss. At
// most one loader runs per id; concurrent readers share its result.
// NotFound (nil row) is never cached.
func (c *Cache) GetMemory(id int64, load func() (*store.Memory, error)) (*store.Memory, error) {
	if m, ok := c.ids.Get(id); ok {
		metrics.MetricHit("cache", "ids")
		return &m, nil
	}
	metrics.MetricMiss("cache", "ids")

	v, err, shared := c.group.Do(fmt.Sprintf("id:%d", id), func() (any, error) {
		m, err := load()
		if err != nil {
			return nil, err
		}
		if m != nil {
			c.ids.Add(id, *m)
		}
		return m, nil
	})
	if shared {
		metrics.MetricInc("cache", "coalesced")
	}
	if err != nil {
		return nil, err
	}
	m, _ := v.(*store.Memory)
	return m, nil
}

// GetSearch returns the cached value for a search fingerprint, loading
// through on a miss with the same single-flight discipline. The value is
// whatever the loader assembled (the dispatcher caches its ranked result
// set, not raw rows).
func (c *Cache) GetSearch(fingerprint string, load func() (any, error)) (any, error) {
	if v, ok := c.searches.Get(fingerprint); ok {
		metrics.MetricHit("cache", "searches")
		return v, nil
	}
	metrics.MetricMiss("cache", "searches")

	v, err, shared := c.group.Do("search:"+fingerprint, func() (any, error) {
		v, err := load()
		if err != nil {
			return nil, err
		}
		c.searches.Add(fingerprint, v)
		return v, nil
	})
	if shared {
		metrics.MetricInc("cache", "coalesced")
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Invalidate drops the given ids and every search entry. Wired as the
// store's mutation hook so invalidation happens before the mutating call
// returns. Search entries are cleared wholesale: a fingerprint can't tell
// which rows fed it.
func (c *Cache) Invalidate(ids ...int64) {
	for _, id := range ids {
		c.ids.Remove(id)
	}
	c.searches.Purge()
	metrics.MetricInc("cache", "invalidations")
}

// Purge empties both tiers. Used by aggressive optimize to rebuild the hot
// tier from scratch.
func (c *Cache) Purge() {
	c.ids.Purge()
	c.searches.Purge()
	L_debug("cache: purged")
}

// Len reports current entry counts for observability.
func (c *Cache) Len() (ids, searches int) {
	return c.ids.Len(), c.searches.Len()
}
