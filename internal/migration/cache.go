package migration

import (
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

// DefaultLookupTTL bounds how long a built lookup table is reused within one process.
const DefaultLookupTTL = 30 * time.Minute

// LookupCache shares built lookup tables between plans of the same process.
// Tables are immutable, so sharing them cannot leak state between runs; a plan that
// inserts into a table invalidates every cached lookup built from it.
type LookupCache struct {
	c *cache.Cache
}

// NewLookupCache creates a cache whose entries expire after ttl (DefaultLookupTTL when <= 0).
func NewLookupCache(ttl time.Duration) *LookupCache {
	if ttl <= 0 {
		ttl = DefaultLookupTTL
	}
	// expired entries are dropped lazily on Get; no janitor goroutine
	return &LookupCache{c: cache.New(ttl, 0)}
}

// Get returns a cached table built from the same spec.
func (lc *LookupCache) Get(spec LookupSpec) (*LookupTable, bool) {
	if lc == nil {
		return nil, false
	}
	v, ok := lc.c.Get(spec.cacheKey())
	if !ok {
		return nil, false
	}
	t, ok := v.(*LookupTable)
	if !ok {
		return nil, false
	}
	// the same table may be referenced under different names by different plans
	if t.name != spec.Name {
		return &LookupTable{name: spec.Name, table: t.table, entries: t.entries, duplicates: t.duplicates}, true
	}
	return t, true
}

// Put stores a built table.
func (lc *LookupCache) Put(spec LookupSpec, t *LookupTable) {
	if lc == nil || t == nil {
		return
	}
	lc.c.SetDefault(spec.cacheKey(), t)
}

// InvalidateTable drops every cached lookup built from table and returns how many were dropped.
func (lc *LookupCache) InvalidateTable(table string) int {
	if lc == nil {
		return 0
	}
	prefix := table + "|"
	dropped := 0
	for key := range lc.c.Items() {
		if strings.HasPrefix(key, prefix) {
			lc.c.Delete(key)
			dropped++
		}
	}
	return dropped
}

// Len returns the number of cached tables, including expired ones not yet evicted.
func (lc *LookupCache) Len() int {
	if lc == nil {
		return 0
	}
	return lc.c.ItemCount()
}
