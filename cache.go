package flowscope

import (
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// cacheKey uniquely identifies an override-active lookup. Exact-match only;
// partial matches are not supported.
type cacheKey struct {
	Kind      RuleKind
	TrackerID int64
	RoleKey   string
}

// roleKey renders a role id set as a stable cache key component. Ids are
// sorted on a copy so permuted sets share one entry.
func roleKey(roleIDs []int64) string {
	sorted := slices.Clone(roleIDs)
	slices.Sort(sorted)

	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

// cacheEntry stores one lookup result.
type cacheEntry struct {
	active    bool
	expiresAt time.Time // zero means no expiry
}

// Cache stores override-active results. The lookup runs on every issue save
// and edit-form render in the host, and its answer only changes when an
// administrator edits project workflows, so even a short TTL removes most
// of the query load.
//
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get retrieves a cached result. ok is false when the entry doesn't
	// exist or is expired.
	Get(kind RuleKind, trackerID int64, roleIDs []int64) (active, ok bool)

	// Set stores a result.
	Set(kind RuleKind, trackerID int64, roleIDs []int64, active bool)
}

// CacheImpl is the default in-memory cache implementation with optional TTL.
// It grows unbounded within its TTL window; workflow rule sets are small
// (trackers x roles pairs), so that bound is the catalog size, not traffic.
type CacheImpl struct {
	mu    sync.RWMutex
	items map[cacheKey]cacheEntry
	ttl   time.Duration // 0 means no expiry
}

// CacheOption configures a Cache.
type CacheOption func(*CacheImpl)

// WithTTL sets the time-to-live for cache entries. Entries older than TTL
// are re-checked. A TTL of 0 (default) means entries never expire within
// the cache's lifetime; pair that with Clear after rule writes.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *CacheImpl) {
		c.ttl = ttl
	}
}

// NewCache creates a new override-active cache.
func NewCache(opts ...CacheOption) *CacheImpl {
	c := &CacheImpl{
		items: make(map[cacheKey]cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get retrieves a cached result.
func (c *CacheImpl) Get(kind RuleKind, trackerID int64, roleIDs []int64) (bool, bool) {
	key := cacheKey{Kind: kind, TrackerID: trackerID, RoleKey: roleKey(roleIDs)}

	c.mu.RLock()
	entry, ok := c.items[key]
	c.mu.RUnlock()

	if !ok {
		return false, false
	}

	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.items, key)
		c.mu.Unlock()
		return false, false
	}

	return entry.active, true
}

// Set stores a result.
func (c *CacheImpl) Set(kind RuleKind, trackerID int64, roleIDs []int64, active bool) {
	key := cacheKey{Kind: kind, TrackerID: trackerID, RoleKey: roleKey(roleIDs)}

	entry := cacheEntry{active: active}
	if c.ttl > 0 {
		entry.expiresAt = time.Now().Add(c.ttl)
	}

	c.mu.Lock()
	c.items[key] = entry
	c.mu.Unlock()
}

// Size returns the number of entries in the cache.
func (c *CacheImpl) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Clear removes all entries. Call after replacing or copying rules so
// override-active answers don't go stale mid-TTL.
func (c *CacheImpl) Clear() {
	c.mu.Lock()
	c.items = make(map[cacheKey]cacheEntry)
	c.mu.Unlock()
}

// Ensure CacheImpl implements Cache.
var _ Cache = (*CacheImpl)(nil)
