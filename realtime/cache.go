package realtime

import (
	"strings"
	"sync"
)

// QueryKey identifies a cached query result, hierarchically: ["orders"] is
// the orders list, ["orders", id] one order's detail. Mirrors the key scheme
// of the consuming application's query cache.
type QueryKey []string

// String joins the key segments for logging and map storage.
func (k QueryKey) String() string { return strings.Join(k, "/") }

// Well-known query keys patched and invalidated by the Syncer.
func OrdersKey() QueryKey              { return QueryKey{"orders"} }
func OrderKey(orderID string) QueryKey { return QueryKey{"orders", orderID} }
func OrderItemKey(itemID string) QueryKey {
	return QueryKey{"order-items", itemID}
}
func TasksKey() QueryKey      { return QueryKey{"tasks"} }
func AdminTasksKey() QueryKey { return QueryKey{"tasks", "admin"} }
func StaffTasksKey() QueryKey { return QueryKey{"tasks", "staff"} }
func DashboardKey() QueryKey  { return QueryKey{"dashboard"} }

// PatchFunc transforms a cached entry. It returns the replacement value and
// whether the patch applied; returning ok=false leaves the entry untouched.
type PatchFunc func(cached any) (updated any, ok bool)

// Cache is the client-side query cache collaborator. Implementations are
// provided by the consuming application; MemoryCache is a ready-made
// in-process implementation.
type Cache interface {
	// Patch applies fn to the entry under key, if present.
	Patch(key QueryKey, fn PatchFunc)
	// Invalidate marks the entry under key stale, eligible for background
	// refetch.
	Invalidate(key QueryKey)
	// Refetch forces an immediate refetch of the entry under key.
	Refetch(key QueryKey)
}

// MemoryCache is a map-backed Cache for examples and tests. Invalidated keys
// are recorded so consumers can drive their own refetch; Refetch delegates to
// an optional fetcher callback.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]any
	stale   map[string]bool

	// Fetcher, when set, is called by Refetch to produce a fresh value.
	Fetcher func(key QueryKey) (any, error)
}

// NewMemoryCache constructs an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]any),
		stale:   make(map[string]bool),
	}
}

// Set stores value under key and clears its stale mark.
func (c *MemoryCache) Set(key QueryKey, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key.String()] = value
	delete(c.stale, key.String())
}

// Get returns the cached value under key.
func (c *MemoryCache) Get(key QueryKey) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key.String()]
	return v, ok
}

// Patch implements Cache.
func (c *MemoryCache) Patch(key QueryKey, fn PatchFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key.String()]
	if !ok {
		return
	}
	if updated, applied := fn(v); applied {
		c.entries[key.String()] = updated
	}
}

// Invalidate implements Cache.
func (c *MemoryCache) Invalidate(key QueryKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stale[key.String()] = true
}

// Refetch implements Cache.
func (c *MemoryCache) Refetch(key QueryKey) {
	c.mu.Lock()
	fetcher := c.Fetcher
	c.mu.Unlock()
	if fetcher == nil {
		return
	}
	v, err := fetcher(key)
	if err != nil {
		return
	}
	c.Set(key, v)
}

// Stale reports whether key has been invalidated since last Set.
func (c *MemoryCache) Stale(key QueryKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stale[key.String()]
}
