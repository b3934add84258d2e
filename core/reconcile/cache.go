package reconcile

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// Cache holds the last loaded snapshot of both sides and the last successful sync time.
// It is owned by a single engine and mutated only by the pass in flight.
type Cache struct {
	mu        sync.RWMutex
	directory Snapshot
	mirror    Snapshot
	lastSync  time.Time
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		directory: Snapshot{},
		mirror:    Snapshot{},
	}
}

// Update replaces both snapshots and stamps the sync time.
func (c *Cache) Update(directory, mirror Snapshot, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.directory = directory
	c.mirror = mirror
	c.lastSync = at
}

// Directory returns a copy of the directory snapshot.
func (c *Cache) Directory() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.directory.Clone()
}

// Mirror returns a copy of the mirror snapshot.
func (c *Cache) Mirror() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mirror.Clone()
}

// Sizes returns the number of records in each snapshot.
func (c *Cache) Sizes() (directory, mirror int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.directory), len(c.mirror)
}

// LastSync returns the time of the last successful pass, zero if none.
func (c *Cache) LastSync() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSync
}

// IsStale reports whether the cache is older than ttl. A cache that never synced is stale.
func (c *Cache) IsStale(ttl time.Duration) bool {
	last := c.LastSync()
	if last.IsZero() {
		return true
	}
	if ttl <= 0 {
		return false
	}
	return time.Since(last) > ttl
}

// entry is one key/value pair of a serialized snapshot.
type entry struct {
	Key    string `json:"key"`
	Record Record `json:"value"`
}

// cacheState is the persisted form. Snapshots are ordered pair lists, not maps.
type cacheState struct {
	Directory []entry    `json:"directory"`
	Mirror    []entry    `json:"mirror"`
	LastSync  *time.Time `json:"lastSyncTimestamp"`
	Pending   []Conflict `json:"pendingConflicts,omitempty"`
}

func pairs(s Snapshot) []entry {
	out := make([]entry, 0, len(s))
	for k, r := range s {
		out = append(out, entry{Key: k, Record: r})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func fromPairs(entries []entry) Snapshot {
	out := make(Snapshot, len(entries))
	for _, e := range entries {
		out[e.Key] = e.Record
	}
	return out
}

// Save writes the cache and the pending conflicts to the store.
func (c *Cache) Save(ctx context.Context, store Store, pending []Conflict) error {
	c.mu.RLock()
	state := cacheState{
		Directory: pairs(c.directory),
		Mirror:    pairs(c.mirror),
		Pending:   pending,
	}
	if !c.lastSync.IsZero() {
		last := c.lastSync
		state.LastSync = &last
	}
	c.mu.RUnlock()

	data, err := json.Marshal(state)
	if err != nil {
		return &PersistenceError{Op: "encode", Key: CacheKey, Err: err}
	}
	if err := store.Set(ctx, CacheKey, string(data)); err != nil {
		return &PersistenceError{Op: "save", Key: CacheKey, Err: err}
	}
	return nil
}

// Load restores the cache from the store and returns the persisted pending conflicts.
// A missing key leaves the cache empty.
func (c *Cache) Load(ctx context.Context, store Store) ([]Conflict, error) {
	raw, found, err := store.Get(ctx, CacheKey)
	if err != nil {
		return nil, &PersistenceError{Op: "load", Key: CacheKey, Err: err}
	}
	if !found || raw == "" {
		return nil, nil
	}

	var state cacheState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, &PersistenceError{Op: "decode", Key: CacheKey, Err: err}
	}

	c.mu.Lock()
	c.directory = fromPairs(state.Directory)
	c.mirror = fromPairs(state.Mirror)
	c.lastSync = time.Time{}
	if state.LastSync != nil {
		c.lastSync = *state.LastSync
	}
	c.mu.Unlock()

	return state.Pending, nil
}
