/**
 * Bounded Caches.
 *
 * Wraps the two cache shapes the pipeline needs so no package reaches
 * for a bare map that can grow without limit: a TTL+LRU cache for
 * lookups that expire (DNS, device-IP), and a pure insertion-order LRU
 * for caches with no time dimension (the flow-key string cache).
 * Overflow is eviction, never an error.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package cache

import (
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jellydator/ttlcache/v3"
)

// TTLCache is a capacity- and time-bounded key/value cache. Entries
// older than ttl expire; once the map exceeds cap, the library evicts
// least-recently-used entries to make room.
type TTLCache[K comparable, V any] struct {
	c *ttlcache.Cache[K, V]
}

// NewTTLCache builds a cache capped at capacity entries, each expiring
// ttl after insertion.
func NewTTLCache[K comparable, V any](capacity uint64, ttl time.Duration) *TTLCache[K, V] {
	c := ttlcache.New[K, V](
		ttlcache.WithTTL[K, V](ttl),
		ttlcache.WithCapacity[K, V](capacity),
	)
	go c.Start()
	return &TTLCache[K, V]{c: c}
}

func (t *TTLCache[K, V]) Get(key K) (V, bool) {
	item := t.c.Get(key)
	if item == nil {
		var zero V
		return zero, false
	}
	return item.Value(), true
}

func (t *TTLCache[K, V]) Set(key K, value V) {
	t.c.Set(key, value, ttlcache.DefaultTTL)
}

func (t *TTLCache[K, V]) Len() int {
	return t.c.Len()
}

func (t *TTLCache[K, V]) Stop() {
	t.c.Stop()
}

// LRUCache is a pure capacity-bounded cache with no TTL: the oldest
// unused entry is evicted once capacity is exceeded. Used for caches
// that only need an insertion-order bound, like the flow-key string
// cache.
type LRUCache[K comparable, V any] struct {
	c *lru.Cache[K, V]
}

func NewLRUCache[K comparable, V any](capacity int) *LRUCache[K, V] {
	c, err := lru.New[K, V](capacity)
	if err != nil {
		// Only invalid (<=0) capacity returns an error; every call site
		// in this codebase passes a positive literal cap.
		panic(err)
	}
	return &LRUCache[K, V]{c: c}
}

func (l *LRUCache[K, V]) Get(key K) (V, bool) {
	return l.c.Get(key)
}

func (l *LRUCache[K, V]) Add(key K, value V) {
	l.c.Add(key, value)
}

func (l *LRUCache[K, V]) Len() int {
	return l.c.Len()
}

// ActivityCache bounds a table keyed by recency-of-update rather than
// recency-of-access: every Touch marks a key's last-seen time, and
// overflow evicts the oldest 20% by that timestamp in one batch. This
// is the active flow table's eviction policy, distinct from
// LRUCache because a flow must stay resident across many touches
// between the packets that keep it alive, not just its last read.
type ActivityCache[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	evictFrac float64
	entries  map[K]V
	lastSeen map[K]time.Time
}

// NewActivityCache builds a cache capped at capacity entries; once
// exceeded, the oldest evictFrac fraction (by last Touch) is evicted
// in a single batch.
func NewActivityCache[K comparable, V any](capacity int, evictFrac float64) *ActivityCache[K, V] {
	return &ActivityCache[K, V]{
		capacity:  capacity,
		evictFrac: evictFrac,
		entries:   make(map[K]V, capacity),
		lastSeen:  make(map[K]time.Time, capacity),
	}
}

func (a *ActivityCache[K, V]) Get(key K) (V, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.entries[key]
	return v, ok
}

// Touch inserts or updates key's value and refreshes its last-seen
// timestamp, evicting the oldest batch if this insertion pushed the
// table over capacity.
func (a *ActivityCache[K, V]) Touch(key K, value V, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries[key] = value
	a.lastSeen[key] = now
	if len(a.entries) > a.capacity {
		a.evictOldest()
	}
}

func (a *ActivityCache[K, V]) Delete(key K) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.entries, key)
	delete(a.lastSeen, key)
}

func (a *ActivityCache[K, V]) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// Snapshot returns a copy of every key/value pair, for callers (the
// idle sweeper) that need to scan the whole table under a single lock
// acquisition rather than one Get per key.
func (a *ActivityCache[K, V]) Snapshot() map[K]V {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[K]V, len(a.entries))
	for k, v := range a.entries {
		out[k] = v
	}
	return out
}

func (a *ActivityCache[K, V]) evictOldest() {
	cut := int(float64(len(a.entries)) * a.evictFrac)
	if cut < 1 {
		cut = 1
	}
	type keyTime struct {
		key K
		t   time.Time
	}
	ordered := make([]keyTime, 0, len(a.lastSeen))
	for k, t := range a.lastSeen {
		ordered = append(ordered, keyTime{k, t})
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].t.Before(ordered[j].t) })
	for i := 0; i < cut && i < len(ordered); i++ {
		delete(a.entries, ordered[i].key)
		delete(a.lastSeen, ordered[i].key)
	}
}
