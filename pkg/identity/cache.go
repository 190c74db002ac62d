package identity

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultMaxEntriesPerTenant bounds each tenant's cache shard.
const DefaultMaxEntriesPerTenant = 100

// Fingerprint returns the cache key component for a raw token: a SHA-256
// digest, so the cache never holds or compares raw token material.
func Fingerprint(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// cacheEntry is a memoized authentication outcome: either an identity or a
// typed validation failure, never both.
type cacheEntry struct {
	key      string
	identity *NormalizedIdentity
	err      error

	// expiresAt bounds how long the outcome may be replayed. Zero means
	// no bound.
	expiresAt time.Time
}

// shard is one tenant's LRU. Shards lock independently so a busy tenant
// never contends with its neighbors.
type shard struct {
	mu      sync.Mutex
	order   *list.List
	entries map[string]*list.Element
}

func newShard() *shard {
	return &shard{
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

// Cache memoizes authentication outcomes per tenant. Keys are token
// fingerprints combined with a configuration fingerprint, so a config
// change naturally misses every stale entry. Concurrent requests for the
// same key collapse into one computation via singleflight.
type Cache struct {
	maxPerTenant int

	mu     sync.RWMutex
	shards map[string]*shard

	group singleflight.Group

	// now is swappable for tests.
	now func() time.Time
}

// NewCache builds a Cache. maxPerTenant <= 0 selects the default.
func NewCache(maxPerTenant int) *Cache {
	if maxPerTenant <= 0 {
		maxPerTenant = DefaultMaxEntriesPerTenant
	}
	return &Cache{
		maxPerTenant: maxPerTenant,
		shards:       make(map[string]*shard),
		now:          time.Now,
	}
}

// Get returns the memoized outcome for key under tenant. The third return
// reports whether the entry existed and was still fresh. Cached identities
// are cloned so callers cannot mutate the cached copy.
func (c *Cache) Get(tenant, key string) (*NormalizedIdentity, error, bool) {
	c.mu.RLock()
	sh := c.shards[tenant]
	c.mu.RUnlock()
	if sh == nil {
		return nil, nil, false
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	el, ok := sh.entries[key]
	if !ok {
		return nil, nil, false
	}
	entry := el.Value.(*cacheEntry)
	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		sh.order.Remove(el)
		delete(sh.entries, key)
		return nil, nil, false
	}
	sh.order.MoveToFront(el)
	return entry.identity.Clone(), entry.err, true
}

// Put memoizes an outcome, evicting the tenant's least-recently-used entry
// when the shard is full.
func (c *Cache) Put(tenant, key string, identity *NormalizedIdentity, err error, expiresAt time.Time) {
	sh := c.shard(tenant)

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if el, ok := sh.entries[key]; ok {
		el.Value = &cacheEntry{key: key, identity: identity.Clone(), err: err, expiresAt: expiresAt}
		sh.order.MoveToFront(el)
		return
	}
	if sh.order.Len() >= c.maxPerTenant {
		oldest := sh.order.Back()
		if oldest != nil {
			sh.order.Remove(oldest)
			delete(sh.entries, oldest.Value.(*cacheEntry).key)
		}
	}
	el := sh.order.PushFront(&cacheEntry{key: key, identity: identity.Clone(), err: err, expiresAt: expiresAt})
	sh.entries[key] = el
}

// Do collapses concurrent computations for the same tenant and key into a
// single call to compute, consulting the cache before and populating it
// after. compute's outcome, success or typed failure, is memoized; only the
// winning caller's compute runs.
func (c *Cache) Do(tenant, key string, compute func() (*NormalizedIdentity, error, time.Time)) (*NormalizedIdentity, error) {
	if id, err, ok := c.Get(tenant, key); ok {
		return id, err
	}
	type outcome struct {
		identity *NormalizedIdentity
		err      error
	}
	v, _, _ := c.group.Do(tenant+"\x00"+key, func() (any, error) {
		if id, err, ok := c.Get(tenant, key); ok {
			return outcome{id, err}, nil
		}
		id, err, expiresAt := compute()
		c.Put(tenant, key, id, err, expiresAt)
		return outcome{id, err}, nil
	})
	out := v.(outcome)
	return out.identity, out.err
}

// InvalidateTenant drops every entry for one tenant in a single shard-level
// operation. Other tenants' entries are untouched.
func (c *Cache) InvalidateTenant(tenant string) {
	c.mu.Lock()
	delete(c.shards, tenant)
	c.mu.Unlock()
}

// Len reports the number of live entries for a tenant.
func (c *Cache) Len(tenant string) int {
	c.mu.RLock()
	sh := c.shards[tenant]
	c.mu.RUnlock()
	if sh == nil {
		return 0
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.order.Len()
}

func (c *Cache) shard(tenant string) *shard {
	c.mu.RLock()
	sh := c.shards[tenant]
	c.mu.RUnlock()
	if sh != nil {
		return sh
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if sh = c.shards[tenant]; sh == nil {
		sh = newShard()
		c.shards[tenant] = sh
	}
	return sh
}
