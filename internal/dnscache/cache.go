// Package dnscache implements the TTL-indexed domain-name cache shared by
// the recursive, forwarding and authoritative resolvers. An optional Redis
// layer (redis.go) sits in front of it for cross-instance sharing.
package dnscache

import (
	"sync"
	"time"

	"github.com/alir32a/mydns/internal/dnsmetrics"
	"github.com/alir32a/mydns/internal/dnsmsg"
)

type entry struct {
	records   []dnsmsg.Record
	timestamp time.Time
}

// Cache is a concurrent-safe mapping from lowercased domain name to the set
// of records last learned for it. Many goroutines may call Get
// concurrently; Set calls are serialized against both Get and each other.
// Eviction is lazy: an expired entry is only removed the next time it is
// read.
type Cache struct {
	mu    sync.RWMutex
	items map[string]*entry
	now   func() time.Time
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{
		items: make(map[string]*entry),
		now:   time.Now,
	}
}

// Get returns the subset of records under key that are still fresh. If the
// entry exists but every record in it has expired, the key is removed and
// Get reports a miss — the same call that observes total expiry is the one
// that evicts. A partial expiry filters the expired records out of the
// returned slice but leaves the stored entry untouched.
func (c *Cache) Get(key string) ([]dnsmsg.Record, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	if !ok {
		c.mu.RUnlock()
		dnsmetrics.CacheOperations.WithLabelValues("L1", "miss").Inc()
		return nil, false
	}
	fresh := freshRecords(e, c.now())
	c.mu.RUnlock()

	if len(fresh) == 0 {
		c.mu.Lock()
		// Re-check under the write lock: another goroutine may have
		// replaced the entry with a fresh Set while we upgraded locks.
		if cur, ok := c.items[key]; ok && cur == e {
			delete(c.items, key)
		}
		c.mu.Unlock()
		dnsmetrics.CacheOperations.WithLabelValues("L1", "miss").Inc()
		return nil, false
	}
	dnsmetrics.CacheOperations.WithLabelValues("L1", "hit").Inc()
	return fresh, true
}

func freshRecords(e *entry, now time.Time) []dnsmsg.Record {
	var fresh []dnsmsg.Record
	for _, rec := range e.records {
		if now.Sub(e.timestamp) < time.Duration(rec.EffectiveTTL())*time.Second {
			fresh = append(fresh, rec)
		}
	}
	return fresh
}

// Set inserts records under key, replacing any prior entry and resetting
// the freshness clock. The slice is never mutated after insertion, so
// callers may share it across concurrent readers without copying.
func (c *Cache) Set(key string, records []dnsmsg.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = &entry{records: records, timestamp: c.now()}
}

// Delete removes key unconditionally, used by zone reloads.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Len reports the number of keys currently stored, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
