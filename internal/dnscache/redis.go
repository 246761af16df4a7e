package dnscache

import (
	"bytes"
	"context"
	"encoding/gob"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alir32a/mydns/internal/dnsmetrics"
	"github.com/alir32a/mydns/internal/dnsmsg"
)

// InvalidationChannel is the pub/sub topic used to tell every instance
// sharing an L2 cache that a key must be dropped from its local Cache.
const InvalidationChannel = "mydns:invalidation"

func init() {
	gob.Register(dnsmsg.AData{})
	gob.Register(dnsmsg.AAAAData{})
	gob.Register(dnsmsg.NSData{})
	gob.Register(dnsmsg.CNAMEData{})
	gob.Register(dnsmsg.PTRData{})
	gob.Register(dnsmsg.TXTData{})
	gob.Register(dnsmsg.MXData{})
	gob.Register(&dnsmsg.SOAData{})
	gob.Register(dnsmsg.HINFOData{})
	gob.Register(dnsmsg.SRVData{})
	gob.Register(dnsmsg.UnknownData{})
}

// RedisLayer is an optional shared L2 cache for a local Cache: records Set
// on one instance are visible to every other instance sharing the same
// Redis deployment. The resolvers do not use it; FillFrom is the helper
// that puts it behind a local Cache.
type RedisLayer struct {
	client *redis.Client
}

// NewRedisLayer connects to a Redis instance (or a miniredis stand-in, for
// tests) used purely as a cache; no persistence guarantees are required.
func NewRedisLayer(addr, password string, db int) *RedisLayer {
	return &RedisLayer{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// Ping verifies connectivity at startup so a misconfigured L2 cache fails
// fast instead of silently falling back to local-only caching on every
// lookup.
func (r *RedisLayer) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Get looks up key in the shared cache. The caller is expected to fall
// back to its own recursive/forwarding lookup on a miss.
func (r *RedisLayer) Get(ctx context.Context, key string) ([]dnsmsg.Record, bool) {
	raw, err := r.client.Get(ctx, "mydns:"+key).Bytes()
	if err != nil {
		dnsmetrics.CacheOperations.WithLabelValues("L2", "miss").Inc()
		return nil, false
	}
	var records []dnsmsg.Record
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&records); err != nil {
		dnsmetrics.CacheOperations.WithLabelValues("L2", "miss").Inc()
		return nil, false
	}
	dnsmetrics.CacheOperations.WithLabelValues("L2", "hit").Inc()
	return records, true
}

// Set publishes records under key with the given expiry. Encoding failures
// are swallowed: the L2 cache is an optimization, not a correctness
// requirement, so a bad encode just means the next lookup misses it.
func (r *RedisLayer) Set(ctx context.Context, key string, records []dnsmsg.Record, ttl time.Duration) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(records); err != nil {
		return
	}
	r.client.Set(ctx, "mydns:"+key, buf.Bytes(), ttl)
}

// Invalidate publishes key on InvalidationChannel for every instance
// subscribed via Subscribe. Dropping the key from a local Cache is left
// to the subscriber; zone reloads do not call Invalidate.
func (r *RedisLayer) Invalidate(ctx context.Context, key string) error {
	return r.client.Publish(ctx, InvalidationChannel, key).Err()
}

// Subscribe returns the stream of keys invalidated by other instances.
func (r *RedisLayer) Subscribe(ctx context.Context) <-chan *redis.Message {
	return r.client.Subscribe(ctx, InvalidationChannel).Channel()
}

// FillFrom wires a RedisLayer in front of a local Cache: a miss on c is
// retried against the shared layer, and a shared hit is copied back into c
// so subsequent local lookups avoid the network round trip.
func FillFrom(ctx context.Context, c *Cache, r *RedisLayer, key string) ([]dnsmsg.Record, bool) {
	if recs, ok := c.Get(key); ok {
		return recs, true
	}
	recs, ok := r.Get(ctx, key)
	if !ok {
		return nil, false
	}
	c.Set(key, recs)
	return recs, true
}
