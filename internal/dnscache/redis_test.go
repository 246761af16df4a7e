package dnscache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/alir32a/mydns/internal/dnsmsg"
)

func newTestRedisLayer(t *testing.T) *RedisLayer {
	t.Helper()
	mr := miniredis.RunT(t)
	return NewRedisLayer(mr.Addr(), "", 0)
}

func TestRedisLayerSetThenGet(t *testing.T) {
	r := newTestRedisLayer(t)
	ctx := context.Background()

	records := []dnsmsg.Record{
		{Name: "example.com", Type: dnsmsg.TypeA, TTL: 300, Data: dnsmsg.AData{IP: [4]byte{1, 2, 3, 4}}},
	}
	r.Set(ctx, "example.com", records, time.Minute)

	got, ok := r.Get(ctx, "example.com")
	if !ok {
		t.Fatalf("expected a hit")
	}
	a, ok := got[0].Data.(dnsmsg.AData)
	if !ok || a.IP != [4]byte{1, 2, 3, 4} {
		t.Errorf("unexpected decoded record: %+v", got[0])
	}
}

func TestRedisLayerMiss(t *testing.T) {
	r := newTestRedisLayer(t)
	if _, ok := r.Get(context.Background(), "nowhere.example"); ok {
		t.Fatalf("expected a miss")
	}
}

func TestFillFromCopiesSharedHitLocally(t *testing.T) {
	r := newTestRedisLayer(t)
	c := New()
	ctx := context.Background()

	records := []dnsmsg.Record{
		{Name: "example.com", Type: dnsmsg.TypeA, TTL: 300, Data: dnsmsg.AData{IP: [4]byte{5, 6, 7, 8}}},
	}
	r.Set(ctx, "example.com", records, time.Minute)

	if _, ok := FillFrom(ctx, c, r, "example.com"); !ok {
		t.Fatalf("expected FillFrom to find the shared record")
	}
	if c.Len() != 1 {
		t.Fatalf("expected the shared hit to populate the local cache")
	}

	// A second call must not need the network at all; simulate that by
	// flushing the shared layer and confirming the local copy still hits.
	r.client.FlushAll(ctx)
	if _, ok := c.Get("example.com"); !ok {
		t.Fatalf("expected the local cache to still serve the key")
	}
}

func TestInvalidationPublishesToSubscribers(t *testing.T) {
	r := newTestRedisLayer(t)
	ctx := context.Background()

	ch := r.Subscribe(ctx)
	// miniredis delivers pub/sub synchronously enough for RunT's test
	// harness, but guard against a slow subscribe handshake regardless.
	time.Sleep(10 * time.Millisecond)

	if err := r.Invalidate(ctx, "example.com"); err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}

	select {
	case msg := <-ch:
		if msg.Payload != "example.com" {
			t.Errorf("expected invalidated key example.com, got %q", msg.Payload)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected an invalidation message")
	}
}
