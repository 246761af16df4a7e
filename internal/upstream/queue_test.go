package upstream

import (
	"net"
	"testing"
)

func target(port int) Target {
	return Target{Addr: &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}, Weight: 1}
}

func TestStandardQueueWraps(t *testing.T) {
	q := NewStandardQueue([]Target{target(1), target(2)})

	first, _ := q.Fetch()
	if first.Addr.Port != 1 {
		t.Fatalf("expected first target, got %v", first)
	}
	q.Next()
	second, _ := q.Fetch()
	if second.Addr.Port != 2 {
		t.Fatalf("expected second target, got %v", second)
	}
	q.Next()
	wrapped, _ := q.Fetch()
	if wrapped.Addr.Port != 1 {
		t.Fatalf("expected wrap-around to first target, got %v", wrapped)
	}
}

func TestStandardQueueRemovePopsCurrent(t *testing.T) {
	q := NewStandardQueue([]Target{target(1), target(2), target(3)})
	q.Next() // cursor -> target 2

	removed, ok := q.Remove()
	if !ok || removed.Addr.Port != 2 {
		t.Fatalf("expected to remove target 2, got %v", removed)
	}
	if q.Len() != 2 {
		t.Fatalf("expected 2 remaining targets, got %d", q.Len())
	}
	cur, _ := q.Fetch()
	if cur.Addr.Port != 3 {
		t.Fatalf("expected cursor to land on target 3, got %v", cur)
	}
}

func TestStandardQueuePush(t *testing.T) {
	q := NewStandardQueue(nil)
	q.Push(target(5))
	if q.Len() != 1 {
		t.Fatalf("expected 1 target after push, got %d", q.Len())
	}
	cur, ok := q.Fetch()
	if !ok || cur.Addr.Port != 5 {
		t.Fatalf("expected pushed target, got %v", cur)
	}
}

func TestWeightedQueueServesWeightTimes(t *testing.T) {
	a := Target{Addr: &net.UDPAddr{Port: 1}, Weight: 2}
	b := Target{Addr: &net.UDPAddr{Port: 2}, Weight: 1}
	q := NewWeightedQueue([]Target{a, b})

	var ports []int
	for i := 0; i < 6; i++ {
		cur, ok := q.Fetch()
		if !ok {
			t.Fatalf("unexpected empty queue")
		}
		ports = append(ports, cur.Addr.Port)
	}

	want := []int{1, 1, 2, 1, 1, 2}
	for i, p := range want {
		if ports[i] != p {
			t.Fatalf("expected serve order %v, got %v", want, ports)
		}
	}
}

func TestWeightedQueueRemoveResetsCounter(t *testing.T) {
	a := Target{Addr: &net.UDPAddr{Port: 1}, Weight: 3}
	b := Target{Addr: &net.UDPAddr{Port: 2}, Weight: 1}
	q := NewWeightedQueue([]Target{a, b})

	q.Fetch() // serve 1/3 of target 1
	removed, ok := q.Remove()
	if !ok || removed.Addr.Port != 1 {
		t.Fatalf("expected to remove target 1, got %v", removed)
	}
	cur, _ := q.Fetch()
	if cur.Addr.Port != 2 {
		t.Fatalf("expected only remaining target, got %v", cur)
	}
}
