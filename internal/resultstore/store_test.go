package resultstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/domain/query"
	"github.com/kailas-cloud/fedsearch/internal/domain/search"
	"github.com/kailas-cloud/fedsearch/internal/metrics"
)

type mockSearch struct {
	mu         sync.Mutex
	complete   bool
	snapshots  int
	terminated int
}

func (m *mockSearch) Snapshot() search.Response {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots++
	return search.Response{Complete: m.complete, State: "AWAITING"}
}

func (m *mockSearch) IsComplete() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.complete
}

func (m *mockSearch) Terminate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminated++
	m.complete = true
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newStore(t *testing.T, size int, idle time.Duration, c *clock) *Store {
	t.Helper()
	s, err := New(size, idle, WithClock(c.now))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestStore_SizeEvictionTerminates(t *testing.T) {
	s := newStore(t, 2, 0, &clock{t: time.Now()})
	a, b, c := &mockSearch{}, &mockSearch{}, &mockSearch{}
	before := testutil.ToFloat64(metrics.ResultStoreEvictionsTotal.WithLabelValues(ReasonSize))

	s.PutIfAbsent("a", a)
	s.PutIfAbsent("b", b)
	s.Get("a")
	s.PutIfAbsent("c", c)

	if s.Contains("b") {
		t.Error("least recently used entry must be evicted")
	}
	if b.terminated != 1 || a.terminated != 0 {
		t.Errorf("terminated a=%d b=%d", a.terminated, b.terminated)
	}
	if got := testutil.ToFloat64(metrics.ResultStoreEvictionsTotal.WithLabelValues(ReasonSize)); got != before+1 {
		t.Errorf("size evictions = %v, want %v", got, before+1)
	}
}

func TestStore_PutIfAbsentKeepsFirst(t *testing.T) {
	s := newStore(t, 10, 0, &clock{t: time.Now()})
	first, second := &mockSearch{}, &mockSearch{}

	if got, added := s.PutIfAbsent("k", first); !added || got != first {
		t.Fatalf("first put = %v, %v", got, added)
	}
	if got, added := s.PutIfAbsent("k", second); added || got != first {
		t.Fatalf("second put = %v, %v", got, added)
	}
	if first.terminated != 0 || second.terminated != 0 {
		t.Errorf("terminated first=%d second=%d", first.terminated, second.terminated)
	}
	if sr, _ := s.Get("k"); sr != first {
		t.Error("stored search replaced")
	}
}

func TestStore_RemoveAndSweep(t *testing.T) {
	c := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := newStore(t, 10, time.Minute, c)
	old, fresh := &mockSearch{}, &mockSearch{}
	s.PutIfAbsent("old", old)
	c.t = c.t.Add(50 * time.Second)
	s.PutIfAbsent("fresh", fresh)
	c.t = c.t.Add(20 * time.Second)

	if n := s.Sweep(); n != 1 {
		t.Errorf("Sweep = %d, want 1", n)
	}
	if s.Contains("old") || !s.Contains("fresh") || old.terminated != 1 {
		t.Errorf("old stored=%v terminated=%d", s.Contains("old"), old.terminated)
	}

	if !s.Remove("fresh") || fresh.terminated != 1 {
		t.Error("Remove must terminate the search")
	}
	if s.Remove("fresh") {
		t.Error("second Remove must report false")
	}
}

func TestStore_CreateMemoisesFinalResponse(t *testing.T) {
	s := newStore(t, 10, 0, &clock{t: time.Now()})
	m := &mockSearch{}
	s.PutIfAbsent("k", m)

	if _, err := s.Create("k"); err != nil {
		t.Fatal(err)
	}
	m.mu.Lock()
	m.complete = true
	m.mu.Unlock()
	first, _ := s.Create("k")
	second, _ := s.Create("k")
	if !first.Complete || !second.Complete {
		t.Error("expected complete responses")
	}
	if m.snapshots != 2 {
		t.Errorf("snapshots = %d, want 2", m.snapshots)
	}

	_, err := s.Create(query.Key("missing"))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_RunStopsWithContext(t *testing.T) {
	s := newStore(t, 10, time.Millisecond, &clock{t: time.Now()})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
