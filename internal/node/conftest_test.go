package node

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fedsearch/internal/cluster"
	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/domain/docref"
	"github.com/kailas-cloud/fedsearch/internal/domain/field"
	"github.com/kailas-cloud/fedsearch/internal/extraction"
	"github.com/kailas-cloud/fedsearch/internal/pipeline"
	"github.com/kailas-cloud/fedsearch/internal/repository/search"
	"github.com/kailas-cloud/fedsearch/internal/storage"
)

var jsonPipeline = docref.DocRef{Type: docref.TypePipeline, UUID: "7d0e2a61-0000-4000-8000-000000000001", Name: "json"}

type mockDocs struct {
	catalogFn func(ctx context.Context, ds docref.DocRef) (field.Catalog, error)
}

func (m *mockDocs) Catalog(ctx context.Context, ds docref.DocRef) (field.Catalog, error) {
	if m.catalogFn != nil {
		return m.catalogFn(ctx, ds)
	}
	u, _ := field.New("UserId", field.Text, true)
	s, _ := field.New("Size", field.Numeric, true)
	return field.MustCatalog(u, s), nil
}

func (m *mockDocs) Pipeline(_ context.Context, ref docref.DocRef) (pipeline.Definition, error) {
	if ref.UUID != jsonPipeline.UUID {
		return pipeline.Definition{}, fmt.Errorf("pipeline %s: %w", ref.UUID, domain.ErrNotFound)
	}
	return pipeline.Definition{Ref: jsonPipeline, Parser: pipeline.ParserSpec{Type: pipeline.JSON}}, nil
}

func (m *mockDocs) Words(context.Context, docref.DocRef) ([]string, error) { return nil, nil }

func (m *mockDocs) Descendants(context.Context, docref.DocRef, string) ([]docref.DocRef, error) {
	return nil, nil
}

type mockShards struct {
	mu       sync.Mutex
	queries  []string
	searchFn func(ctx context.Context, id string, fn search.HitFunc) (int, error)
}

func (m *mockShards) SearchShards(ctx context.Context, ids []string, query string, fn search.HitFunc) []search.ShardResult {
	m.mu.Lock()
	m.queries = append(m.queries, query)
	m.mu.Unlock()
	out := make([]search.ShardResult, len(ids))
	for i, id := range ids {
		n, err := m.searchFn(ctx, id, fn)
		out[i] = search.ShardResult{ShardID: id, Hits: n, Err: err}
	}
	return out
}

// hitsOf returns a search that reports events of one stream per shard.
func hitsOf(streams map[string]search.StreamHits) func(context.Context, string, search.HitFunc) (int, error) {
	return func(ctx context.Context, id string, fn search.HitFunc) (int, error) {
		h, ok := streams[id]
		if !ok {
			return 0, nil
		}
		return len(h.EventIDs), fn(ctx, h)
	}
}

type sink struct {
	mu      sync.Mutex
	results []cluster.NodeResult
}

func (s *sink) send(r cluster.NodeResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
	return nil
}

func (s *sink) rows(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.results {
		for _, p := range r.Payloads {
			if p.Pipeline == key {
				n += len(p.Rows)
			}
		}
	}
	return n
}

func (s *sink) errors() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, r := range s.results {
		out = append(out, r.Errors...)
	}
	return out
}

func (s *sink) last() cluster.NodeResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results[len(s.results)-1]
}

func seedStream(t *testing.T, m *storage.Memory, id int64, n int) {
	t.Helper()
	segs := [][]byte{[]byte("header")}
	for i := 1; i <= n; i++ {
		segs = append(segs, fmt.Appendf(nil, `{"UserId":"user%d","Size":%d}`, i, i))
	}
	segs = append(segs, []byte("footer"))
	if err := m.Append(context.Background(), id, storage.DataGroup, segs...); err != nil {
		t.Fatal(err)
	}
}

func newTestExecutor(t *testing.T, shards *mockShards, store storage.Store) *Executor {
	t.Helper()
	pool, err := extraction.NewPool(4, 0, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = pool.Release(0) })
	return NewExecutor("n1", &mockDocs{}, shards, store, pool)
}
