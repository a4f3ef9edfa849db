package search

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kailas-cloud/fedsearch/internal/cluster"
	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/domain/docref"
	"github.com/kailas-cloud/fedsearch/internal/domain/field"
	"github.com/kailas-cloud/fedsearch/internal/domain/shard"
	"github.com/kailas-cloud/fedsearch/internal/pipeline"
	"github.com/kailas-cloud/fedsearch/internal/resultstore"
)

var (
	dataSource   = docref.DocRef{Type: docref.TypeDataSource, UUID: "5a1f0a00-0000-4000-8000-000000000001", Name: "events"}
	jsonPipeline = docref.DocRef{Type: docref.TypePipeline, UUID: "5a1f0a00-0000-4000-8000-000000000002", Name: "json"}
)

// --- Mocks ---

type mockDocs struct {
	catalogErr error
}

func (m *mockDocs) Catalog(_ context.Context, ds docref.DocRef) (field.Catalog, error) {
	if m.catalogErr != nil {
		return field.Catalog{}, m.catalogErr
	}
	if ds.UUID != dataSource.UUID {
		return field.Catalog{}, fmt.Errorf("data source %s: %w", ds.UUID, domain.ErrNotFound)
	}
	u, _ := field.New("UserId", field.Text, true)
	s, _ := field.New("Size", field.Numeric, true)
	return field.MustCatalog(u, s), nil
}

func (m *mockDocs) Pipeline(_ context.Context, ref docref.DocRef) (pipeline.Definition, error) {
	return pipeline.Definition{Ref: ref, Parser: pipeline.ParserSpec{Type: pipeline.JSON}}, nil
}

func (m *mockDocs) Words(context.Context, docref.DocRef) ([]string, error) { return nil, nil }

func (m *mockDocs) Descendants(context.Context, docref.DocRef, string) ([]docref.DocRef, error) {
	return nil, nil
}

type mockShards struct {
	shards []shard.Shard
	err    error
}

func (m *mockShards) List(context.Context, docref.DocRef) ([]shard.Shard, error) {
	return m.shards, m.err
}

type mockNodes struct {
	local string
	down  map[string]bool
}

func (m *mockNodes) Local() string { return m.local }

func (m *mockNodes) Available(_ context.Context, name string) (cluster.Node, bool) {
	if m.down[name] {
		return cluster.Node{}, false
	}
	return cluster.Node{Name: name, Enabled: true}, true
}

type mockClient struct {
	mu       sync.Mutex
	requests map[string]cluster.NodeSearchRequest
	searchFn func(ctx context.Context, node cluster.Node, fn cluster.ResultFunc) error
}

func (m *mockClient) Search(ctx context.Context, node cluster.Node, req cluster.NodeSearchRequest, fn cluster.ResultFunc) error {
	m.mu.Lock()
	if m.requests == nil {
		m.requests = make(map[string]cluster.NodeSearchRequest)
	}
	m.requests[node.Name] = req
	m.mu.Unlock()
	return m.searchFn(ctx, node, fn)
}

func (m *mockClient) Terminate(context.Context, cluster.Node, string) (int, error) { return 0, nil }

type mockTerminator struct {
	mu    sync.Mutex
	calls []string
}

func (m *mockTerminator) TerminateAll(_ context.Context, id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, id)
	return 1
}

func (m *mockTerminator) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// --- Helpers ---

func newResultStore(t *testing.T) *resultstore.Store {
	t.Helper()
	rs, err := resultstore.New(16, 0)
	if err != nil {
		t.Fatal(err)
	}
	return rs
}

func testConfig() Config {
	return Config{AwaitInterval: 5 * time.Millisecond, SendFrequency: 5 * time.Millisecond}
}

func waitComplete(t *testing.T, c *Collector) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(3 * time.Second):
		t.Fatalf("search did not complete, state %s", c.State())
	}
}
