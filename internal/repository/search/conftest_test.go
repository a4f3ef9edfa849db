package search

import (
	"context"
	"sync"
	"testing"

	"github.com/kailas-cloud/fedsearch/internal/db"
	"github.com/kailas-cloud/fedsearch/internal/domain/field"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	createIndexFn func(ctx context.Context, def *db.IndexDefinition) error
	dropIndexFn   func(ctx context.Context, name string) error
	indexExistsFn func(ctx context.Context, name string) (bool, error)
	hsetMultiFn   func(ctx context.Context, items []db.HashSetItem) error
	scanFn        func(ctx context.Context, pattern string) ([]string, error)
	delFn         func(ctx context.Context, key string) error
	searchFn      func(ctx context.Context, q *db.Query) (*db.SearchResult, error)
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func (m *mockStore) DropIndex(ctx context.Context, name string) error {
	if m.dropIndexFn != nil {
		return m.dropIndexFn(ctx, name)
	}
	return nil
}

func (m *mockStore) IndexExists(ctx context.Context, name string) (bool, error) {
	if m.indexExistsFn != nil {
		return m.indexExistsFn(ctx, name)
	}
	return true, nil
}

func (m *mockStore) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	if m.hsetMultiFn != nil {
		return m.hsetMultiFn(ctx, items)
	}
	return nil
}

func (m *mockStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	if m.scanFn != nil {
		return m.scanFn(ctx, pattern)
	}
	return nil, nil
}

func (m *mockStore) Del(ctx context.Context, key string) error {
	if m.delFn != nil {
		return m.delFn(ctx, key)
	}
	return nil
}

func (m *mockStore) Search(ctx context.Context, q *db.Query) (*db.SearchResult, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func newTestRepo(t *testing.T, opts ...Option) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	return New(ms, "fs:", opts...), ms
}

func testCatalog(t *testing.T) field.Catalog {
	t.Helper()
	mk := func(name string, ft field.Type, queryable bool) field.Field {
		f, err := field.New(name, ft, queryable)
		if err != nil {
			t.Fatal(err)
		}
		return f
	}
	return field.MustCatalog(
		mk("UserId", field.Text, true),
		mk("Size", field.Numeric, true),
		mk("EventTime", field.Date, true),
		mk("Raw", field.Text, false),
	)
}

// pagedHits serves entries from a fixed, pre-sorted hit list honouring Offset and Limit.
func pagedHits(hits [][2]string) func(context.Context, *db.Query) (*db.SearchResult, error) {
	return func(_ context.Context, q *db.Query) (*db.SearchResult, error) {
		end := min(q.Offset+q.Limit, len(hits))
		res := &db.SearchResult{Total: len(hits)}
		for i := q.Offset; i < end; i++ {
			res.Entries = append(res.Entries, db.SearchEntry{
				Key:    "fs:doc:s1:" + hits[i][0] + ":" + hits[i][1],
				Fields: map[string]string{"__stream_id": hits[i][0], "__event_id": hits[i][1]},
			})
		}
		return res, nil
	}
}

type collected struct {
	mu   sync.Mutex
	hits []StreamHits
}

func (c *collected) add(_ context.Context, h StreamHits) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits = append(c.hits, h)
	return nil
}
