package extraction

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/domain/docref"
	"github.com/kailas-cloud/fedsearch/internal/domain/field"
	"github.com/kailas-cloud/fedsearch/internal/domain/row"
	"github.com/kailas-cloud/fedsearch/internal/domain/val"
	"github.com/kailas-cloud/fedsearch/internal/pipeline"
	"github.com/kailas-cloud/fedsearch/internal/storage"
)

var jsonPipeline = pipeline.Definition{
	Ref:    docref.DocRef{Type: docref.TypePipeline, UUID: "3f1a0c55-0000-4000-8000-000000000001", Name: "json"},
	Parser: pipeline.ParserSpec{Type: pipeline.JSON},
}

type mockDefs struct {
	mu    sync.Mutex
	calls int
	defs  map[string]pipeline.Definition
}

func (m *mockDefs) Pipeline(_ context.Context, ref docref.DocRef) (pipeline.Definition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	d, ok := m.defs[ref.UUID]
	if !ok {
		return pipeline.Definition{}, fmt.Errorf("pipeline %s: %w", ref.UUID, domain.ErrNotFound)
	}
	return d, nil
}

func newDefs() *mockDefs {
	return &mockDefs{defs: map[string]pipeline.Definition{jsonPipeline.Ref.UUID: jsonPipeline}}
}

type rows struct {
	mu    sync.Mutex
	index *row.FieldIndex
	got   [][]val.Val
}

func newRows(names ...string) *rows { return &rows{index: row.NewFieldIndex(names...)} }

func (r *rows) FieldIndex() *row.FieldIndex { return r.index }

func (r *rows) Receive(v []val.Val) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, v)
}

func testCatalog(t *testing.T) field.Catalog {
	t.Helper()
	u, err := field.New("UserId", field.Text, true)
	if err != nil {
		t.Fatal(err)
	}
	s, err := field.New("Size", field.Numeric, true)
	if err != nil {
		t.Fatal(err)
	}
	return field.MustCatalog(u, s)
}

// seed writes a header, n JSON events and a footer to stream id.
func seed(t *testing.T, m *storage.Memory, id int64, n int) {
	t.Helper()
	segs := [][]byte{[]byte("header")}
	for i := 1; i <= n; i++ {
		segs = append(segs, fmt.Appendf(nil, `{"UserId":"user%d","Size":%d}`, i, i*10))
	}
	segs = append(segs, []byte("footer"))
	if err := m.Append(context.Background(), id, storage.DataGroup, segs...); err != nil {
		t.Fatal(err)
	}
}
