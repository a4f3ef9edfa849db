package ingest

import (
	"context"
	"fmt"
	"testing"

	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/domain/docref"
	"github.com/kailas-cloud/fedsearch/internal/domain/field"
	domshard "github.com/kailas-cloud/fedsearch/internal/domain/shard"
	"github.com/kailas-cloud/fedsearch/internal/domain/val"
	"github.com/kailas-cloud/fedsearch/internal/storage"
)

var users = docref.DocRef{Type: docref.TypeDataSource, UUID: "5f1c8a9e-0d2b-4c3a-8e7f-6b5a4c3d2e1f"}

// --- Mocks ---

type mockDocs struct{}

func (mockDocs) Catalog(_ context.Context, ds docref.DocRef) (field.Catalog, error) {
	if ds.UUID != users.UUID {
		return field.Catalog{}, fmt.Errorf("data source %s: %w", ds.UUID, domain.ErrNotFound)
	}
	userID, _ := field.New("UserId", field.Text, true)
	size, _ := field.New("Size", field.Numeric, true)
	return field.MustCatalog(userID, size), nil
}

type indexed struct {
	shard  string
	stream int64
	event  int64
	values map[string]val.Val
}

type mockIndex struct {
	ensured []string
	events  []indexed
	dropped []string
	dropErr error
	indexFn func(eventID int64) error
}

func (m *mockIndex) EnsureIndex(_ context.Context, shardID string, _ field.Catalog) error {
	m.ensured = append(m.ensured, shardID)
	return nil
}

func (m *mockIndex) IndexEvents(
	_ context.Context, shardID string, _ field.Catalog, streamID, firstEventID int64, values []map[string]val.Val,
) error {
	for i, v := range values {
		eventID := firstEventID + int64(i)
		if m.indexFn != nil {
			if err := m.indexFn(eventID); err != nil {
				return err
			}
		}
		m.events = append(m.events, indexed{shardID, streamID, eventID, v})
	}
	return nil
}

func (m *mockIndex) DropShard(_ context.Context, shardID string) error {
	if m.dropErr != nil {
		return m.dropErr
	}
	m.dropped = append(m.dropped, shardID)
	return nil
}

type mockShards struct {
	registered []domshard.Shard
	removed    []string
}

func (m *mockShards) Register(_ context.Context, _ docref.DocRef, s domshard.Shard) error {
	m.registered = append(m.registered, s)
	return nil
}

func (m *mockShards) Remove(_ context.Context, _ docref.DocRef, shardID string) error {
	m.removed = append(m.removed, shardID)
	return nil
}

type fixture struct {
	svc     *Service
	index   *mockIndex
	shards  *mockShards
	streams *storage.Memory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{index: &mockIndex{}, shards: &mockShards{}, streams: storage.NewMemory()}
	f.svc = New("n1", mockDocs{}, f.index, f.streams, f.shards)
	return f
}

func userBatch(stream int64, n int) Batch {
	b := Batch{DataSource: users, Shard: "s1", StreamID: stream, Header: "[", Footer: "]"}
	for i := 1; i <= n; i++ {
		b.Events = append(b.Events, Event{
			Segment: fmt.Sprintf(`{"UserId":"user%d","Size":%d}`, i, i),
			Values:  map[string]val.Val{"UserId": val.String(fmt.Sprintf("user%d", i)), "Size": val.Long(int64(i))},
		})
	}
	return b
}
