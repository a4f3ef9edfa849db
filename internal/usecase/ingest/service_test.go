package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/storage"
)

func TestIngest(t *testing.T) {
	f := newFixture(t)
	if err := f.svc.Ingest(context.Background(), userBatch(7, 3)); err != nil {
		t.Fatal(err)
	}

	if len(f.index.ensured) != 1 || f.index.ensured[0] != "s1" {
		t.Errorf("ensured = %v", f.index.ensured)
	}
	if len(f.index.events) != 3 {
		t.Fatalf("indexed %d events", len(f.index.events))
	}
	for i, e := range f.index.events {
		if e.event != int64(i+1) || e.stream != 7 {
			t.Errorf("event %d = %d:%d", i, e.stream, e.event)
		}
	}
	if len(f.shards.registered) != 1 || f.shards.registered[0].Node != "n1" {
		t.Errorf("registered = %+v", f.shards.registered)
	}

	src, err := f.streams.Open(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	p, _ := src.Provider(storage.DataGroup)
	segs, err := p.Segments(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if segs.Count() != 5 {
		t.Errorf("segments = %d, want header + 3 + footer", segs.Count())
	}
	_ = segs.Include(2)
	got, _ := segs.Read(context.Background())
	if string(got[0].Data) != `{"UserId":"user2","Size":2}` {
		t.Errorf("segment 2 = %s", got[0].Data)
	}
}

func TestIngest_Rejects(t *testing.T) {
	unknownField := userBatch(1, 1)
	unknownField.Events[0].Values["Nope"] = unknownField.Events[0].Values["Size"]

	tests := []struct {
		name   string
		mutate func(*Batch)
		target error
	}{
		{"no data source", func(b *Batch) { b.DataSource.UUID = "" }, domain.ErrInvalidRequest},
		{"no shard", func(b *Batch) { b.Shard = "" }, domain.ErrInvalidRequest},
		{"negative stream", func(b *Batch) { b.StreamID = -1 }, domain.ErrInvalidRequest},
		{"no events", func(b *Batch) { b.Events = nil }, domain.ErrInvalidRequest},
		{"unknown data source", func(b *Batch) { b.DataSource.UUID = "x" }, domain.ErrNotFound},
		{"unknown field", func(b *Batch) { *b = unknownField }, domain.ErrFieldNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			b := userBatch(1, 2)
			tt.mutate(&b)
			err := f.svc.Ingest(context.Background(), b)
			if !errors.Is(err, tt.target) {
				t.Fatalf("expected %v, got %v", tt.target, err)
			}
			if len(f.index.events) != 0 || len(f.shards.registered) != 0 {
				t.Error("rejected batch must not write")
			}
		})
	}
}

func TestIngest_MaxBatchSize(t *testing.T) {
	f := newFixture(t)
	f.svc.WithMaxBatchSize(2)
	if err := f.svc.Ingest(context.Background(), userBatch(1, 3)); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestIngest_ExistingStream(t *testing.T) {
	f := newFixture(t)
	if err := f.svc.Ingest(context.Background(), userBatch(3, 1)); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.Ingest(context.Background(), userBatch(3, 1)); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestIngestAll_StopsAtFirstFailure(t *testing.T) {
	f := newFixture(t)
	f.index.indexFn = func(eventID int64) error {
		if eventID == 2 {
			return errors.New("index down")
		}
		return nil
	}
	st, err := f.svc.IngestAll(context.Background(), []Batch{userBatch(1, 1), userBatch(2, 2), userBatch(3, 1)})
	if err == nil || !strings.Contains(err.Error(), "stream 2") {
		t.Fatalf("err = %v", err)
	}
	if st.Streams != 1 || st.Events != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestRemoveShard(t *testing.T) {
	f := newFixture(t)
	if err := f.svc.RemoveShard(context.Background(), users, "s1"); err != nil {
		t.Fatal(err)
	}
	if len(f.shards.removed) != 1 || f.shards.removed[0] != "s1" {
		t.Errorf("removed = %v", f.shards.removed)
	}
	if len(f.index.dropped) != 1 || f.index.dropped[0] != "s1" {
		t.Errorf("dropped = %v", f.index.dropped)
	}

	if err := f.svc.RemoveShard(context.Background(), users, ""); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}

	f = newFixture(t)
	f.index.dropErr = errors.New("index down")
	if err := f.svc.RemoveShard(context.Background(), users, "s1"); err == nil {
		t.Fatal("expected error")
	}
	if len(f.shards.removed) != 1 {
		t.Error("shard must leave the registry before its index is dropped")
	}
}

func TestDecode(t *testing.T) {
	in := `{"dataSource":{"type":"DataSource","uuid":"a"},"shard":"s1","streamId":1,"events":[{"segment":"x","values":{"Size":5}}]}
{"dataSource":{"type":"DataSource","uuid":"a"},"shard":"s1","streamId":2,"events":[]}
`
	got, err := Decode(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].StreamID != 1 || got[1].StreamID != 2 {
		t.Fatalf("batches = %+v", got)
	}
	if n, ok := got[0].Events[0].Values["Size"].AsLong(); !ok || n != 5 {
		t.Errorf("Size = %v", got[0].Events[0].Values["Size"])
	}

	if _, err := Decode(strings.NewReader(`{"shard":"s1","bogus":1}`)); err == nil {
		t.Error("expected unknown field error")
	}
}
