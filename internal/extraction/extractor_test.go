package extraction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/domain/docref"
	"github.com/kailas-cloud/fedsearch/internal/domain/field"
	"github.com/kailas-cloud/fedsearch/internal/domain/val"
	"github.com/kailas-cloud/fedsearch/internal/storage"
)

func TestExtract_RowsInEventOrder(t *testing.T) {
	mem := storage.NewMemory()
	seed(t, mem, 7, 6)
	x := New(mem, newDefs(), testCatalog(t))
	out := newRows(field.StreamID, field.EventID, "UserId", "Size")

	n, err := x.Extract(context.Background(), Task{
		StreamID: 7,
		EventIDs: []int64{5, 2, 2, 4},
		Pipeline: jsonPipeline.Ref,
		Receiver: out,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 || len(out.got) != 3 {
		t.Fatalf("rows = %d (%v)", n, out.got)
	}
	for i, wantEvent := range []int64{2, 4, 5} {
		r := out.got[i]
		if r[0] != val.Long(7) || r[1] != val.Long(wantEvent) {
			t.Errorf("row %d ids = %v", i, r[:2])
		}
		if r[3] != val.Long(wantEvent*10) {
			t.Errorf("row %d size = %v", i, r[3])
		}
	}
}

func TestExtract_DatesUseSearchTime(t *testing.T) {
	mem := storage.NewMemory()
	segs := [][]byte{[]byte("header"), []byte(`{"When":"day()"}`), []byte("footer")}
	if err := mem.Append(context.Background(), 3, storage.DataGroup, segs...); err != nil {
		t.Fatal(err)
	}
	when, err := field.New("When", field.Date, true)
	if err != nil {
		t.Fatal(err)
	}
	loc := time.FixedZone("UTC-5", -5*3600)
	now := time.Date(2024, 3, 13, 2, 0, 0, 0, time.UTC)
	x := New(mem, newDefs(), field.MustCatalog(when), WithTime(loc, now))
	out := newRows("When")

	if _, err := x.Extract(context.Background(), Task{
		StreamID: 3, EventIDs: []int64{1}, Pipeline: jsonPipeline.Ref, Receiver: out,
	}); err != nil {
		t.Fatal(err)
	}
	want := val.Date(time.Date(2024, 3, 12, 0, 0, 0, 0, loc).UnixMilli())
	if len(out.got) != 1 || out.got[0][0] != want {
		t.Errorf("rows = %v, want [[%v]]", out.got, want)
	}
}

func TestExtract_DeletedStreamIsSilent(t *testing.T) {
	x := New(storage.NewMemory(), newDefs(), testCatalog(t))
	var reported error
	n, err := x.Extract(context.Background(), Task{
		StreamID:  99,
		EventIDs:  []int64{1},
		Pipeline:  jsonPipeline.Ref,
		Receiver:  newRows("UserId"),
		ErrorSink: func(err error) { reported = err },
	})
	if n != 0 || err != nil || reported != nil {
		t.Fatalf("expected silent skip, got n=%d err=%v reported=%v", n, err, reported)
	}
}

func TestExtract_FailureIsReported(t *testing.T) {
	mem := storage.NewMemory()
	seed(t, mem, 1, 2)
	x := New(mem, newDefs(), testCatalog(t))

	tests := []struct {
		name string
		task Task
	}{
		{"unknown pipeline", Task{StreamID: 1, EventIDs: []int64{1}, Pipeline: docref.DocRef{UUID: "nope"}}},
		{"event out of range", Task{StreamID: 1, EventIDs: []int64{10}, Pipeline: jsonPipeline.Ref}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var reported error
			tt.task.Receiver = newRows("UserId")
			tt.task.ErrorSink = func(err error) { reported = err }

			_, err := x.Extract(context.Background(), tt.task)
			var xerr *domain.ExtractionError
			if !errors.As(err, &xerr) || xerr.StreamID != 1 {
				t.Fatalf("expected ExtractionError for stream 1, got %v", err)
			}
			if !errors.Is(err, domain.ErrExtraction) {
				t.Error("expected ErrExtraction in chain")
			}
			if reported != err {
				t.Errorf("sink got %v", reported)
			}
		})
	}
}

func TestExtract_CancelledIsQuiet(t *testing.T) {
	mem := storage.NewMemory()
	seed(t, mem, 1, 2)
	x := New(mem, newDefs(), testCatalog(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var reported error
	n, err := x.Extract(ctx, Task{
		StreamID: 1, EventIDs: []int64{1}, Pipeline: jsonPipeline.Ref,
		Receiver: newRows("UserId"), ErrorSink: func(err error) { reported = err },
	})
	if n != 0 || err != nil || reported != nil {
		t.Fatalf("expected quiet return, got n=%d err=%v reported=%v", n, err, reported)
	}
}

func TestExtract_PipelineDefinitionCached(t *testing.T) {
	mem := storage.NewMemory()
	seed(t, mem, 1, 2)
	seed(t, mem, 2, 2)
	defs := newDefs()
	x := New(mem, defs, testCatalog(t))

	for _, id := range []int64{1, 2} {
		if _, err := x.Extract(context.Background(), Task{
			StreamID: id, EventIDs: []int64{1}, Pipeline: jsonPipeline.Ref, Receiver: newRows("UserId"),
		}); err != nil {
			t.Fatal(err)
		}
	}
	if defs.calls != 1 {
		t.Errorf("definition loads = %d, want 1", defs.calls)
	}
}
