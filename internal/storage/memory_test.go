package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/fedsearch/internal/domain"
)

func TestMemory_ReadSelectedSegments(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.Append(ctx, 7, DataGroup, []byte("h"), []byte("e1"), []byte("e2"), []byte("e3"), []byte("f")); err != nil {
		t.Fatal(err)
	}

	src, err := m.Open(ctx, 7)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if src.StreamID() != 7 {
		t.Errorf("unexpected stream id %d", src.StreamID())
	}
	p, err := src.Provider(DataGroup)
	if err != nil {
		t.Fatal(err)
	}
	in, err := p.Segments(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if in.Count() != 5 {
		t.Fatalf("expected 5 segments, got %d", in.Count())
	}
	for _, i := range []int64{3, 0, 3, 1} {
		if err := in.Include(i); err != nil {
			t.Fatal(err)
		}
	}
	if err := in.Include(5); err == nil {
		t.Error("expected out of range error")
	}

	segs, err := in.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, s := range segs {
		got = append(got, string(s.Data))
	}
	if len(got) != 3 || got[0] != "h" || got[1] != "e1" || got[2] != "e3" {
		t.Errorf("unexpected segments %v", got)
	}
}

func TestMemory_Missing(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_ = m.Append(ctx, 1, DataGroup, []byte("h"))
	m.Delete(1)

	if _, err := m.Open(ctx, 1); !errors.Is(err, domain.ErrStreamNotFound) {
		t.Errorf("expected ErrStreamNotFound, got %v", err)
	}

	_ = m.Append(ctx, 2, DataGroup, []byte("h"))
	src, _ := m.Open(ctx, 2)
	if _, err := src.Provider(9); err == nil {
		t.Error("expected missing group error")
	}
}

func TestMemoryStream_ReadHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewMemory()
	_ = m.Append(ctx, 1, DataGroup, []byte("h"), []byte("f"))
	src, _ := m.Open(ctx, 1)
	p, _ := src.Provider(DataGroup)
	in, _ := p.Segments(ctx)
	_ = in.Include(0)
	cancel()
	if _, err := in.Read(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
