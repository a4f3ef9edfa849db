package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/kailas-cloud/fedsearch/internal/domain"
)

// Memory is an in-process Store and Writer.
type Memory struct {
	mu      sync.RWMutex
	streams map[int64]map[int][][]byte
}

var (
	_ Store  = (*Memory)(nil)
	_ Writer = (*Memory)(nil)
)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{streams: make(map[int64]map[int][][]byte)}
}

// Append adds segments to a stream group, creating the stream if needed.
func (m *Memory) Append(_ context.Context, streamID int64, group int, segments ...[]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	groups, ok := m.streams[streamID]
	if !ok {
		groups = make(map[int][][]byte)
		m.streams[streamID] = groups
	}
	for _, s := range segments {
		groups[group] = append(groups[group], append([]byte(nil), s...))
	}
	return nil
}

// Delete removes a stream.
func (m *Memory) Delete(streamID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.streams, streamID)
}

// Open returns a source over a snapshot of the stream.
func (m *Memory) Open(_ context.Context, streamID int64) (Source, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	groups, ok := m.streams[streamID]
	if !ok {
		return nil, fmt.Errorf("stream %d: %w", streamID, domain.ErrStreamNotFound)
	}
	snap := make(map[int][][]byte, len(groups))
	for g, segs := range groups {
		snap[g] = append([][]byte(nil), segs...)
	}
	return &memorySource{id: streamID, groups: snap}, nil
}

type memorySource struct {
	id     int64
	groups map[int][][]byte
}

func (s *memorySource) StreamID() int64 { return s.id }

func (s *memorySource) Provider(group int) (Provider, error) {
	segs, ok := s.groups[group]
	if !ok {
		return nil, fmt.Errorf("stream %d has no segment group %d", s.id, group)
	}
	return memoryProvider(segs), nil
}

type memoryProvider [][]byte

func (p memoryProvider) Segments(context.Context) (SegmentInputStream, error) {
	return &memoryStream{sel: NewSelection(int64(len(p))), segs: p}, nil
}

type memoryStream struct {
	sel  *Selection
	segs [][]byte
}

func (s *memoryStream) Count() int64 { return s.sel.Count() }

func (s *memoryStream) Include(index int64) error { return s.sel.Include(index) }

func (s *memoryStream) Read(ctx context.Context) ([]Segment, error) {
	idx := s.sel.Sorted()
	out := make([]Segment, 0, len(idx))
	for _, i := range idx {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, Segment{Index: i, Data: s.segs[i]})
	}
	return out, nil
}
