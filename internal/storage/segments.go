package storage

import (
	"fmt"
	"slices"
)

// Selection tracks included segment indexes for SegmentInputStream implementations.
type Selection struct {
	count   int64
	indexes map[int64]struct{}
}

// NewSelection creates a selection over count segments.
func NewSelection(count int64) *Selection {
	return &Selection{count: count, indexes: make(map[int64]struct{})}
}

// Count returns the number of segments.
func (s *Selection) Count() int64 { return s.count }

// Include marks index for reading.
func (s *Selection) Include(index int64) error {
	if index < 0 || index >= s.count {
		return fmt.Errorf("segment %d out of range [0,%d)", index, s.count)
	}
	s.indexes[index] = struct{}{}
	return nil
}

// Sorted returns the included indexes in ascending order.
func (s *Selection) Sorted() []int64 {
	out := make([]int64, 0, len(s.indexes))
	for i := range s.indexes {
		out = append(out, i)
	}
	slices.Sort(out)
	return out
}
