// Package storage defines access to segmented event streams.
//
// A stream is an ordered list of segments. Segment 0 is the header, the last
// segment is the footer, and every segment in between is one event whose
// event id is its segment index.
package storage

import (
	"context"
)

// DataGroup is the segment group holding raw event data.
const DataGroup = 0

// Store opens streams by id.
type Store interface {
	// Open returns domain.ErrStreamNotFound when the stream was deleted or purged.
	Open(ctx context.Context, streamID int64) (Source, error)
}

// Source is one opened stream.
type Source interface {
	StreamID() int64
	Provider(group int) (Provider, error)
}

// Provider yields segment-addressable input for one segment group.
type Provider interface {
	Segments(ctx context.Context) (SegmentInputStream, error)
}

// Segment is one addressed chunk of a stream.
type Segment struct {
	Index int64
	Data  []byte
}

// SegmentInputStream reads a chosen subset of segments.
type SegmentInputStream interface {
	// Count returns the number of segments in the group.
	Count() int64
	// Include marks a segment for reading. Repeats are ignored.
	Include(index int64) error
	// Read returns the included segments in ascending index order.
	Read(ctx context.Context) ([]Segment, error)
}

// Writer appends segments to streams. Used to seed storage.
type Writer interface {
	Append(ctx context.Context, streamID int64, group int, segments ...[]byte) error
}
