// Package ingest loads streams into storage and indexes their events so they can be searched.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/domain/docref"
	domshard "github.com/kailas-cloud/fedsearch/internal/domain/shard"
	"github.com/kailas-cloud/fedsearch/internal/domain/val"
	"github.com/kailas-cloud/fedsearch/internal/logger"
	"github.com/kailas-cloud/fedsearch/internal/storage"
)

// MaxBatchSize is the maximum number of events per stream.
const MaxBatchSize = 10000

// Event is one record of a stream: its raw segment and the values indexed for it.
type Event struct {
	Segment string             `json:"segment"`
	Values  map[string]val.Val `json:"values"`
}

// Batch is a complete stream. Segment 0 is the header, events follow in order and the
// footer closes the stream, so an event's id is its segment index.
type Batch struct {
	DataSource docref.DocRef `json:"dataSource"`
	Shard      string        `json:"shard"`
	StreamID   int64         `json:"streamId"`
	Header     string        `json:"header"`
	Footer     string        `json:"footer"`
	Events     []Event       `json:"events"`
}

// Stats summarizes an ingest run.
type Stats struct {
	Streams int `json:"streams"`
	Events  int `json:"events"`
}

// Service writes streams and their index entries for the local node.
type Service struct {
	node         string
	docs         CatalogReader
	index        Indexer
	streams      Streams
	shards       ShardRegistrar
	maxBatchSize int
}

// New creates an ingest service owning shards on node.
func New(node string, docs CatalogReader, index Indexer, streams Streams, shards ShardRegistrar) *Service {
	return &Service{
		node: node, docs: docs, index: index, streams: streams, shards: shards,
		maxBatchSize: MaxBatchSize,
	}
}

// WithMaxBatchSize configures the maximum number of events per stream.
func (s *Service) WithMaxBatchSize(size int) *Service {
	if size > 0 {
		s.maxBatchSize = size
	}
	return s
}

// Ingest stores one stream. Streams are written once; an existing stream id is rejected.
func (s *Service) Ingest(ctx context.Context, b Batch) error {
	if err := s.validate(b); err != nil {
		return err
	}
	catalog, err := s.docs.Catalog(ctx, b.DataSource)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	for i, e := range b.Events {
		for name := range e.Values {
			if _, err := catalog.Lookup(name); err != nil {
				return fmt.Errorf("event %d: %w", i+1, err)
			}
		}
	}

	switch _, err := s.streams.Open(ctx, b.StreamID); {
	case err == nil:
		return fmt.Errorf("stream %d already exists: %w", b.StreamID, domain.ErrInvalidRequest)
	case !errors.Is(err, domain.ErrStreamNotFound):
		return fmt.Errorf("check stream: %w", err)
	}

	if err := s.index.EnsureIndex(ctx, b.Shard, catalog); err != nil {
		return err
	}

	segs := make([][]byte, 0, len(b.Events)+2)
	segs = append(segs, []byte(b.Header))
	for _, e := range b.Events {
		segs = append(segs, []byte(e.Segment))
	}
	segs = append(segs, []byte(b.Footer))
	if err := s.streams.Append(ctx, b.StreamID, storage.DataGroup, segs...); err != nil {
		return err
	}

	values := make([]map[string]val.Val, len(b.Events))
	for i, e := range b.Events {
		values[i] = e.Values
	}
	if err := s.index.IndexEvents(ctx, b.Shard, catalog, b.StreamID, 1, values); err != nil {
		return err
	}

	if err := s.shards.Register(ctx, b.DataSource, domshard.Shard{ID: b.Shard, Node: s.node}); err != nil {
		return err
	}

	logger.FromContext(ctx).Info("stream ingested",
		zap.Int64("stream_id", b.StreamID),
		zap.String("shard", b.Shard),
		zap.Int("events", len(b.Events)),
	)
	return nil
}

// IngestAll stores every batch and stops at the first failure.
func (s *Service) IngestAll(ctx context.Context, batches []Batch) (Stats, error) {
	var st Stats
	for _, b := range batches {
		if err := s.Ingest(ctx, b); err != nil {
			return st, fmt.Errorf("stream %d: %w", b.StreamID, err)
		}
		st.Streams++
		st.Events += len(b.Events)
	}
	return st, nil
}

// RemoveShard takes a shard out of the registry, so searches stop dispatching to it,
// and then drops its index and indexed events. Stream segments are left in place.
func (s *Service) RemoveShard(ctx context.Context, ds docref.DocRef, shardID string) error {
	if ds.UUID == "" || shardID == "" {
		return fmt.Errorf("data source and shard are required: %w", domain.ErrInvalidRequest)
	}
	if err := s.shards.Remove(ctx, ds, shardID); err != nil {
		return err
	}
	if err := s.index.DropShard(ctx, shardID); err != nil {
		return err
	}
	logger.FromContext(ctx).Info("shard removed",
		zap.String("data_source", ds.UUID), zap.String("shard", shardID))
	return nil
}

func (s *Service) validate(b Batch) error {
	switch {
	case b.DataSource.UUID == "":
		return fmt.Errorf("dataSource is required: %w", domain.ErrInvalidRequest)
	case b.Shard == "":
		return fmt.Errorf("shard is required: %w", domain.ErrInvalidRequest)
	case b.StreamID < 0:
		return fmt.Errorf("streamId must not be negative: %w", domain.ErrInvalidRequest)
	case len(b.Events) == 0:
		return fmt.Errorf("at least one event is required: %w", domain.ErrInvalidRequest)
	case len(b.Events) > s.maxBatchSize:
		return fmt.Errorf("stream has %d events, limit is %d: %w", len(b.Events), s.maxBatchSize, domain.ErrInvalidRequest)
	}
	return nil
}
