package ingest

import (
	"context"

	"github.com/kailas-cloud/fedsearch/internal/domain/docref"
	"github.com/kailas-cloud/fedsearch/internal/domain/field"
	domshard "github.com/kailas-cloud/fedsearch/internal/domain/shard"
	"github.com/kailas-cloud/fedsearch/internal/domain/val"
	"github.com/kailas-cloud/fedsearch/internal/storage"
)

// CatalogReader resolves the field catalog of a data source.
type CatalogReader interface {
	Catalog(ctx context.Context, ds docref.DocRef) (field.Catalog, error)
}

// Indexer writes events into shard indexes.
type Indexer interface {
	EnsureIndex(ctx context.Context, shardID string, catalog field.Catalog) error
	IndexEvents(
		ctx context.Context, shardID string, catalog field.Catalog,
		streamID, firstEventID int64, values []map[string]val.Val,
	) error
	DropShard(ctx context.Context, shardID string) error
}

// Streams stores raw stream segments.
type Streams interface {
	storage.Store
	storage.Writer
}

// ShardRegistrar records which node owns a shard.
type ShardRegistrar interface {
	Register(ctx context.Context, ds docref.DocRef, s domshard.Shard) error
	Remove(ctx context.Context, ds docref.DocRef, shardID string) error
}
