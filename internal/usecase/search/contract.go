package search

import (
	"context"

	"github.com/kailas-cloud/fedsearch/internal/cluster"
	"github.com/kailas-cloud/fedsearch/internal/domain/docref"
	"github.com/kailas-cloud/fedsearch/internal/domain/field"
	"github.com/kailas-cloud/fedsearch/internal/domain/query"
	domsearch "github.com/kailas-cloud/fedsearch/internal/domain/search"
	"github.com/kailas-cloud/fedsearch/internal/domain/shard"
	"github.com/kailas-cloud/fedsearch/internal/matcher"
	"github.com/kailas-cloud/fedsearch/internal/resultstore"
)

// DocStore resolves data source catalogs and the lists referenced by expressions.
type DocStore interface {
	Catalog(ctx context.Context, ds docref.DocRef) (field.Catalog, error)
	matcher.WordListProvider
	matcher.FolderProvider
}

// ShardRegistry lists the shards of a data source.
type ShardRegistry interface {
	List(ctx context.Context, ds docref.DocRef) ([]shard.Shard, error)
}

// Nodes answers which cluster nodes can take part in a search.
type Nodes interface {
	Local() string
	Available(ctx context.Context, name string) (cluster.Node, bool)
}

// Terminator stops the tasks of a search on every node.
type Terminator interface {
	TerminateAll(ctx context.Context, ancestorID string) int
}

// ResultStore keeps searches addressable by key.
type ResultStore interface {
	PutIfAbsent(key query.Key, s resultstore.Search) (resultstore.Search, bool)
	Get(key query.Key) (resultstore.Search, bool)
	Contains(key query.Key) bool
	Create(key query.Key) (domsearch.Response, error)
	Remove(key query.Key) bool
}
