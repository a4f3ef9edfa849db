package node

import (
	"context"

	"github.com/kailas-cloud/fedsearch/internal/domain/docref"
	"github.com/kailas-cloud/fedsearch/internal/domain/field"
	"github.com/kailas-cloud/fedsearch/internal/extraction"
	"github.com/kailas-cloud/fedsearch/internal/matcher"
	"github.com/kailas-cloud/fedsearch/internal/repository/search"
)

// docStore is the consumer interface for data source definitions.
type docStore interface {
	Catalog(ctx context.Context, ds docref.DocRef) (field.Catalog, error)
	extraction.DefinitionSource
	matcher.WordListProvider
	matcher.FolderProvider
}

// shardSearcher runs a compiled query against local shards.
type shardSearcher interface {
	SearchShards(ctx context.Context, shardIDs []string, query string, fn search.HitFunc) []search.ShardResult
}
