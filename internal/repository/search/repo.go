package search

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/fedsearch/internal/compiler"
	"github.com/kailas-cloud/fedsearch/internal/db"
	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/domain/field"
	"github.com/kailas-cloud/fedsearch/internal/domain/val"
	"github.com/kailas-cloud/fedsearch/internal/logger"
)

// DefaultPageSize is the number of hits fetched per FT.SEARCH round-trip.
const DefaultPageSize = 1000

// store is the consumer interface for shard index operations (ISP).
type store interface {
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	Del(ctx context.Context, key string) error
	Search(ctx context.Context, q *db.Query) (*db.SearchResult, error)
}

// StreamHits is the set of matching events of one stream in one shard.
type StreamHits struct {
	StreamID int64
	EventIDs []int64
}

// HitFunc receives hits grouped by stream, in ascending stream order.
type HitFunc func(ctx context.Context, hits StreamHits) error

// Repo searches shard indexes.
type Repo struct {
	store    store
	prefix   string
	pageSize int
	parallel int
}

// Option configures a Repo.
type Option func(*Repo)

// WithPageSize sets the FT.SEARCH page size.
func WithPageSize(n int) Option {
	return func(r *Repo) {
		if n > 0 {
			r.pageSize = n
		}
	}
}

// WithParallelism bounds the shards searched concurrently by SearchShards.
func WithParallelism(n int) Option {
	return func(r *Repo) {
		if n > 0 {
			r.parallel = n
		}
	}
}

// New creates a shard search repository.
func New(s store, prefix string, opts ...Option) *Repo {
	r := &Repo{store: s, prefix: prefix, pageSize: DefaultPageSize, parallel: 4}
	for _, o := range opts {
		o(r)
	}
	return r
}

// EnsureIndex creates the shard index if it does not exist yet.
func (r *Repo) EnsureIndex(ctx context.Context, shardID string, catalog field.Catalog) error {
	def, err := buildIndex(r.prefix, shardID, catalog)
	if err != nil {
		return fmt.Errorf("build index for shard %s: %w", shardID, err)
	}
	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index for shard %s: %w", shardID, err)
	}
	return nil
}

// IndexEvents writes the indexed values of consecutive events of one stream into a shard.
// values[i] belongs to event firstEventID+i. Writes are pipelined one page at a time.
func (r *Repo) IndexEvents(
	ctx context.Context, shardID string, catalog field.Catalog,
	streamID, firstEventID int64, values []map[string]val.Val,
) error {
	lastEventID := firstEventID + int64(len(values)) - 1
	if streamID < 0 || streamID > MaxStreamID || firstEventID < 0 || lastEventID > MaxEventID {
		return fmt.Errorf("events %d:%d-%d out of range: %w", streamID, firstEventID, lastEventID, domain.ErrInvalidRequest)
	}

	items := make([]db.HashSetItem, 0, min(len(values), r.pageSize))
	flush := func() error {
		if len(items) == 0 {
			return nil
		}
		if err := r.store.HSetMulti(ctx, items); err != nil {
			return fmt.Errorf("index stream %d: %w", streamID, err)
		}
		items = items[:0]
		return nil
	}

	for i, v := range values {
		eventID := firstEventID + int64(i)
		fields, err := encodeFields(catalog, v)
		if err != nil {
			return fmt.Errorf("encode event %d:%d: %w", streamID, eventID, err)
		}
		fields[compiler.StreamIDAttr] = strconv.FormatInt(streamID, 10)
		fields[compiler.EventIDAttr] = strconv.FormatInt(eventID, 10)
		fields[SeqAttr] = strconv.FormatInt(seq(streamID, eventID), 10)
		items = append(items, db.HashSetItem{Key: docKey(r.prefix, shardID, streamID, eventID), Fields: fields})

		if len(items) == r.pageSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

// DropShard removes a shard index and every event indexed into it.
func (r *Repo) DropShard(ctx context.Context, shardID string) error {
	name := IndexName(r.prefix, shardID)
	exists, err := r.store.IndexExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check index for shard %s: %w", shardID, err)
	}
	if exists {
		if err := r.store.DropIndex(ctx, name); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
			return fmt.Errorf("drop index for shard %s: %w", shardID, err)
		}
	}

	keys, err := r.store.Scan(ctx, DocPrefix(r.prefix, shardID)+"*")
	if err != nil {
		return fmt.Errorf("scan shard %s: %w", shardID, err)
	}
	for _, k := range keys {
		if err := r.store.Del(ctx, k); err != nil {
			return fmt.Errorf("delete %s: %w", k, err)
		}
	}
	logger.FromContext(ctx).Info("shard dropped",
		zap.String("shard", shardID), zap.Bool("index", exists), zap.Int("events", len(keys)))
	return nil
}

// SearchShard runs query against one shard and hands hits to fn one stream at a time.
// It returns the number of hits.
func (r *Repo) SearchShard(ctx context.Context, shardID, query string, fn HitFunc) (int, error) {
	q := &db.Query{
		Index:  IndexName(r.prefix, shardID),
		Query:  query,
		SortBy: SeqAttr,
		Limit:  r.pageSize,
		Return: []string{compiler.StreamIDAttr, compiler.EventIDAttr},
	}

	var (
		pending StreamHits
		hits    int
	)
	flush := func() error {
		if len(pending.EventIDs) == 0 {
			return nil
		}
		err := fn(ctx, pending)
		pending = StreamHits{}
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return hits, err
		}
		sr, err := r.store.Search(ctx, q)
		if err != nil {
			return hits, fmt.Errorf("search shard %s: %w", shardID, err)
		}
		for _, e := range sr.Entries {
			streamID, eventID, err := parseHit(e)
			if err != nil {
				logger.FromContext(ctx).Warn("skipping malformed hit",
					zap.String("shard", shardID), zap.String("key", e.Key), zap.Error(err))
				continue
			}
			hits++
			if streamID != pending.StreamID && len(pending.EventIDs) > 0 {
				if err := flush(); err != nil {
					return hits, err
				}
			}
			pending.StreamID = streamID
			pending.EventIDs = append(pending.EventIDs, eventID)
		}
		q.Offset += len(sr.Entries)
		if len(sr.Entries) == 0 || q.Offset >= sr.Total {
			break
		}
	}

	return hits, flush()
}

// ShardResult is the outcome of one shard search within SearchShards.
type ShardResult struct {
	ShardID string
	Hits    int
	Err     error
}

// SearchShards searches several shards concurrently. A failing shard does not stop the others;
// its error is reported in the result. fn may be called from several goroutines.
func (r *Repo) SearchShards(ctx context.Context, shardIDs []string, query string, fn HitFunc) []ShardResult {
	results := make([]ShardResult, len(shardIDs))
	var g errgroup.Group
	g.SetLimit(r.parallel)
	for i, id := range shardIDs {
		g.Go(func() error {
			n, err := r.SearchShard(ctx, id, query, fn)
			results[i] = ShardResult{ShardID: id, Hits: n, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func parseHit(e db.SearchEntry) (streamID, eventID int64, err error) {
	streamID, err = strconv.ParseInt(e.Fields[compiler.StreamIDAttr], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse %s: %w", compiler.StreamIDAttr, err)
	}
	eventID, err = strconv.ParseInt(e.Fields[compiler.EventIDAttr], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse %s: %w", compiler.EventIDAttr, err)
	}
	return streamID, eventID, nil
}
