// Package search runs federated searches: it dispatches them to the cluster, collects
// the incremental node results and serves polls of the aggregated tables.
package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/domain/docref"
	"github.com/kailas-cloud/fedsearch/internal/domain/expression"
	"github.com/kailas-cloud/fedsearch/internal/domain/query"
	domsearch "github.com/kailas-cloud/fedsearch/internal/domain/search"
	"github.com/kailas-cloud/fedsearch/internal/logger"
	"github.com/kailas-cloud/fedsearch/internal/matcher"
)

// MatchRequest evaluates an expression against records without touching the index.
type MatchRequest struct {
	DataSource docref.DocRef    `json:"dataSource"`
	Expression expression.Item  `json:"expression"`
	Records    []map[string]any `json:"records"`
	Locale     domsearch.Locale `json:"dateTimeLocale"`
}

// Service is the client-facing search API.
type Service struct {
	dispatcher *Dispatcher
	results    ResultStore
	docs       DocStore
}

// New creates a search service.
func New(dispatcher *Dispatcher, results ResultStore, docs DocStore) *Service {
	return &Service{dispatcher: dispatcher, results: results, docs: docs}
}

// Submit starts a search and returns its key. A request whose key is still stored
// returns that search without dispatching again.
func (s *Service) Submit(ctx context.Context, req domsearch.Request) (query.Key, error) {
	if err := req.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}
	key := query.NewKey()
	if req.Key != "" {
		k, err := query.ParseKey(req.Key.String())
		if err != nil {
			return "", fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
		}
		key = k
	}
	if _, ok := s.results.Get(key); ok {
		return key, nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := NewCollector(key, req.Tables, cancel)
	if _, added := s.results.PutIfAbsent(key, c); !added {
		// A concurrent submit stored the key first.
		cancel()
		return key, nil
	}

	logger.FromContext(ctx).Info("search submitted",
		zap.String("key", key.String()),
		zap.String("data_source", req.DataSource.UUID),
		zap.Int("tables", len(req.Tables)))
	go s.dispatcher.Run(runCtx, c, req)
	return key, nil
}

// Poll returns the current response of a search.
func (s *Service) Poll(_ context.Context, key query.Key) (domsearch.Response, error) {
	return s.results.Create(key)
}

// Cancel terminates a search and forgets it.
func (s *Service) Cancel(ctx context.Context, key query.Key) error {
	if !s.results.Remove(key) {
		return fmt.Errorf("search %s: %w", key, domain.ErrNotFound)
	}
	logger.FromContext(ctx).Info("search cancelled", zap.String("key", key.String()))
	return nil
}

// Match reports, per record, whether it satisfies the expression.
func (s *Service) Match(ctx context.Context, req MatchRequest) ([]bool, error) {
	q, err := query.New(req.DataSource, req.Expression)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}
	loc, err := req.Locale.Location()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}
	catalog, err := s.docs.Catalog(ctx, q.DataSource())
	if err != nil {
		return nil, fmt.Errorf("load data source: %w", err)
	}

	m := matcher.New(catalog,
		matcher.WithWordLists(s.docs),
		matcher.WithFolders(s.docs),
		matcher.WithTime(loc, time.Now()),
	)
	out := make([]bool, len(req.Records))
	for i, rec := range req.Records {
		ok, err := m.Match(ctx, rec, q.Expression())
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out[i] = ok
	}
	return out, nil
}
