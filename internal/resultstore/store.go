// Package resultstore keeps running and finished searches addressable by query key.
package resultstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/domain/query"
	"github.com/kailas-cloud/fedsearch/internal/domain/search"
	"github.com/kailas-cloud/fedsearch/internal/metrics"
)

// Eviction reasons.
const (
	ReasonSize    = "size"
	ReasonIdle    = "idle"
	ReasonRemoved = "removed"
)

// Search is the handle the store keeps for one query.
type Search interface {
	Snapshot() search.Response
	IsComplete() bool
	Terminate()
}

type entry struct {
	search   Search
	accessed time.Time
	final    *search.Response
}

// Store is an LRU of searches with idle expiry. Dropping an entry for any reason
// terminates its search.
type Store struct {
	mu     sync.Mutex
	cache  *lru.Cache[query.Key, *entry]
	idle   time.Duration
	now    func() time.Time
	reason string
	log    *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// WithLogger sets the logger for evictions.
func WithLogger(l *zap.Logger) Option { return func(s *Store) { s.log = l } }

// New creates a store holding at most maxEntries searches. Entries not read for idle
// are removed by Sweep; zero disables idle expiry.
func New(maxEntries int, idle time.Duration, opts ...Option) (*Store, error) {
	s := &Store{idle: idle, now: time.Now, reason: ReasonSize, log: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	cache, err := lru.NewWithEvict(maxEntries, s.onEvict)
	if err != nil {
		return nil, fmt.Errorf("create result store: %w", err)
	}
	s.cache = cache
	return s, nil
}

// onEvict runs under s.mu, from inside the cache call that dropped the entry.
func (s *Store) onEvict(key query.Key, e *entry) {
	metrics.ResultStoreEvictionsTotal.WithLabelValues(s.reason).Inc()
	s.log.Debug("search evicted", zap.String("key", key.String()), zap.String("reason", s.reason))
	e.search.Terminate()
}

// PutIfAbsent stores sr under key unless key is already stored, evicting the least
// recently used entry when full. It returns the stored search and whether sr was added.
func (s *Store) PutIfAbsent(key query.Key, sr Search) (Search, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.cache.Get(key); ok {
		e.accessed = s.now()
		return e.search, false
	}
	s.reason = ReasonSize
	s.cache.Add(key, &entry{search: sr, accessed: s.now()})
	return sr, true
}

// Get returns the search for key and marks it used.
func (s *Store) Get(key query.Key) (Search, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.cache.Get(key)
	if !ok {
		return nil, false
	}
	e.accessed = s.now()
	return e.search, true
}

// Contains reports whether key is still stored without touching its recency.
func (s *Store) Contains(key query.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Contains(key)
}

// Create builds the current response for key. Once the search is complete the response
// is computed one last time and returned as-is afterwards.
func (s *Store) Create(key query.Key) (search.Response, error) {
	s.mu.Lock()
	e, ok := s.cache.Get(key)
	var final *search.Response
	if ok {
		e.accessed = s.now()
		final = e.final
	}
	s.mu.Unlock()
	if !ok {
		return search.Response{}, fmt.Errorf("search %s: %w", key, domain.ErrNotFound)
	}
	if final != nil {
		return *final, nil
	}

	complete := e.search.IsComplete()
	resp := e.search.Snapshot()
	if complete && resp.Complete {
		s.mu.Lock()
		if e.final == nil {
			e.final = &resp
		}
		resp = *e.final
		s.mu.Unlock()
	}
	return resp, nil
}

// Remove drops key and terminates its search. It reports whether key was stored.
func (s *Store) Remove(key query.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reason = ReasonRemoved
	return s.cache.Remove(key)
}

// Len returns the number of stored searches.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Len()
}

// Sweep removes every entry idle for longer than the idle timeout and returns how many.
func (s *Store) Sweep() int {
	if s.idle <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reason = ReasonIdle
	cutoff := s.now().Add(-s.idle)
	n := 0
	for _, key := range s.cache.Keys() {
		e, ok := s.cache.Peek(key)
		if ok && e.accessed.Before(cutoff) {
			s.cache.Remove(key)
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.Sweep(); n > 0 {
				s.log.Debug("idle searches swept", zap.Int("count", n))
			}
		}
	}
}

// Purge terminates and drops every stored search.
func (s *Store) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reason = ReasonRemoved
	s.cache.Purge()
}
