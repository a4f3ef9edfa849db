package stream

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/storage"
)

// store is the consumer interface for stream segments (ISP).
type store interface {
	RPush(ctx context.Context, key string, values ...[]byte) (int64, error)
	LLen(ctx context.Context, key string) (int64, error)
	LIndexMulti(ctx context.Context, key string, indexes []int64) ([][]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// Repo implements storage.Store and storage.Writer over Redis lists,
// one list per stream segment group.
type Repo struct {
	store  store
	prefix string
}

var (
	_ storage.Store  = (*Repo)(nil)
	_ storage.Writer = (*Repo)(nil)
)

// New creates a stream repository.
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix}
}

// Open checks that the data group exists.
func (r *Repo) Open(ctx context.Context, streamID int64) (storage.Source, error) {
	exists, err := r.store.Exists(ctx, r.key(streamID, storage.DataGroup))
	if err != nil {
		return nil, fmt.Errorf("check stream %d: %w", streamID, err)
	}
	if !exists {
		return nil, fmt.Errorf("stream %d: %w", streamID, domain.ErrStreamNotFound)
	}
	return &source{repo: r, id: streamID}, nil
}

// Append pushes segments onto a stream group.
func (r *Repo) Append(ctx context.Context, streamID int64, group int, segments ...[]byte) error {
	if len(segments) == 0 {
		return nil
	}
	if _, err := r.store.RPush(ctx, r.key(streamID, group), segments...); err != nil {
		return fmt.Errorf("append stream %d group %d: %w", streamID, group, err)
	}
	return nil
}

// Key pattern: {prefix}stream:{id}:{group}

func (r *Repo) key(streamID int64, group int) string {
	return fmt.Sprintf("%sstream:%d:%d", r.prefix, streamID, group)
}

type source struct {
	repo *Repo
	id   int64
}

func (s *source) StreamID() int64 { return s.id }

func (s *source) Provider(group int) (storage.Provider, error) {
	return provider{repo: s.repo, key: s.repo.key(s.id, group)}, nil
}

type provider struct {
	repo *Repo
	key  string
}

func (p provider) Segments(ctx context.Context) (storage.SegmentInputStream, error) {
	n, err := p.repo.store.LLen(ctx, p.key)
	if err != nil {
		return nil, fmt.Errorf("count segments %s: %w", p.key, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%s: %w", p.key, domain.ErrStreamNotFound)
	}
	return &segmentStream{repo: p.repo, key: p.key, sel: storage.NewSelection(n)}, nil
}

type segmentStream struct {
	repo *Repo
	key  string
	sel  *storage.Selection
}

func (s *segmentStream) Count() int64 { return s.sel.Count() }

func (s *segmentStream) Include(index int64) error { return s.sel.Include(index) }

func (s *segmentStream) Read(ctx context.Context) ([]storage.Segment, error) {
	idx := s.sel.Sorted()
	data, err := s.repo.store.LIndexMulti(ctx, s.key, idx)
	if err != nil {
		return nil, fmt.Errorf("read segments %s: %w", s.key, err)
	}
	out := make([]storage.Segment, len(idx))
	for i, b := range data {
		if b == nil {
			return nil, fmt.Errorf("segment %d of %s vanished: %w", idx[i], s.key, domain.ErrStreamNotFound)
		}
		out[i] = storage.Segment{Index: idx[i], Data: b}
	}
	return out, nil
}
