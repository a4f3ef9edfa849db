package shard

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/domain/docref"
	domshard "github.com/kailas-cloud/fedsearch/internal/domain/shard"
)

// store is the consumer interface for the shard registry (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key string, fields ...string) error
}

// Repo is the shard registry: one hash per data source mapping shard id to its owner and status.
type Repo struct {
	store  store
	prefix string
}

// New creates a shard registry.
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix}
}

// Register adds or replaces a shard entry.
func (r *Repo) Register(ctx context.Context, ds docref.DocRef, s domshard.Shard) error {
	if s.ID == "" || s.Node == "" {
		return fmt.Errorf("shard id and node are required: %w", domain.ErrInvalidRequest)
	}
	if s.Status == "" {
		s.Status = domshard.StatusOK
	}
	data, err := json.Marshal(entry{Node: s.Node, Status: s.Status})
	if err != nil {
		return fmt.Errorf("marshal shard %s: %w", s.ID, err)
	}
	if err := r.store.HSet(ctx, registryKey(r.prefix, ds), map[string]string{s.ID: string(data)}); err != nil {
		return fmt.Errorf("hset shard %s: %w", s.ID, err)
	}
	return nil
}

// Remove deletes a shard entry.
func (r *Repo) Remove(ctx context.Context, ds docref.DocRef, shardID string) error {
	if err := r.store.HDel(ctx, registryKey(r.prefix, ds), shardID); err != nil {
		return fmt.Errorf("hdel shard %s: %w", shardID, err)
	}
	return nil
}

// List returns the shards of a data source ordered by id.
// Entries that cannot be decoded are reported as corrupt so the search can skip them.
func (r *Repo) List(ctx context.Context, ds docref.DocRef) ([]domshard.Shard, error) {
	m, err := r.store.HGetAll(ctx, registryKey(r.prefix, ds))
	if err != nil {
		return nil, fmt.Errorf("hgetall shards %s: %w", ds.UUID, err)
	}

	shards := make([]domshard.Shard, 0, len(m))
	for id, raw := range m {
		shards = append(shards, decode(id, raw))
	}
	sort.Slice(shards, func(i, j int) bool { return shards[i].ID < shards[j].ID })
	return shards, nil
}

// Key pattern: {prefix}shards:{dataSourceUUID}

func registryKey(prefix string, ds docref.DocRef) string {
	return fmt.Sprintf("%sshards:%s", prefix, ds.UUID)
}
