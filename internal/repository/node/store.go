package node

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/fedsearch/internal/db"
)

// store is the consumer interface for heartbeat operations (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Store keeps node liveness as TTL keys holding the last beat in epoch millis.
type Store struct {
	store  store
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// New creates a heartbeat store. A node is alive while its last beat is younger than ttl.
func New(s store, prefix string, ttl time.Duration) *Store {
	return &Store{store: s, prefix: prefix, ttl: ttl, now: time.Now}
}

// Beat refreshes the liveness key of a node.
func (s *Store) Beat(ctx context.Context, name string) error {
	ms := strconv.FormatInt(s.now().UnixMilli(), 10)
	if err := s.store.SetWithTTL(ctx, aliveKey(s.prefix, name), []byte(ms), s.ttl); err != nil {
		return fmt.Errorf("heartbeat %s: %w", name, err)
	}
	return nil
}

// LastSeen returns the last beat of a node. ok is false once the key has expired.
func (s *Store) LastSeen(ctx context.Context, name string) (last time.Time, ok bool, err error) {
	data, err := s.store.Get(ctx, aliveKey(s.prefix, name))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("heartbeat GET %s: %w", name, err)
	}

	ms, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("heartbeat GET %s parse: %w", name, err)
	}
	return time.UnixMilli(ms), true, nil
}

// Alive reports whether a node has beaten within the ttl.
func (s *Store) Alive(ctx context.Context, name string) (bool, error) {
	_, ok, err := s.LastSeen(ctx, name)
	return ok, err
}

// Run beats every interval until ctx is done. Failed beats are passed to onErr.
func (s *Store) Run(ctx context.Context, name string, interval time.Duration, onErr func(error)) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if err := s.Beat(ctx, name); err != nil && ctx.Err() == nil && onErr != nil {
			onErr(err)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Key pattern: {prefix}node:{name}:alive

func aliveKey(prefix, name string) string {
	return fmt.Sprintf("%snode:%s:alive", prefix, name)
}
