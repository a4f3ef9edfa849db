package redis

import (
	"context"
	"fmt"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/fedsearch/internal/db"
)

// RPush appends values to a list and returns the new length.
func (s *Store) RPush(ctx context.Context, key string, values ...[]byte) (int64, error) {
	if len(values) == 0 {
		return s.LLen(ctx, key)
	}
	elems := make([]string, len(values))
	for i, v := range values {
		elems[i] = rueidis.BinaryString(v)
	}
	cmd := s.b().Rpush().Key(key).Element(elems...).Build()
	n, err := s.do(ctx, cmd).AsInt64()
	if err != nil {
		return 0, &db.Error{Op: db.OpRPush, Err: err}
	}
	return n, nil
}

// LLen returns the list length. A missing key has length 0.
func (s *Store) LLen(ctx context.Context, key string) (int64, error) {
	cmd := s.b().Llen().Key(key).Build()
	n, err := s.do(ctx, cmd).AsInt64()
	if err != nil {
		return 0, &db.Error{Op: db.OpLLen, Err: err}
	}
	return n, nil
}

// LIndexMulti fetches list elements in a single DoMulti round-trip.
func (s *Store) LIndexMulti(ctx context.Context, key string, indexes []int64) ([][]byte, error) {
	if len(indexes) == 0 {
		return nil, nil
	}

	cmds := make([]rueidis.Completed, len(indexes))
	for i, idx := range indexes {
		cmds[i] = s.b().Lindex().Key(key).Index(idx).Build()
	}

	results := s.client.DoMulti(ctx, cmds...)
	out := make([][]byte, len(results))
	for i, res := range results {
		b, err := res.AsBytes()
		if err != nil {
			if rueidis.IsRedisNil(err) {
				continue
			}
			return nil, &db.Error{Op: db.OpLIndex, Err: fmt.Errorf("key %s index %d: %w", key, indexes[i], err)}
		}
		out[i] = b
	}
	return out, nil
}
