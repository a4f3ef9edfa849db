package stream

import (
	"context"
	"testing"
)

// mockStore keeps lists in memory and records LINDEX batches.
type mockStore struct {
	lists   map[string][][]byte
	batches [][]int64
	err     error
}

func (m *mockStore) RPush(_ context.Context, key string, values ...[]byte) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.lists[key] = append(m.lists[key], values...)
	return int64(len(m.lists[key])), nil
}

func (m *mockStore) LLen(_ context.Context, key string) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	return int64(len(m.lists[key])), nil
}

func (m *mockStore) LIndexMulti(_ context.Context, key string, indexes []int64) ([][]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.batches = append(m.batches, indexes)
	out := make([][]byte, len(indexes))
	for i, idx := range indexes {
		if idx < int64(len(m.lists[key])) {
			out[i] = m.lists[key][idx]
		}
	}
	return out, nil
}

func (m *mockStore) Exists(_ context.Context, key string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	_, ok := m.lists[key]
	return ok, nil
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{lists: make(map[string][][]byte)}
	return New(ms, "fs:"), ms
}
