package shard

import "fmt"

// Status is the health of a shard as reported by the index engine.
type Status string

const (
	// StatusOK shards take part in searches.
	StatusOK Status = "OK"
	// StatusCorrupt shards are skipped and reported as node errors.
	StatusCorrupt Status = "CORRUPT"
)

// Shard is one physical partition of a data source index.
type Shard struct {
	ID     string `json:"id"`
	Node   string `json:"node"`
	Status Status `json:"status"`
}

// IsCorrupt reports whether the shard must be excluded.
func (s Shard) IsCorrupt() bool { return s.Status == StatusCorrupt }

func (s Shard) String() string { return fmt.Sprintf("shard %s@%s", s.ID, s.Node) }

// ByNode groups shards by owning node, preserving input order within a node.
func ByNode(shards []Shard) map[string][]Shard {
	out := make(map[string][]Shard)
	for _, s := range shards {
		out[s.Node] = append(out[s.Node], s)
	}
	return out
}
