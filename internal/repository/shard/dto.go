package shard

import (
	"encoding/json"

	domshard "github.com/kailas-cloud/fedsearch/internal/domain/shard"
)

// entry is the registry hash value for one shard.
type entry struct {
	Node   string          `json:"node"`
	Status domshard.Status `json:"status"`
}

func decode(id, raw string) domshard.Shard {
	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil || e.Node == "" {
		return domshard.Shard{ID: id, Node: e.Node, Status: domshard.StatusCorrupt}
	}
	if e.Status != domshard.StatusOK && e.Status != domshard.StatusCorrupt {
		e.Status = domshard.StatusCorrupt
	}
	return domshard.Shard{ID: id, Node: e.Node, Status: e.Status}
}
