package cluster

import (
	"encoding/json"

	"github.com/kailas-cloud/fedsearch/internal/coprocessor"
	"github.com/kailas-cloud/fedsearch/internal/domain/docref"
	"github.com/kailas-cloud/fedsearch/internal/domain/expression"
	"github.com/kailas-cloud/fedsearch/internal/domain/val"
)

// NodeSearchRequest asks one node to search some of its shards.
type NodeSearchRequest struct {
	// AncestorID is the query key. Terminate requests address every task sharing it.
	AncestorID string          `json:"ancestorId"`
	DataSource docref.DocRef   `json:"dataSource"`
	Expression expression.Item `json:"expression"`
	// NativeQuery is the compiled shard query. Empty means the node compiles Expression itself.
	NativeQuery string               `json:"nativeQuery,omitempty"`
	Shards      []string             `json:"shards"`
	Layouts     []coprocessor.Layout `json:"layouts"`
	TimeZone    string               `json:"timeZone,omitempty"`
	// NowMs pins relative date expressions to the coordinator's clock.
	NowMs                 int64 `json:"nowMs"`
	ResultSendFrequencyMs int   `json:"resultSendFrequencyMs"`
}

// Payload carries rows captured for one pipeline layout.
type Payload struct {
	Pipeline string      `json:"pipeline"`
	Fields   []string    `json:"fields"`
	Rows     [][]val.Val `json:"rows"`
}

// payloadWire keeps value kinds across the node boundary.
type payloadWire struct {
	Pipeline string         `json:"pipeline"`
	Fields   []string       `json:"fields"`
	Rows     [][]val.Tagged `json:"rows"`
}

func (p Payload) MarshalJSON() ([]byte, error) {
	w := payloadWire{Pipeline: p.Pipeline, Fields: p.Fields, Rows: make([][]val.Tagged, len(p.Rows))}
	for i, r := range p.Rows {
		w.Rows[i] = val.TagRow(r)
	}
	return json.Marshal(w)
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	var w payloadWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*p = Payload{Pipeline: w.Pipeline, Fields: w.Fields, Rows: make([][]val.Val, len(w.Rows))}
	for i, r := range w.Rows {
		p.Rows[i] = val.UntagRow(r)
	}
	return nil
}

// NodeResult is one incremental message from a node search.
type NodeResult struct {
	Node     string    `json:"node"`
	Payloads []Payload `json:"payloads,omitempty"`
	Errors   []string  `json:"errors,omitempty"`
	Complete bool      `json:"complete"`
}

// TerminateRequest stops every task of a search on a node.
type TerminateRequest struct {
	AncestorID string `json:"ancestorId"`
}

// TerminateResponse reports how many tasks were stopped.
type TerminateResponse struct {
	Terminated int `json:"terminated"`
}
