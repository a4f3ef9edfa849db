package search

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/kailas-cloud/fedsearch/internal/cluster"
	"github.com/kailas-cloud/fedsearch/internal/coprocessor"
	"github.com/kailas-cloud/fedsearch/internal/domain/query"
	domsearch "github.com/kailas-cloud/fedsearch/internal/domain/search"
	"github.com/kailas-cloud/fedsearch/internal/domain/table"
)

// State is the lifecycle stage of a search.
type State string

// Search states.
const (
	StateInitialising State = "INITIALISING"
	StateDispatched   State = "DISPATCHED"
	StateAwaiting     State = "AWAITING"
	StateComplete     State = "COMPLETE"
	StateTerminated   State = "TERMINATED"
)

// Collector accumulates everything the nodes send back for one search.
type Collector struct {
	key    query.Key
	tables []table.Settings
	cancel context.CancelFunc
	done   *coprocessor.CompletionState

	mu         sync.Mutex
	state      State
	set        *coprocessor.Set
	errors     map[string][]string
	expected   map[string]bool
	finished   map[string]bool
	highlights []string
}

// NewCollector creates the collector of a search. cancel stops the search's dispatch.
func NewCollector(key query.Key, tables []table.Settings, cancel context.CancelFunc) *Collector {
	if cancel == nil {
		cancel = func() {}
	}
	return &Collector{
		key:      key,
		tables:   tables,
		cancel:   cancel,
		done:     coprocessor.NewCompletionState(),
		state:    StateInitialising,
		errors:   make(map[string][]string),
		expected: make(map[string]bool),
		finished: make(map[string]bool),
	}
}

// Key returns the query key.
func (c *Collector) Key() query.Key { return c.key }

// State returns the current state.
func (c *Collector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Collector) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateComplete || c.state == StateTerminated {
		return
	}
	c.state = s
}

func (c *Collector) attach(set *coprocessor.Set) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set = set
}

func (c *Collector) setHighlights(h []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.highlights = slices.Clone(h)
}

// AddError records msg against node. Repeated messages are kept once.
func (c *Collector) AddError(node, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !slices.Contains(c.errors[node], msg) {
		c.errors[node] = append(c.errors[node], msg)
	}
}

// Expect adds nodes whose completion the search waits for.
func (c *Collector) Expect(nodes ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range nodes {
		c.expected[n] = true
	}
}

// Expected returns the expected nodes, sorted.
func (c *Collector) Expected() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Sorted(maps.Keys(c.expected))
}

// Receive merges one node result.
func (c *Collector) Receive(node string, res cluster.NodeResult) {
	c.mu.Lock()
	set := c.set
	c.mu.Unlock()

	if set != nil {
		for _, p := range res.Payloads {
			set.ReceiveNamed(p.Pipeline, p.Fields, p.Rows)
		}
	}
	for _, msg := range res.Errors {
		c.AddError(node, msg)
	}
	if res.Complete {
		c.nodeFinished(node)
	}
}

// nodeFinished marks node done and reports whether every expected node is.
func (c *Collector) nodeFinished(node string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finished[node] = true
	for n := range c.expected {
		if !c.finished[n] {
			return false
		}
	}
	return true
}

// Complete latches the search as complete. Terminated searches stay terminated.
func (c *Collector) Complete() {
	c.finish(StateComplete)
}

// Terminate stops the search. The collector still latches complete.
func (c *Collector) Terminate() {
	c.cancel()
	c.finish(StateTerminated)
}

func (c *Collector) finish(s State) {
	c.mu.Lock()
	if c.state != StateComplete && c.state != StateTerminated {
		c.state = s
	}
	set := c.set
	c.mu.Unlock()

	if set != nil {
		set.Complete()
	}
	c.done.Complete()
}

// IsComplete reports whether the search reached COMPLETE or TERMINATED.
func (c *Collector) IsComplete() bool { return c.done.IsComplete() }

// Done is closed once the search is complete.
func (c *Collector) Done() <-chan struct{} { return c.done.Done() }

// Snapshot returns the current response. Rows are never removed between snapshots.
func (c *Collector) Snapshot() domsearch.Response {
	complete := c.done.IsComplete()

	c.mu.Lock()
	resp := domsearch.Response{
		Key:        c.key,
		State:      string(c.state),
		Highlights: slices.Clone(c.highlights),
		Complete:   complete,
	}
	if len(c.errors) > 0 {
		resp.Errors = make(map[string][]string, len(c.errors))
		for node, msgs := range c.errors {
			resp.Errors[node] = slices.Clone(msgs)
		}
	}
	set := c.set
	c.mu.Unlock()

	if resp.Highlights == nil {
		resp.Highlights = []string{}
	}
	if set != nil {
		resp.Results = set.Snapshot()
		return resp
	}
	resp.Results = make([]domsearch.TableResult, len(c.tables))
	for i, t := range c.tables {
		fields := make([]string, len(t.Columns))
		for j, col := range t.Columns {
			fields[j] = col.ColumnName()
		}
		resp.Results[i] = domsearch.TableResult{ComponentID: t.ComponentID, Fields: fields, Rows: []domsearch.Row{}}
	}
	return resp
}
