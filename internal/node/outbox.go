package node

import (
	"sync"

	"github.com/kailas-cloud/fedsearch/internal/cluster"
	"github.com/kailas-cloud/fedsearch/internal/domain/row"
	"github.com/kailas-cloud/fedsearch/internal/domain/val"
)

// outbox buffers rows and errors of one node search between sends.
type outbox struct {
	node string
	send cluster.ResultFunc

	mu      sync.Mutex
	order   []string
	buffers map[string]*buffer
	errors  []string
	done    bool
	sendErr error
}

func newOutbox(node string, send cluster.ResultFunc) *outbox {
	return &outbox{node: node, send: send, buffers: make(map[string]*buffer)}
}

// buffer collects the rows of one layout. It is the row.Receiver of extraction tasks.
type buffer struct {
	box   *outbox
	key   string
	index *row.FieldIndex
	rows  [][]val.Val
}

func (b *buffer) FieldIndex() *row.FieldIndex { return b.index }

func (b *buffer) Receive(values []val.Val) {
	b.box.mu.Lock()
	defer b.box.mu.Unlock()
	b.rows = append(b.rows, values)
}

func (o *outbox) buffer(key string, fields []string) *buffer {
	o.mu.Lock()
	defer o.mu.Unlock()
	if b, ok := o.buffers[key]; ok {
		return b
	}
	b := &buffer{box: o, key: key, index: row.NewFieldIndex(fields...)}
	o.buffers[key] = b
	o.order = append(o.order, key)
	return b
}

func (o *outbox) addError(msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errors = append(o.errors, msg)
}

// flush sends buffered rows and errors, if any. With complete set it always sends
// and further flushes are no-ops.
func (o *outbox) flush(complete bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.done || o.sendErr != nil {
		return o.sendErr
	}

	res := cluster.NodeResult{Node: o.node, Errors: o.errors, Complete: complete}
	for _, key := range o.order {
		b := o.buffers[key]
		if len(b.rows) == 0 {
			continue
		}
		res.Payloads = append(res.Payloads, cluster.Payload{
			Pipeline: key,
			Fields:   b.index.Names(),
			Rows:     b.rows,
		})
		b.rows = nil
	}
	o.errors = nil
	if !complete && len(res.Payloads) == 0 && len(res.Errors) == 0 {
		return nil
	}
	o.done = complete
	o.sendErr = o.send(res)
	return o.sendErr
}
