package row

import (
	"slices"
	"sync"

	"github.com/kailas-cloud/fedsearch/internal/domain/val"
)

// FieldIndex assigns stable positions to field names. Positions never change once
// assigned, so rows produced earlier stay readable as the index grows.
type FieldIndex struct {
	mu    sync.RWMutex
	names []string
	pos   map[string]int
}

// NewFieldIndex creates an index pre-populated with names.
func NewFieldIndex(names ...string) *FieldIndex {
	fi := &FieldIndex{pos: make(map[string]int)}
	for _, n := range names {
		fi.Create(n)
	}
	return fi
}

// Create returns the position of name, assigning the next free one if needed.
func (fi *FieldIndex) Create(name string) int {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	if p, ok := fi.pos[name]; ok {
		return p
	}
	p := len(fi.names)
	fi.names = append(fi.names, name)
	fi.pos[name] = p
	return p
}

// Pos returns the position of name.
func (fi *FieldIndex) Pos(name string) (int, bool) {
	fi.mu.RLock()
	defer fi.mu.RUnlock()
	p, ok := fi.pos[name]
	return p, ok
}

// Names returns field names in position order.
func (fi *FieldIndex) Names() []string {
	fi.mu.RLock()
	defer fi.mu.RUnlock()
	return slices.Clone(fi.names)
}

// Len returns the number of positions.
func (fi *FieldIndex) Len() int {
	fi.mu.RLock()
	defer fi.mu.RUnlock()
	return len(fi.names)
}

// Get returns the value at the position of name, or null.
func (fi *FieldIndex) Get(values []val.Val, name string) val.Val {
	p, ok := fi.Pos(name)
	if !ok || p >= len(values) {
		return val.Null()
	}
	return values[p]
}

// Receiver consumes extracted rows laid out by its FieldIndex.
type Receiver interface {
	FieldIndex() *FieldIndex
	Receive(values []val.Val)
}

// ReceiverFunc adapts a function and an index to Receiver.
type ReceiverFunc struct {
	Index *FieldIndex
	Fn    func(values []val.Val)
}

// FieldIndex returns the receiver's field index.
func (r ReceiverFunc) FieldIndex() *FieldIndex { return r.Index }

// Receive forwards to Fn.
func (r ReceiverFunc) Receive(values []val.Val) { r.Fn(values) }
