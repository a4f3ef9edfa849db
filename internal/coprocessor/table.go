// Package coprocessor aggregates extracted rows into table results.
package coprocessor

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/kailas-cloud/fedsearch/internal/domain/row"
	"github.com/kailas-cloud/fedsearch/internal/domain/search"
	"github.com/kailas-cloud/fedsearch/internal/domain/table"
	"github.com/kailas-cloud/fedsearch/internal/domain/val"
	"github.com/kailas-cloud/fedsearch/internal/matcher"
)

// Coprocessor accumulates rows laid out by a shared FieldIndex.
type Coprocessor interface {
	Accept(values []val.Val)
	Completion() *CompletionState
}

// Limits are the store size and result count applied when a table leaves them unset.
type Limits struct {
	StoreSize  int
	MaxResults int
}

type entry struct {
	key   string
	cells []*cell
}

// Table aggregates rows into one table result.
type Table struct {
	settings   table.Settings
	index      *row.FieldIndex
	matcher    *matcher.Matcher
	storeSize  int
	maxResults int
	grouped    bool
	completion *CompletionState

	mu       sync.Mutex
	entries  map[string]*entry
	order    []*entry
	seq      int
	dropped  int
	filtered int
}

var _ Coprocessor = (*Table)(nil)

// NewTable creates a table coprocessor reading its columns through index.
// m evaluates the row filter and may be nil when the table has none.
func NewTable(settings table.Settings, index *row.FieldIndex, m *matcher.Matcher, limits Limits) *Table {
	t := &Table{
		settings:   settings,
		index:      index,
		matcher:    m,
		storeSize:  settings.StoreSize,
		maxResults: settings.MaxResults,
		grouped:    settings.Grouped(),
		completion: NewCompletionState(),
		entries:    make(map[string]*entry),
	}
	if t.storeSize == 0 {
		t.storeSize = limits.StoreSize
	}
	if t.maxResults == 0 {
		t.maxResults = limits.MaxResults
	}
	for _, c := range settings.Columns {
		index.Create(c.Field)
	}
	return t
}

// ComponentID returns the table's component id.
func (t *Table) ComponentID() string { return t.settings.ComponentID }

// Completion implements Coprocessor.
func (t *Table) Completion() *CompletionState { return t.completion }

// Accept implements Coprocessor.
func (t *Table) Accept(values []val.Val) {
	if !t.passes(values) {
		t.mu.Lock()
		t.filtered++
		t.mu.Unlock()
		return
	}

	cols := make([]val.Val, len(t.settings.Columns))
	for i, c := range t.settings.Columns {
		cols[i] = t.index.Get(values, c.Field)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var key string
	if t.grouped {
		key = t.groupKey(cols)
		if e, ok := t.entries[key]; ok {
			for i, c := range e.cells {
				c.add(cols[i])
			}
			return
		}
	} else {
		t.seq++
		key = fmt.Sprintf("%016d", t.seq)
	}

	if t.storeSize > 0 && len(t.order) >= t.storeSize {
		t.dropped++
		return
	}
	e := &entry{key: key, cells: make([]*cell, len(cols))}
	for i, c := range t.settings.Columns {
		e.cells[i] = newCell(c.Function, cols[i])
	}
	t.entries[key] = e
	t.order = append(t.order, e)
}

func (t *Table) passes(values []val.Val) bool {
	if t.matcher == nil || !t.settings.Filter.Enabled() {
		return true
	}
	names := t.index.Names()
	record := make(map[string]any, len(names))
	for i, n := range names {
		if i < len(values) && !values[i].IsNull() {
			record[n] = values[i]
		}
	}
	ok, err := t.matcher.Match(context.Background(), record, t.settings.Filter)
	return err == nil && ok
}

func (t *Table) groupKey(cols []val.Val) string {
	var b strings.Builder
	for i, c := range t.settings.Columns {
		if !c.Group {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\x1e')
		}
		b.WriteString(cols[i].Key())
	}
	return b.String()
}

// Snapshot returns the current table contents, sorted and bounded by MaxResults.
// Stored entries are never removed, so successive snapshots never lose rows.
func (t *Table) Snapshot() search.TableResult {
	t.mu.Lock()
	rows := make([]search.Row, 0, len(t.order))
	for _, e := range t.order {
		r := search.Row{Values: make([]val.Val, len(e.cells))}
		if t.grouped {
			r.GroupKey = e.key
		}
		for i, c := range e.cells {
			r.Values[i] = c.result()
		}
		rows = append(rows, r)
	}
	res := search.TableResult{
		ComponentID:  t.settings.ComponentID,
		TotalResults: len(t.order),
		Dropped:      t.dropped,
		Filtered:     t.filtered,
	}
	t.mu.Unlock()

	res.Fields = make([]string, len(t.settings.Columns))
	for i, c := range t.settings.Columns {
		res.Fields[i] = c.ColumnName()
	}

	t.sortRows(rows)
	if t.maxResults > 0 && len(rows) > t.maxResults {
		rows = rows[:t.maxResults]
	}
	res.Rows = rows
	return res
}

func (t *Table) sortRows(rows []search.Row) {
	type sortCol struct {
		pos  int
		desc bool
	}
	var sorts []sortCol
	for i, c := range t.settings.Columns {
		if c.Sort != table.SortNone {
			sorts = append(sorts, sortCol{pos: i, desc: c.Sort == table.SortDesc})
		}
	}
	if len(sorts) == 0 && !t.grouped {
		return
	}
	slices.SortStableFunc(rows, func(a, b search.Row) int {
		for _, s := range sorts {
			c := val.Compare(a.Values[s.pos], b.Values[s.pos])
			if s.desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return strings.Compare(a.GroupKey, b.GroupKey)
	})
}
