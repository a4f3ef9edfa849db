package coprocessor

import (
	"slices"

	"github.com/kailas-cloud/fedsearch/internal/domain/docref"
	"github.com/kailas-cloud/fedsearch/internal/domain/field"
	"github.com/kailas-cloud/fedsearch/internal/domain/row"
	"github.com/kailas-cloud/fedsearch/internal/domain/search"
	"github.com/kailas-cloud/fedsearch/internal/domain/table"
	"github.com/kailas-cloud/fedsearch/internal/domain/val"
	"github.com/kailas-cloud/fedsearch/internal/matcher"
)

// Layout is the field layout shared by the tables fed from one extraction pipeline.
type Layout struct {
	// Key is the pipeline uuid, empty for tables that read hits without extraction.
	Key      string        `json:"key"`
	Pipeline docref.DocRef `json:"pipeline,omitzero"`
	Extract  bool          `json:"extract"`
	Fields   []string      `json:"fields"`
}

// Layouts groups tables by pipeline in first-seen order.
// Every layout starts with StreamId and EventId.
func Layouts(tables []table.Settings) []Layout {
	var out []Layout
	pos := make(map[string]int)
	for _, t := range tables {
		key := t.PipelineKey()
		i, ok := pos[key]
		if !ok {
			i = len(out)
			pos[key] = i
			out = append(out, Layout{
				Key:      key,
				Pipeline: t.Pipeline,
				Extract:  t.ExtractValues,
				Fields:   []string{field.StreamID, field.EventID},
			})
		}
		for _, f := range t.Fields() {
			if !slices.Contains(out[i].Fields, f) {
				out[i].Fields = append(out[i].Fields, f)
			}
		}
	}
	return out
}

// FilterMatcher returns a matcher for row filters: the data source catalog plus the
// StreamId and EventId columns every row carries.
func FilterMatcher(catalog field.Catalog, opts ...matcher.Option) *matcher.Matcher {
	fields := catalog.Fields()
	for _, name := range []string{field.StreamID, field.EventID} {
		if _, err := catalog.Lookup(name); err != nil {
			f, _ := field.New(name, field.Numeric, true)
			fields = append(fields, f)
		}
	}
	c, err := field.NewCatalog(fields...)
	if err != nil {
		c = catalog
	}
	return matcher.New(c, opts...)
}

// Group is the set of tables fed by one pipeline. It is a row.Receiver.
type Group struct {
	layout Layout
	index  *row.FieldIndex
	tables []*Table
}

var _ row.Receiver = (*Group)(nil)

// Layout returns the group's pipeline layout.
func (g *Group) Layout() Layout { return g.layout }

// FieldIndex implements row.Receiver.
func (g *Group) FieldIndex() *row.FieldIndex { return g.index }

// Receive implements row.Receiver by fanning the row out to every table.
func (g *Group) Receive(values []val.Val) {
	for _, t := range g.tables {
		t.Accept(values)
	}
}

// Set holds the coprocessors of one search.
type Set struct {
	groups     []*Group
	byKey      map[string]*Group
	tables     []*Table
	completion *CompletionState
}

// NewSet builds one table coprocessor per settings entry, grouped by pipeline.
func NewSet(tables []table.Settings, m *matcher.Matcher, limits Limits) *Set {
	s := &Set{byKey: make(map[string]*Group), completion: NewCompletionState()}
	for _, l := range Layouts(tables) {
		g := &Group{layout: l, index: row.NewFieldIndex(l.Fields...)}
		s.groups = append(s.groups, g)
		s.byKey[l.Key] = g
	}
	for _, ts := range tables {
		g := s.byKey[ts.PipelineKey()]
		t := NewTable(ts, g.index, m, limits)
		g.tables = append(g.tables, t)
		s.tables = append(s.tables, t)
	}
	return s
}

// Groups returns the pipeline groups in first-seen order.
func (s *Set) Groups() []*Group { return s.groups }

// Group returns the group for a pipeline key.
func (s *Set) Group(key string) (*Group, bool) {
	g, ok := s.byKey[key]
	return g, ok
}

// ReceiveNamed merges rows laid out by fields into the group for key.
// Rows for unknown pipelines are ignored and reported as false.
func (s *Set) ReceiveNamed(key string, fields []string, rows [][]val.Val) bool {
	g, ok := s.byKey[key]
	if !ok {
		return false
	}
	positions := make([]int, len(fields))
	for i, f := range fields {
		positions[i] = g.index.Create(f)
	}
	for _, r := range rows {
		values := make([]val.Val, g.index.Len())
		for i, v := range r {
			if i < len(positions) {
				values[positions[i]] = v
			}
		}
		g.Receive(values)
	}
	return true
}

// Complete completes every table and the set itself.
func (s *Set) Complete() {
	for _, t := range s.tables {
		t.Completion().Complete()
	}
	s.completion.Complete()
}

// Completion returns the set-wide latch.
func (s *Set) Completion() *CompletionState { return s.completion }

// Snapshot returns every table result in request order.
func (s *Set) Snapshot() []search.TableResult {
	out := make([]search.TableResult, len(s.tables))
	for i, t := range s.tables {
		out[i] = t.Snapshot()
	}
	return out
}
