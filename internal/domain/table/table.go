package table

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/fedsearch/internal/domain/docref"
	"github.com/kailas-cloud/fedsearch/internal/domain/expression"
	"github.com/kailas-cloud/fedsearch/internal/domain/field"
)

// Func is an aggregate applied to a column within a group.
type Func string

// Aggregate functions. The empty Func keeps the first value seen.
const (
	FuncNone    Func = ""
	FuncCount   Func = "count"
	FuncSum     Func = "sum"
	FuncMin     Func = "min"
	FuncMax     Func = "max"
	FuncAverage Func = "average"
	FuncFirst   Func = "first"
)

// Valid reports whether f is a known function.
func (f Func) Valid() bool {
	switch f {
	case FuncNone, FuncCount, FuncSum, FuncMin, FuncMax, FuncAverage, FuncFirst:
		return true
	}
	return false
}

// SortDir orders result rows by a column.
type SortDir string

// Sort directions. The empty SortDir leaves the column out of ordering.
const (
	SortNone SortDir = ""
	SortAsc  SortDir = "asc"
	SortDesc SortDir = "desc"
)

// Column is one output column of a table.
type Column struct {
	Name     string  `json:"name" yaml:"name"`
	Field    string  `json:"field" yaml:"field"`
	Group    bool    `json:"group,omitempty" yaml:"group,omitempty"`
	Function Func    `json:"function,omitempty" yaml:"function,omitempty"`
	Sort     SortDir `json:"sort,omitempty" yaml:"sort,omitempty"`
}

// Settings describes one result table of a search.
type Settings struct {
	ComponentID   string          `json:"componentId"`
	Columns       []Column        `json:"columns"`
	Filter        expression.Item `json:"filter,omitempty"`
	ExtractValues bool            `json:"extractValues"`
	Pipeline      docref.DocRef   `json:"pipeline,omitzero"`
	StoreSize     int             `json:"storeSize,omitempty"`
	MaxResults    int             `json:"maxResults,omitempty"`
}

// Validate checks the table definition.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.ComponentID) == "" {
		return fmt.Errorf("table componentId is required")
	}
	if len(s.Columns) == 0 {
		return fmt.Errorf("table %q has no columns", s.ComponentID)
	}
	for i, c := range s.Columns {
		if strings.TrimSpace(c.Field) == "" {
			return fmt.Errorf("table %q column %d has no field", s.ComponentID, i)
		}
		if !c.Function.Valid() {
			return fmt.Errorf("table %q column %q: unknown function %q", s.ComponentID, c.Name, c.Function)
		}
		if c.Sort != SortNone && c.Sort != SortAsc && c.Sort != SortDesc {
			return fmt.Errorf("table %q column %q: unknown sort %q", s.ComponentID, c.Name, c.Sort)
		}
		if !s.ExtractValues && c.Field != field.StreamID && c.Field != field.EventID {
			return fmt.Errorf("table %q column %q: only %s and %s are available without extraction",
				s.ComponentID, c.Name, field.StreamID, field.EventID)
		}
	}
	if s.ExtractValues && s.Pipeline.IsZero() {
		return fmt.Errorf("table %q extracts values but has no pipeline", s.ComponentID)
	}
	if s.StoreSize < 0 || s.MaxResults < 0 {
		return fmt.Errorf("table %q: store size and max results must not be negative", s.ComponentID)
	}
	return s.Filter.Validate()
}

// Grouped reports whether any column is a group column.
func (s Settings) Grouped() bool {
	for _, c := range s.Columns {
		if c.Group {
			return true
		}
	}
	return false
}

// Fields returns every field the table reads: column fields then filter fields.
func (s Settings) Fields() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(f string) {
		if _, ok := seen[f]; !ok {
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}
	for _, c := range s.Columns {
		add(c.Field)
	}
	for _, f := range s.Filter.Fields() {
		add(f)
	}
	return out
}

// PipelineKey groups tables that share an extraction pipeline.
// Tables without extraction share the empty key.
func (s Settings) PipelineKey() string {
	if !s.ExtractValues {
		return ""
	}
	return s.Pipeline.UUID
}

// ColumnName returns the display name, falling back to the field.
func (c Column) ColumnName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Field
}
