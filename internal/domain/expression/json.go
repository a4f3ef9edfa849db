package expression

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kailas-cloud/fedsearch/internal/domain/docref"
)

const (
	typeOperator = "operator"
	typeTerm     = "term"
)

type itemJSON struct {
	Type      string         `json:"type"`
	Enabled   *bool          `json:"enabled,omitempty"`
	Op        Op             `json:"op,omitempty"`
	Children  []Item         `json:"children,omitempty"`
	Field     string         `json:"field,omitempty"`
	Condition Condition      `json:"condition,omitempty"`
	Value     string         `json:"value,omitempty"`
	DocRef    *docref.DocRef `json:"docRef,omitempty"`
}

// MarshalJSON encodes the item with a "type" discriminator.
func (i Item) MarshalJSON() ([]byte, error) {
	var w itemJSON
	if i.disabled {
		f := false
		w.Enabled = &f
	}
	switch i.kind {
	case KindNone:
		return []byte("null"), nil
	case KindOperator:
		w.Type = typeOperator
		w.Op = i.operator.Op
		w.Children = i.operator.Children
	case KindTerm:
		w.Type = typeTerm
		w.Field = i.term.Field
		w.Condition = i.term.Condition
		w.Value = i.term.Value
		w.DocRef = i.term.DocRef
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes an item. A missing "enabled" means enabled.
func (i *Item) UnmarshalJSON(data []byte) error {
	if strings.TrimSpace(string(data)) == "null" {
		*i = Item{}
		return nil
	}
	var w itemJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode expression item: %w", err)
	}
	var out Item
	switch w.Type {
	case typeOperator:
		out = NewOperator(w.Op, w.Children...)
	case typeTerm:
		if w.DocRef != nil {
			out = NewDocRefTerm(w.Field, w.Condition, *w.DocRef)
			out.term.Value = strings.TrimSpace(w.Value)
		} else {
			out = NewTerm(w.Field, w.Condition, w.Value)
		}
	default:
		return fmt.Errorf("unknown expression item type %q", w.Type)
	}
	if w.Enabled != nil && !*w.Enabled {
		out = out.Disabled()
	}
	*i = out
	return nil
}
