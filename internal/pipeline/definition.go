// Package pipeline turns raw stream segments into typed field-value rows.
//
// A pipeline parses every event segment into a Record, labels it with its
// stream and event ids, and captures it onto a receiver's field layout.
package pipeline

import (
	"fmt"
	"unicode/utf8"

	"github.com/kailas-cloud/fedsearch/internal/domain/docref"
)

// ParserType selects the segment format.
type ParserType string

const (
	// JSON events hold one JSON object each.
	JSON ParserType = "json"
	// CSV headers hold the column names, events hold one delimited line each.
	CSV ParserType = "csv"
	// KV events hold key=value pairs.
	KV ParserType = "kv"
)

// ParserSpec configures the parser of a pipeline.
type ParserSpec struct {
	Type ParserType `json:"type" yaml:"type"`
	// Delimiter separates CSV columns or KV pairs. Defaults: "," for CSV, whitespace for KV.
	Delimiter string `json:"delimiter,omitempty" yaml:"delimiter,omitempty"`
	// Separator splits a KV pair into key and value. Default "=".
	Separator string `json:"separator,omitempty" yaml:"separator,omitempty"`
}

// Definition is a stored pipeline.
type Definition struct {
	Ref    docref.DocRef `json:"ref" yaml:"ref"`
	Parser ParserSpec    `json:"parser" yaml:"parser"`
}

// Validate checks the parser settings.
func (d Definition) Validate() error {
	if d.Ref.IsZero() {
		return fmt.Errorf("pipeline uuid is required")
	}
	switch d.Parser.Type {
	case JSON:
	case CSV:
		if d.Parser.Delimiter != "" && utf8.RuneCountInString(d.Parser.Delimiter) != 1 {
			return fmt.Errorf("pipeline %s: csv delimiter must be a single character", d.Ref.UUID)
		}
	case KV:
		if d.Parser.Separator != "" && d.Parser.Separator == d.Parser.Delimiter {
			return fmt.Errorf("pipeline %s: kv separator and delimiter must differ", d.Ref.UUID)
		}
	default:
		return fmt.Errorf("pipeline %s: unknown parser %q", d.Ref.UUID, d.Parser.Type)
	}
	return nil
}
