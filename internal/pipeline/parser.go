package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/kailas-cloud/fedsearch/internal/domain/val"
)

// EventFunc parses one event segment.
type EventFunc func(data []byte) (map[string]val.Val, error)

// Parser reads the header segment and returns the parser for the events that follow it.
type Parser interface {
	Start(header []byte) (EventFunc, error)
}

// NewParser builds the parser for spec.
func NewParser(spec ParserSpec) (Parser, error) {
	switch spec.Type {
	case JSON:
		return jsonParser{}, nil
	case CSV:
		comma := ','
		if spec.Delimiter != "" {
			comma, _ = utf8.DecodeRuneInString(spec.Delimiter)
		}
		return csvParser{comma: comma}, nil
	case KV:
		sep := spec.Separator
		if sep == "" {
			sep = "="
		}
		return kvParser{delimiter: spec.Delimiter, separator: sep}, nil
	}
	return nil, fmt.Errorf("unknown parser %q", spec.Type)
}

type jsonParser struct{}

func (jsonParser) Start([]byte) (EventFunc, error) {
	return func(data []byte) (map[string]val.Val, error) {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			return nil, fmt.Errorf("decode json event: %w", err)
		}
		out := make(map[string]val.Val, len(obj))
		for k, v := range obj {
			out[k] = jsonValue(v)
		}
		return out, nil
	}, nil
}

func jsonValue(v any) val.Val {
	switch t := v.(type) {
	case nil:
		return val.Null()
	case string:
		return val.String(t)
	case bool:
		return val.Bool(t)
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return val.Long(n)
		}
		if f, err := t.Float64(); err == nil {
			return val.Double(f)
		}
		return val.String(t.String())
	}
	// nested objects and arrays are kept as their JSON text
	raw, err := json.Marshal(v)
	if err != nil {
		return val.Null()
	}
	return val.String(string(raw))
}

type csvParser struct {
	comma rune
}

func (p csvParser) Start(header []byte) (EventFunc, error) {
	cols, err := p.line(header)
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i := range cols {
		cols[i] = strings.TrimSpace(cols[i])
	}
	return func(data []byte) (map[string]val.Val, error) {
		cells, err := p.line(data)
		if err != nil {
			return nil, fmt.Errorf("read csv event: %w", err)
		}
		out := make(map[string]val.Val, len(cols))
		for i, c := range cols {
			if c == "" || i >= len(cells) || cells[i] == "" {
				continue
			}
			out[c] = val.String(cells[i])
		}
		return out, nil
	}, nil
}

func (p csvParser) line(data []byte) ([]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = p.comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	rec, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	return rec, err
}

type kvParser struct {
	delimiter string
	separator string
}

func (p kvParser) Start([]byte) (EventFunc, error) {
	return func(data []byte) (map[string]val.Val, error) {
		var pairs []string
		if p.delimiter == "" {
			pairs = strings.Fields(string(data))
		} else {
			pairs = strings.Split(string(data), p.delimiter)
		}
		out := make(map[string]val.Val, len(pairs))
		for _, pair := range pairs {
			k, v, ok := strings.Cut(strings.TrimSpace(pair), p.separator)
			if !ok || strings.TrimSpace(k) == "" {
				continue
			}
			out[strings.TrimSpace(k)] = val.String(strings.Trim(strings.TrimSpace(v), `"`))
		}
		return out, nil
	}, nil
}
