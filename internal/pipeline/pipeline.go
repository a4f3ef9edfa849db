package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/fedsearch/internal/dateexpr"
	"github.com/kailas-cloud/fedsearch/internal/domain/field"
	"github.com/kailas-cloud/fedsearch/internal/domain/row"
	"github.com/kailas-cloud/fedsearch/internal/domain/val"
	"github.com/kailas-cloud/fedsearch/internal/storage"
)

// Record is one parsed event.
type Record struct {
	StreamID int64
	EventID  int64
	Values   map[string]val.Val
}

// Step transforms or consumes a record.
type Step interface {
	Apply(rec *Record) error
}

// IDEnrichment labels a record with its stream id and original event id.
type IDEnrichment struct{}

// Apply implements Step.
func (IDEnrichment) Apply(rec *Record) error {
	if rec.Values == nil {
		rec.Values = make(map[string]val.Val, 2)
	}
	rec.Values[field.StreamID] = val.Long(rec.StreamID)
	rec.Values[field.EventID] = val.Long(rec.EventID)
	return nil
}

// Capture projects records onto a receiver's field layout and forwards them.
// Values are typed through the data source catalog.
type Capture struct {
	catalog  field.Catalog
	receiver row.Receiver
	loc      *time.Location
	now      time.Time
	rows     int
}

// CaptureOption configures a Capture.
type CaptureOption func(*Capture)

// WithTime sets the zone and instant that date strings without an offset and
// relative date expressions are resolved against. The default is UTC and time.Now.
func WithTime(loc *time.Location, now time.Time) CaptureOption {
	return func(c *Capture) {
		if loc != nil {
			c.loc = loc
		}
		if !now.IsZero() {
			c.now = now
		}
	}
}

// NewCapture creates an output capture for one extraction.
func NewCapture(catalog field.Catalog, receiver row.Receiver, opts ...CaptureOption) *Capture {
	c := &Capture{catalog: catalog, receiver: receiver, loc: time.UTC, now: time.Now()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Apply implements Step.
func (c *Capture) Apply(rec *Record) error {
	names := c.receiver.FieldIndex().Names()
	values := make([]val.Val, len(names))
	for i, name := range names {
		values[i] = c.typed(name, rec.Values[name])
	}
	c.receiver.Receive(values)
	c.rows++
	return nil
}

// Rows returns the number of captured records.
func (c *Capture) Rows() int { return c.rows }

func (c *Capture) typed(name string, v val.Val) val.Val {
	if v.IsNull() || name == field.StreamID || name == field.EventID {
		return v
	}
	f, err := c.catalog.Lookup(name)
	if err != nil {
		return v
	}
	switch f.Type() {
	case field.Numeric:
		return numeric(v)
	case field.Date:
		return c.date(v)
	default:
		if v.Kind() == val.KindString {
			return v
		}
		return val.String(v.String())
	}
}

func numeric(v val.Val) val.Val {
	if v.Kind() != val.KindString {
		if v.IsNumeric() {
			return v
		}
		return val.Null()
	}
	s := strings.TrimSpace(v.String())
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return val.Long(n)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return val.Double(f)
	}
	return val.Null()
}

func (c *Capture) date(v val.Val) val.Val {
	if v.IsNumeric() {
		ms, _ := v.AsLong()
		return val.Date(ms)
	}
	ms, err := dateexpr.ParseMillis(v.String(), c.loc, c.now)
	if err != nil {
		return val.Null()
	}
	return val.Date(ms)
}

// Pipeline runs a parser and a chain of steps over the segments of one stream.
type Pipeline struct {
	parser Parser
	steps  []Step
}

// New builds a pipeline from a stored definition. Steps run after parsing, in order.
func New(def Definition, steps ...Step) (*Pipeline, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	p, err := NewParser(def.Parser)
	if err != nil {
		return nil, err
	}
	return &Pipeline{parser: p, steps: steps}, nil
}

// Run processes segments read from a stream of count segments.
// Segment 0 is the header and segment count-1 the footer; both are skipped as events.
// It returns the number of records that went through every step.
func (p *Pipeline) Run(ctx context.Context, streamID int64, count int64, segments []storage.Segment) (int, error) {
	var header []byte
	if len(segments) > 0 && segments[0].Index == 0 {
		header = segments[0].Data
	}
	parse, err := p.parser.Start(header)
	if err != nil {
		return 0, fmt.Errorf("stream %d header: %w", streamID, err)
	}

	n := 0
	for _, seg := range segments {
		if seg.Index == 0 || seg.Index == count-1 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return n, err
		}
		values, err := parse(seg.Data)
		if err != nil {
			return n, fmt.Errorf("event %d: %w", seg.Index, err)
		}
		rec := Record{StreamID: streamID, EventID: seg.Index, Values: values}
		for _, s := range p.steps {
			if err := s.Apply(&rec); err != nil {
				return n, fmt.Errorf("event %d: %w", seg.Index, err)
			}
		}
		n++
	}
	return n, nil
}
