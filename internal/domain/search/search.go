package search

import (
	"fmt"
	"time"

	"github.com/kailas-cloud/fedsearch/internal/domain/docref"
	"github.com/kailas-cloud/fedsearch/internal/domain/expression"
	"github.com/kailas-cloud/fedsearch/internal/domain/query"
	"github.com/kailas-cloud/fedsearch/internal/domain/table"
	"github.com/kailas-cloud/fedsearch/internal/domain/val"
)

// Locale carries the client's date handling preferences.
type Locale struct {
	TimeZone string `json:"timeZone,omitempty"`
}

// Location resolves the time zone, defaulting to UTC.
func (l Locale) Location() (*time.Location, error) {
	if l.TimeZone == "" || l.TimeZone == "Z" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(l.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("unknown time zone %q: %w", l.TimeZone, err)
	}
	return loc, nil
}

// Request is what a client submits.
type Request struct {
	Key                   query.Key        `json:"key,omitempty"`
	DataSource            docref.DocRef    `json:"dataSource"`
	Expression            expression.Item  `json:"expression"`
	Tables                []table.Settings `json:"tables"`
	Locale                Locale           `json:"dateTimeLocale"`
	ResultSendFrequencyMs int              `json:"resultSendFrequencyMs,omitempty"`
}

// Query builds the immutable query of the request.
func (r Request) Query() (query.Query, error) {
	return query.New(r.DataSource, r.Expression)
}

// Validate checks everything that can be checked without the doc store.
func (r Request) Validate() error {
	if _, err := r.Query(); err != nil {
		return err
	}
	if len(r.Tables) == 0 {
		return fmt.Errorf("at least one table is required")
	}
	seen := make(map[string]struct{}, len(r.Tables))
	for _, t := range r.Tables {
		if err := t.Validate(); err != nil {
			return err
		}
		if _, dup := seen[t.ComponentID]; dup {
			return fmt.Errorf("duplicate table componentId %q", t.ComponentID)
		}
		seen[t.ComponentID] = struct{}{}
	}
	if r.ResultSendFrequencyMs < 0 {
		return fmt.Errorf("resultSendFrequencyMs must not be negative")
	}
	if _, err := r.Locale.Location(); err != nil {
		return err
	}
	return nil
}

// SendFrequency returns the pacing hint, or def when unset.
func (r Request) SendFrequency(def time.Duration) time.Duration {
	if r.ResultSendFrequencyMs <= 0 {
		return def
	}
	return time.Duration(r.ResultSendFrequencyMs) * time.Millisecond
}

// Row is one result row. GroupKey is set for grouped tables.
type Row struct {
	GroupKey string    `json:"groupKey,omitempty"`
	Values   []val.Val `json:"values"`
}

// TableResult is the current content of one table.
type TableResult struct {
	ComponentID  string   `json:"componentId"`
	Fields       []string `json:"fields"`
	Rows         []Row    `json:"rows"`
	TotalResults int      `json:"totalResults"`
	Dropped      int      `json:"dropped,omitempty"`
	Filtered     int      `json:"filtered,omitempty"`
}

// Response is what a poll returns.
type Response struct {
	Key        query.Key           `json:"key"`
	State      string              `json:"state"`
	Highlights []string            `json:"highlights"`
	Results    []TableResult       `json:"results"`
	Errors     map[string][]string `json:"errors,omitempty"`
	Complete   bool                `json:"complete"`
}

// ErrorCount returns the number of error messages across nodes.
func (r Response) ErrorCount() int {
	n := 0
	for _, msgs := range r.Errors {
		n += len(msgs)
	}
	return n
}

// Table returns the result for a component id.
func (r Response) Table(componentID string) (TableResult, bool) {
	for _, t := range r.Results {
		if t.ComponentID == componentID {
			return t, true
		}
	}
	return TableResult{}, false
}
