package query

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kailas-cloud/fedsearch/internal/domain/docref"
	"github.com/kailas-cloud/fedsearch/internal/domain/expression"
)

// Key identifies one logical search. It doubles as the ancestor id of every node task.
type Key string

// NewKey returns a fresh random key.
func NewKey() Key { return Key(uuid.NewString()) }

// ParseKey validates a client-supplied key.
func ParseKey(s string) (Key, error) {
	u, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("invalid query key %q: %w", s, err)
	}
	return Key(u.String()), nil
}

func (k Key) String() string { return string(k) }

// Query pairs a data source with an expression root. It is immutable after construction.
type Query struct {
	dataSource docref.DocRef
	expression expression.Item
}

// New validates and creates a Query.
func New(dataSource docref.DocRef, expr expression.Item) (Query, error) {
	if dataSource.IsZero() {
		return Query{}, fmt.Errorf("data source is required")
	}
	if err := expr.Validate(); err != nil {
		return Query{}, fmt.Errorf("invalid expression: %w", err)
	}
	return Query{dataSource: dataSource, expression: expr}, nil
}

// DataSource returns the data source reference.
func (q Query) DataSource() docref.DocRef { return q.dataSource }

// Expression returns the expression root.
func (q Query) Expression() expression.Item { return q.expression }
