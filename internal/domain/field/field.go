package field

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/kailas-cloud/fedsearch/internal/domain"
)

// Reserved field names present on every extracted record and index document.
const (
	StreamID = "StreamId"
	EventID  = "EventId"
)

// Type is the declared value type of a field.
type Type string

const (
	// Text holds free text, matched with wildcard patterns.
	Text Type = "TEXT"
	// Numeric holds 64-bit integers.
	Numeric Type = "NUMERIC"
	// Date holds epoch milliseconds.
	Date Type = "DATE"
	// DocRef holds a reference to a document.
	DocRef Type = "DOC_REF"
)

// Valid reports whether t is a known field type.
func (t Type) Valid() bool {
	switch t {
	case Text, Numeric, Date, DocRef:
		return true
	}
	return false
}

// IsNumeric reports whether values compare as integers.
func (t Type) IsNumeric() bool { return t == Numeric }

var nameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_\-]*$`)

// Field is a single catalog entry.
type Field struct {
	name       string
	fieldType  Type
	queryable  bool
	docRefType string
}

// New validates and creates a Field.
func New(name string, t Type, queryable bool) (Field, error) {
	name = strings.TrimSpace(name)
	if !nameRe.MatchString(name) {
		return Field{}, fmt.Errorf("invalid field name %q", name)
	}
	if !t.Valid() {
		return Field{}, fmt.Errorf("invalid field type %q for %q", t, name)
	}
	return Field{name: name, fieldType: t, queryable: queryable}, nil
}

// NewDocRef creates a DOC_REF field restricted to documents of docRefType.
func NewDocRef(name, docRefType string, queryable bool) (Field, error) {
	f, err := New(name, DocRef, queryable)
	if err != nil {
		return Field{}, err
	}
	f.docRefType = docRefType
	return f, nil
}

// Name returns the field name.
func (f Field) Name() string { return f.name }

// Type returns the declared type.
func (f Field) Type() Type { return f.fieldType }

// Queryable reports whether the field is indexed for search.
func (f Field) Queryable() bool { return f.queryable }

// DocRefType returns the document type a DOC_REF field points at.
func (f Field) DocRefType() string { return f.docRefType }

// Catalog is the field list of one data source.
type Catalog struct {
	fields []Field
	byName map[string]int
}

// NewCatalog builds a catalog, rejecting duplicate names.
func NewCatalog(fields ...Field) (Catalog, error) {
	c := Catalog{fields: make([]Field, 0, len(fields)), byName: make(map[string]int, len(fields))}
	for _, f := range fields {
		if _, dup := c.byName[f.name]; dup {
			return Catalog{}, fmt.Errorf("duplicate field %q", f.name)
		}
		c.byName[f.name] = len(c.fields)
		c.fields = append(c.fields, f)
	}
	return c, nil
}

// MustCatalog is NewCatalog that panics on error. Intended for tests and static catalogs.
func MustCatalog(fields ...Field) Catalog {
	c, err := NewCatalog(fields...)
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup returns the named field or ErrFieldNotFound.
func (c Catalog) Lookup(name string) (Field, error) {
	i, ok := c.byName[strings.TrimSpace(name)]
	if !ok {
		return Field{}, domain.FieldNotFound(name)
	}
	return c.fields[i], nil
}

// Fields returns a copy of the catalog entries in declaration order.
func (c Catalog) Fields() []Field { return slices.Clone(c.fields) }

// Len returns the number of fields.
func (c Catalog) Len() int { return len(c.fields) }
