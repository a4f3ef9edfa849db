package expression

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/fedsearch/internal/domain/docref"
)

// Op is a boolean operator.
type Op string

const (
	// And matches when every enabled child matches.
	And Op = "AND"
	// Or matches when any enabled child matches.
	Or Op = "OR"
	// Not negates its single enabled child.
	Not Op = "NOT"
)

// Valid reports whether o is a known operator.
func (o Op) Valid() bool { return o == And || o == Or || o == Not }

// Condition is the comparison a term applies to a field.
type Condition string

// Supported term conditions.
const (
	Equals               Condition = "EQUALS"
	Contains             Condition = "CONTAINS"
	In                   Condition = "IN"
	InDictionary         Condition = "IN_DICTIONARY"
	InFolder             Condition = "IN_FOLDER"
	IsDocRef             Condition = "IS_DOC_REF"
	IsNull               Condition = "IS_NULL"
	IsNotNull            Condition = "IS_NOT_NULL"
	Between              Condition = "BETWEEN"
	GreaterThan          Condition = "GREATER_THAN"
	GreaterThanOrEqualTo Condition = "GREATER_THAN_OR_EQUAL_TO"
	LessThan             Condition = "LESS_THAN"
	LessThanOrEqualTo    Condition = "LESS_THAN_OR_EQUAL_TO"
	MatchesRegex         Condition = "MATCHES_REGEX"
)

var conditions = map[Condition]struct{}{
	Equals: {}, Contains: {}, In: {}, InDictionary: {}, InFolder: {}, IsDocRef: {},
	IsNull: {}, IsNotNull: {}, Between: {}, GreaterThan: {}, GreaterThanOrEqualTo: {},
	LessThan: {}, LessThanOrEqualTo: {}, MatchesRegex: {},
}

// Valid reports whether c is a known condition.
func (c Condition) Valid() bool {
	_, ok := conditions[c]
	return ok
}

// UsesDocRef reports whether the condition reads Term.DocRef instead of Term.Value.
func (c Condition) UsesDocRef() bool {
	return c == InDictionary || c == InFolder || c == IsDocRef
}

// IsNullCheck reports whether the condition only tests attribute presence.
func (c Condition) IsNullCheck() bool { return c == IsNull || c == IsNotNull }

// Kind discriminates the payload of an Item.
type Kind uint8

const (
	// KindNone is the zero Item. It never matches.
	KindNone Kind = iota
	// KindOperator carries an Operator.
	KindOperator
	// KindTerm carries a Term.
	KindTerm
)

// Operator combines child items.
type Operator struct {
	Op       Op
	Children []Item
}

// Term is a single field condition.
type Term struct {
	Field     string
	Condition Condition
	Value     string
	DocRef    *docref.DocRef
}

// Item is either an Operator or a Term. The zero Item is a null expression.
type Item struct {
	kind     Kind
	disabled bool
	operator Operator
	term     Term
}

// NewOperator creates an enabled operator item.
func NewOperator(op Op, children ...Item) Item {
	return Item{kind: KindOperator, operator: Operator{Op: op, Children: children}}
}

// AndOf creates an AND operator.
func AndOf(children ...Item) Item { return NewOperator(And, children...) }

// OrOf creates an OR operator.
func OrOf(children ...Item) Item { return NewOperator(Or, children...) }

// NotOf creates a NOT operator.
func NotOf(children ...Item) Item { return NewOperator(Not, children...) }

// NewTerm creates an enabled value term. Field and value are trimmed.
func NewTerm(fieldName string, cond Condition, value string) Item {
	return Item{kind: KindTerm, term: Term{
		Field:     strings.TrimSpace(fieldName),
		Condition: cond,
		Value:     strings.TrimSpace(value),
	}}
}

// NewDocRefTerm creates an enabled term that compares against a document reference.
func NewDocRefTerm(fieldName string, cond Condition, ref docref.DocRef) Item {
	return Item{kind: KindTerm, term: Term{
		Field:     strings.TrimSpace(fieldName),
		Condition: cond,
		DocRef:    &ref,
	}}
}

// Disabled returns a copy of the item that is skipped during evaluation.
func (i Item) Disabled() Item {
	i.disabled = true
	return i
}

// Kind returns the payload kind.
func (i Item) Kind() Kind { return i.kind }

// IsZero reports whether the item is the null expression.
func (i Item) IsZero() bool { return i.kind == KindNone }

// Enabled reports whether the item takes part in evaluation.
func (i Item) Enabled() bool { return i.kind != KindNone && !i.disabled }

// Operator returns the operator payload.
func (i Item) Operator() (Operator, bool) { return i.operator, i.kind == KindOperator }

// Term returns the term payload.
func (i Item) Term() (Term, bool) { return i.term, i.kind == KindTerm }

// EnabledChildren returns the children that take part in evaluation.
func (o Operator) EnabledChildren() []Item {
	out := make([]Item, 0, len(o.Children))
	for _, c := range o.Children {
		if c.Enabled() {
			out = append(out, c)
		}
	}
	return out
}

// Validate checks the structure of the tree: known operators and conditions, fields set.
// Semantic checks that need a field catalog happen at evaluation time.
func (i Item) Validate() error {
	switch i.kind {
	case KindNone:
		return nil
	case KindOperator:
		if !i.operator.Op.Valid() {
			return fmt.Errorf("unknown operator %q", i.operator.Op)
		}
		for n, c := range i.operator.Children {
			if c.IsZero() {
				return fmt.Errorf("%s child %d is empty", i.operator.Op, n)
			}
			if err := c.Validate(); err != nil {
				return err
			}
		}
		return nil
	case KindTerm:
		if i.term.Field == "" {
			return fmt.Errorf("term field is required")
		}
		if !i.term.Condition.Valid() {
			return fmt.Errorf("unknown condition %q for field %q", i.term.Condition, i.term.Field)
		}
		return nil
	}
	return fmt.Errorf("unknown item kind %d", i.kind)
}

// Fields returns the distinct field names referenced by enabled terms, in first-seen order.
func (i Item) Fields() []string {
	seen := make(map[string]struct{})
	var out []string
	var walk func(Item)
	walk = func(it Item) {
		if !it.Enabled() {
			return
		}
		switch it.kind {
		case KindOperator:
			for _, c := range it.operator.Children {
				walk(c)
			}
		case KindTerm:
			if _, ok := seen[it.term.Field]; !ok {
				seen[it.term.Field] = struct{}{}
				out = append(out, it.term.Field)
			}
		}
	}
	walk(i)
	return out
}

func (i Item) String() string {
	var b strings.Builder
	i.write(&b)
	return b.String()
}

func (i Item) write(b *strings.Builder) {
	if i.disabled {
		b.WriteString("~")
	}
	switch i.kind {
	case KindNone:
		b.WriteString("<null>")
	case KindOperator:
		b.WriteString(string(i.operator.Op))
		b.WriteString(" {")
		for n, c := range i.operator.Children {
			if n > 0 {
				b.WriteString(", ")
			}
			c.write(b)
		}
		b.WriteString("}")
	case KindTerm:
		b.WriteString(i.term.Field)
		b.WriteString(" ")
		b.WriteString(string(i.term.Condition))
		if i.term.DocRef != nil {
			b.WriteString(" ")
			b.WriteString(i.term.DocRef.UUID)
		} else if i.term.Value != "" {
			fmt.Fprintf(b, " %q", i.term.Value)
		}
	}
}
