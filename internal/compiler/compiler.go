// Package compiler translates expressions into RediSearch queries over shard indexes.
package compiler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/fedsearch/internal/dateexpr"
	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/domain/expression"
	"github.com/kailas-cloud/fedsearch/internal/domain/field"
	"github.com/kailas-cloud/fedsearch/internal/matcher"
)

// StreamIDAttr and EventIDAttr are the sortable numeric attributes every shard document carries.
const (
	StreamIDAttr = "__stream_id"
	EventIDAttr  = "__event_id"
)

// MatchAll selects every document of a shard.
const MatchAll = "*"

// MatchNone selects nothing: stream ids are never negative.
const MatchNone = "@" + StreamIDAttr + ":[-1 -1]"

// Compiled is a native query plus the terms to highlight in results.
type Compiled struct {
	Query      string   `json:"query"`
	Highlights []string `json:"highlights"`
}

// Compiler builds native queries for one data source catalog.
type Compiler struct {
	catalog field.Catalog
	words   matcher.WordListProvider
	folders matcher.FolderProvider
	loc     *time.Location
	now     time.Time
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithWordLists sets the dictionary provider used by IN_DICTIONARY.
func WithWordLists(p matcher.WordListProvider) Option { return func(c *Compiler) { c.words = p } }

// WithFolders sets the folder provider used by IN_FOLDER.
func WithFolders(p matcher.FolderProvider) Option { return func(c *Compiler) { c.folders = p } }

// WithTime sets the zone and reference instant for relative date expressions.
func WithTime(loc *time.Location, now time.Time) Option {
	return func(c *Compiler) {
		if loc != nil {
			c.loc = loc
		}
		c.now = now
	}
}

// New creates a Compiler.
func New(catalog field.Catalog, opts ...Option) *Compiler {
	c := &Compiler{catalog: catalog, loc: time.UTC, now: time.Now()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Compile translates root. A null or disabled root compiles to MatchNone.
func (c *Compiler) Compile(ctx context.Context, root expression.Item) (Compiled, error) {
	if !root.Enabled() {
		return Compiled{Query: MatchNone, Highlights: []string{}}, nil
	}
	st := &state{seen: make(map[string]struct{}), highlights: []string{}}
	q, err := c.item(ctx, st, root, false)
	if err != nil {
		return Compiled{}, err
	}
	return Compiled{Query: q, Highlights: st.highlights}, nil
}

type state struct {
	seen       map[string]struct{}
	highlights []string
}

func (s *state) highlight(v string) {
	v = strings.TrimSpace(strings.ReplaceAll(v, "*", ""))
	if v == "" {
		return
	}
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.highlights = append(s.highlights, v)
}

func (c *Compiler) item(ctx context.Context, st *state, it expression.Item, negated bool) (string, error) {
	if op, ok := it.Operator(); ok {
		return c.operator(ctx, st, op, negated)
	}
	if t, ok := it.Term(); ok {
		return c.term(ctx, st, t, negated)
	}
	return "", domain.NewMatchError("unexpected item kind %d", it.Kind())
}

func (c *Compiler) operator(ctx context.Context, st *state, op expression.Operator, negated bool) (string, error) {
	children := op.EnabledChildren()

	if op.Op == expression.Not {
		if len(children) != 1 {
			return "", domain.NewMatchError("NOT requires exactly one enabled child, got %d", len(children))
		}
		inner, err := c.item(ctx, st, children[0], true)
		if err != nil {
			return "", err
		}
		return "-(" + inner + ")", nil
	}

	if len(children) == 0 {
		switch op.Op {
		case expression.And:
			return MatchAll, nil
		case expression.Or:
			return MatchNone, nil
		}
		return "", domain.NewMatchError("unexpected operator %q", op.Op)
	}

	parts := make([]string, 0, len(children))
	for _, ch := range children {
		p, err := c.item(ctx, st, ch, negated)
		if err != nil {
			return "", err
		}
		parts = append(parts, p)
	}
	switch op.Op {
	case expression.And:
		return group(parts, " "), nil
	case expression.Or:
		return group(parts, " | "), nil
	}
	return "", domain.NewMatchError("unexpected operator %q", op.Op)
}

func group(parts []string, sep string) string {
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, sep) + ")"
}

func (c *Compiler) term(ctx context.Context, st *state, t expression.Term, negated bool) (string, error) {
	if t.Field == "" {
		return "", domain.NewMatchError("field not set")
	}
	f, err := c.catalog.Lookup(t.Field)
	if err != nil {
		return "", err
	}
	if !f.Queryable() {
		return "", domain.NewMatchError("field %q is not queryable", f.Name())
	}

	switch {
	case t.Condition.UsesDocRef():
		if t.DocRef == nil || t.DocRef.UUID == "" {
			return "", domain.NewMatchError("doc ref not set for field %q", t.Field)
		}
	case t.Condition.IsNullCheck():
	default:
		if t.Value == "" {
			return "", domain.NewMatchError("value not set for field %q", t.Field)
		}
	}

	attr := "@" + escapeAttr(f.Name())
	switch t.Condition {
	case expression.IsNull:
		return "ismissing(" + attr + ")", nil
	case expression.IsNotNull:
		return "-ismissing(" + attr + ")", nil
	}

	switch f.Type() {
	case field.Numeric:
		return c.ordered(ctx, f, attr, t, parseNumber)
	case field.Date:
		return c.ordered(ctx, f, attr, t, c.parseDate)
	default:
		return c.tag(ctx, st, f, attr, t, negated)
	}
}

type parseFn func(fieldName, v string) (int64, error)

func (c *Compiler) ordered(ctx context.Context, f field.Field, attr string, t expression.Term, parse parseFn) (string, error) {
	name := f.Name()
	switch t.Condition {
	case expression.Equals, expression.Contains:
		n, err := parse(name, t.Value)
		if err != nil {
			return "", err
		}
		return numRange(attr, strconv.FormatInt(n, 10), strconv.FormatInt(n, 10)), nil
	case expression.GreaterThan, expression.GreaterThanOrEqualTo,
		expression.LessThan, expression.LessThanOrEqualTo:
		n, err := parse(name, t.Value)
		if err != nil {
			return "", err
		}
		v := strconv.FormatInt(n, 10)
		switch t.Condition {
		case expression.GreaterThan:
			return numRange(attr, "("+v, "+inf"), nil
		case expression.GreaterThanOrEqualTo:
			return numRange(attr, v, "+inf"), nil
		case expression.LessThan:
			return numRange(attr, "-inf", "("+v), nil
		default:
			return numRange(attr, "-inf", v), nil
		}
	case expression.Between:
		bounds, err := parseList(name, t.Value, parse)
		if err != nil {
			return "", err
		}
		if len(bounds) != 2 {
			return "", domain.NewMatchError("2 values needed for between query on %q", name)
		}
		if bounds[0] >= bounds[1] {
			return "", domain.NewMatchError("from value must be lower than to value for %q", name)
		}
		return numRange(attr, strconv.FormatInt(bounds[0], 10), strconv.FormatInt(bounds[1], 10)), nil
	case expression.In:
		return orderedIn(attr, name, []string{t.Value}, parse)
	case expression.InDictionary:
		lines, err := c.loadWords(ctx, t)
		if err != nil {
			return "", err
		}
		return orderedIn(attr, name, lines, parse)
	case expression.InFolder:
		return MatchNone, nil
	}
	return "", unsupported(f, t.Condition)
}

func orderedIn(attr, name string, lists []string, parse parseFn) (string, error) {
	var parts []string
	for _, l := range lists {
		values, err := parseList(name, l, parse)
		if err != nil {
			return "", err
		}
		for _, v := range values {
			s := strconv.FormatInt(v, 10)
			parts = append(parts, numRange(attr, s, s))
		}
	}
	if len(parts) == 0 {
		return MatchNone, nil
	}
	return group(parts, " | "), nil
}

func (c *Compiler) tag(
	ctx context.Context, st *state, f field.Field, attr string, t expression.Term, negated bool,
) (string, error) {
	highlight := !negated && f.Type() == field.Text

	switch t.Condition {
	case expression.Equals, expression.Contains:
		if highlight {
			st.highlight(t.Value)
		}
		return tagQuery(attr, []string{t.Value}), nil
	case expression.In:
		values := strings.Fields(t.Value)
		if highlight {
			for _, v := range values {
				st.highlight(v)
			}
		}
		return tagQuery(attr, values), nil
	case expression.InDictionary:
		lines, err := c.loadWords(ctx, t)
		if err != nil {
			return "", err
		}
		var values []string
		for _, l := range lines {
			values = append(values, strings.Fields(l)...)
		}
		return tagQuery(attr, values), nil
	case expression.IsDocRef:
		if f.Type() != field.DocRef {
			break
		}
		return tagQuery(attr, []string{t.DocRef.UUID}), nil
	case expression.InFolder:
		if f.Type() != field.DocRef || f.DocRefType() == "" || c.folders == nil {
			return MatchNone, nil
		}
		docs, err := c.folders.Descendants(ctx, *t.DocRef, f.DocRefType())
		if err != nil {
			return "", fmt.Errorf("resolve folder %s: %w", t.DocRef.UUID, err)
		}
		ids := make([]string, 0, len(docs))
		for _, d := range docs {
			ids = append(ids, d.UUID)
		}
		return tagQuery(attr, ids), nil
	}
	return "", unsupported(f, t.Condition)
}

// tagQuery builds a TAG clause. Values containing * become wildcard patterns and
// cannot share a clause with other values.
func tagQuery(attr string, values []string) string {
	var plain, parts []string
	for _, v := range values {
		if v == "" {
			continue
		}
		if strings.Contains(v, "*") {
			parts = append(parts, attr+":{w'"+wildcardEscaper.Replace(v)+"'}")
			continue
		}
		plain = append(plain, tagEscaper.Replace(v))
	}
	if len(plain) > 0 {
		parts = append([]string{attr + ":{" + strings.Join(plain, " | ") + "}"}, parts...)
	}
	if len(parts) == 0 {
		return MatchNone
	}
	return group(parts, " | ")
}

func numRange(attr, lo, hi string) string {
	return attr + ":[" + lo + " " + hi + "]"
}

func (c *Compiler) loadWords(ctx context.Context, t expression.Term) ([]string, error) {
	if c.words == nil {
		return nil, nil
	}
	w, err := c.words.Words(ctx, *t.DocRef)
	if err != nil {
		return nil, fmt.Errorf("load dictionary %s: %w", t.DocRef.UUID, err)
	}
	return w, nil
}

func parseList(name, list string, parse parseFn) ([]int64, error) {
	parts := strings.Split(list, ",")
	out := make([]int64, len(parts))
	for i, p := range parts {
		n, err := parse(name, strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

func parseNumber(name, v string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, domain.NewMatchError("expected a numeric value for field %q but was given %q", name, v)
	}
	return n, nil
}

func (c *Compiler) parseDate(name, v string) (int64, error) {
	ms, err := dateexpr.ParseMillis(v, c.loc, c.now)
	if err != nil {
		return 0, domain.NewMatchError("expected a standard date value for field %q but was given %q", name, v)
	}
	return ms, nil
}

func unsupported(f field.Field, cond expression.Condition) error {
	return &domain.UnsupportedConditionError{
		Field:     f.Name(),
		FieldType: string(f.Type()),
		Condition: string(cond),
	}
}

func escapeAttr(name string) string {
	return strings.ReplaceAll(name, "-", `\-`)
}

var tagEscaper = strings.NewReplacer(
	`\`, `\\`,
	",", "\\,",
	".", "\\.",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"[", "\\[",
	"]", "\\]",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	"|", "\\|",
	"/", "\\/",
	"?", "\\?",
	" ", "\\ ",
)

var wildcardEscaper = strings.NewReplacer(
	`\`, `\\`,
	"'", "\\'",
)
