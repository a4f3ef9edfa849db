package matcher

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kailas-cloud/fedsearch/internal/dateexpr"
	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/domain/docref"
	"github.com/kailas-cloud/fedsearch/internal/domain/expression"
	"github.com/kailas-cloud/fedsearch/internal/domain/field"
	"github.com/kailas-cloud/fedsearch/internal/domain/val"
)

const delimiter = ","

// DefaultPatternCacheSize bounds the compiled pattern cache when no cache is injected.
const DefaultPatternCacheSize = 1024

// Matcher evaluates expressions against in-memory records.
//
// Records map field names to values of type string, int64, int, float64, bool,
// time.Time, docref.DocRef, val.Val or nil. A Matcher is safe for concurrent use;
// its only state is the pattern cache and the per-matcher word list cache.
type Matcher struct {
	catalog  field.Catalog
	words    WordListProvider
	folders  FolderProvider
	loc      *time.Location
	now      time.Time
	patterns *lru.Cache[string, *regexp.Regexp]

	wordsMu sync.Mutex
	wordMap map[string][]string
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithWordLists sets the dictionary provider used by IN_DICTIONARY.
func WithWordLists(p WordListProvider) Option { return func(m *Matcher) { m.words = p } }

// WithFolders sets the folder provider used by IN_FOLDER.
func WithFolders(p FolderProvider) Option { return func(m *Matcher) { m.folders = p } }

// WithTime sets the zone and reference instant for relative date expressions.
func WithTime(loc *time.Location, now time.Time) Option {
	return func(m *Matcher) {
		if loc != nil {
			m.loc = loc
		}
		m.now = now
	}
}

// WithPatternCache injects a shared compiled-pattern cache.
func WithPatternCache(c *lru.Cache[string, *regexp.Regexp]) Option {
	return func(m *Matcher) { m.patterns = c }
}

// NewPatternCache creates a pattern cache that can be shared across matchers.
func NewPatternCache(size int) *lru.Cache[string, *regexp.Regexp] {
	if size <= 0 {
		size = DefaultPatternCacheSize
	}
	c, err := lru.New[string, *regexp.Regexp](size)
	if err != nil {
		// Only returned for non-positive sizes, which are excluded above.
		panic(err)
	}
	return c
}

// New creates a Matcher over a field catalog.
func New(catalog field.Catalog, opts ...Option) *Matcher {
	m := &Matcher{
		catalog: catalog,
		loc:     time.UTC,
		now:     time.Now(),
		wordMap: make(map[string][]string),
	}
	for _, o := range opts {
		o(m)
	}
	if m.patterns == nil {
		m.patterns = NewPatternCache(DefaultPatternCacheSize)
	}
	return m
}

// Match reports whether record satisfies root. A null or disabled root never matches.
func (m *Matcher) Match(ctx context.Context, record map[string]any, root expression.Item) (bool, error) {
	if !root.Enabled() {
		return false, nil
	}
	return m.matchItem(ctx, record, root)
}

func (m *Matcher) matchItem(ctx context.Context, record map[string]any, item expression.Item) (bool, error) {
	switch item.Kind() {
	case expression.KindOperator:
		op, _ := item.Operator()
		return m.matchOperator(ctx, record, op)
	case expression.KindTerm:
		term, _ := item.Term()
		return m.matchTerm(ctx, record, term)
	default:
		return false, domain.NewMatchError("unexpected item kind %d", item.Kind())
	}
}

func (m *Matcher) matchOperator(ctx context.Context, record map[string]any, op expression.Operator) (bool, error) {
	children := op.EnabledChildren()

	switch op.Op {
	case expression.And:
		for _, c := range children {
			ok, err := m.matchItem(ctx, record, c)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case expression.Or:
		for _, c := range children {
			ok, err := m.matchItem(ctx, record, c)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	case expression.Not:
		if len(children) != 1 {
			return false, domain.NewMatchError("NOT requires exactly one enabled child, got %d", len(children))
		}
		ok, err := m.matchItem(ctx, record, children[0])
		if err != nil {
			return false, err
		}
		return !ok, nil
	default:
		return false, domain.NewMatchError("unexpected operator %q", op.Op)
	}
}

func (m *Matcher) matchTerm(ctx context.Context, record map[string]any, term expression.Term) (bool, error) {
	if term.Field == "" {
		return false, domain.NewMatchError("field not set")
	}
	f, err := m.catalog.Lookup(term.Field)
	if err != nil {
		return false, err
	}

	cond := term.Condition
	switch {
	case cond.UsesDocRef():
		if term.DocRef == nil || term.DocRef.UUID == "" {
			return false, domain.NewMatchError("doc ref not set for field %q", term.Field)
		}
	case cond.IsNullCheck():
	default:
		if term.Value == "" {
			return false, domain.NewMatchError("value not set for field %q", term.Field)
		}
	}

	attr := normalize(record[f.Name()])
	switch cond {
	case expression.IsNull:
		return attr == nil, nil
	case expression.IsNotNull:
		return attr != nil, nil
	}
	if attr == nil {
		return false, domain.AttributeNotFound(f.Name())
	}

	switch f.Type() {
	case field.Numeric:
		return m.matchOrdered(ctx, f, term, attr, numberOf)
	case field.Date:
		return m.matchOrdered(ctx, f, term, attr, m.dateOf)
	default:
		return m.matchText(ctx, f, term, attr)
	}
}

// parseFn converts an attribute or term value to a comparable integer.
type parseFn func(fieldName string, v any) (int64, error)

func (m *Matcher) matchOrdered(
	ctx context.Context, f field.Field, term expression.Term, attr any, parse parseFn,
) (bool, error) {
	name := f.Name()
	switch term.Condition {
	case expression.Equals, expression.Contains,
		expression.GreaterThan, expression.GreaterThanOrEqualTo,
		expression.LessThan, expression.LessThanOrEqualTo:
		a, err := parse(name, attr)
		if err != nil {
			return false, err
		}
		b, err := parse(name, term.Value)
		if err != nil {
			return false, err
		}
		return compareOrdered(term.Condition, a, b), nil
	case expression.Between:
		bounds, err := parseList(name, term.Value, parse)
		if err != nil {
			return false, err
		}
		if len(bounds) != 2 {
			return false, domain.NewMatchError("2 values needed for between query on %q", name)
		}
		if bounds[0] >= bounds[1] {
			return false, domain.NewMatchError("from value must be lower than to value for %q", name)
		}
		a, err := parse(name, attr)
		if err != nil {
			return false, err
		}
		return a >= bounds[0] && a <= bounds[1], nil
	case expression.In:
		return isOrderedIn(name, term.Value, attr, parse)
	case expression.InDictionary:
		lines, err := m.loadWords(ctx, *term.DocRef)
		if err != nil {
			return false, err
		}
		for _, line := range lines {
			ok, err := isOrderedIn(name, line, attr, parse)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	case expression.InFolder:
		return m.isInFolder(ctx, f, *term.DocRef, attr)
	}
	return false, unsupported(f, term.Condition)
}

// compareOrdered applies a comparison condition. EQUALS and CONTAINS are both equality.
func compareOrdered(cond expression.Condition, a, b int64) bool {
	switch cond {
	case expression.GreaterThan:
		return a > b
	case expression.GreaterThanOrEqualTo:
		return a >= b
	case expression.LessThan:
		return a < b
	case expression.LessThanOrEqualTo:
		return a <= b
	default:
		return a == b
	}
}

func isOrderedIn(name, list string, attr any, parse parseFn) (bool, error) {
	a, err := parse(name, attr)
	if err != nil {
		return false, err
	}
	values, err := parseList(name, list, parse)
	if err != nil {
		return false, err
	}
	for _, v := range values {
		if v == a {
			return true, nil
		}
	}
	return false, nil
}

func parseList(name, list string, parse parseFn) ([]int64, error) {
	parts := strings.Split(list, delimiter)
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

func (m *Matcher) matchText(ctx context.Context, f field.Field, term expression.Term, attr any) (bool, error) {
	switch term.Condition {
	case expression.Equals, expression.Contains:
		return m.isStringMatch(term.Value, attr)
	case expression.In:
		return m.isIn(term.Value, attr)
	case expression.MatchesRegex:
		if f.Type() != field.Text {
			break
		}
		re, err := m.pattern("re:"+term.Value, func() (*regexp.Regexp, error) {
			return regexp.Compile("^(?:" + term.Value + ")$")
		})
		if err != nil {
			return false, domain.NewMatchError("invalid regex for %q: %v", f.Name(), err)
		}
		return re.MatchString(textOf(attr)), nil
	case expression.InDictionary:
		lines, err := m.loadWords(ctx, *term.DocRef)
		if err != nil {
			return false, err
		}
		for _, line := range lines {
			ok, err := m.isIn(line, attr)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	case expression.InFolder:
		return m.isInFolder(ctx, f, *term.DocRef, attr)
	case expression.IsDocRef:
		ref, ok := attr.(docref.DocRef)
		return ok && ref.SameDoc(*term.DocRef), nil
	}
	return false, unsupported(f, term.Condition)
}

func (m *Matcher) isIn(list string, attr any) (bool, error) {
	for _, tv := range strings.Fields(list) {
		ok, err := m.isStringMatch(tv, attr)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func (m *Matcher) isStringMatch(termValue string, attr any) (bool, error) {
	re, err := m.pattern("wc:"+termValue, func() (*regexp.Regexp, error) {
		return compileWildcard(termValue)
	})
	if err != nil {
		return false, domain.NewMatchError("invalid pattern %q: %v", termValue, err)
	}
	if ref, ok := attr.(docref.DocRef); ok {
		return re.MatchString(ref.UUID) || re.MatchString(ref.Name), nil
	}
	return re.MatchString(textOf(attr)), nil
}

// compileWildcard turns a term value into an anchored pattern where * matches any run.
func compileWildcard(v string) (*regexp.Regexp, error) {
	parts := strings.Split(v, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.Compile("^" + strings.Join(parts, ".*") + "$")
}

func (m *Matcher) pattern(key string, compile func() (*regexp.Regexp, error)) (*regexp.Regexp, error) {
	if re, ok := m.patterns.Get(key); ok {
		return re, nil
	}
	re, err := compile()
	if err != nil {
		return nil, err
	}
	m.patterns.Add(key, re)
	return re, nil
}

func (m *Matcher) isInFolder(ctx context.Context, f field.Field, folder docref.DocRef, attr any) (bool, error) {
	if f.Type() != field.DocRef || f.DocRefType() == "" || m.folders == nil {
		return false, nil
	}
	ref, ok := attr.(docref.DocRef)
	if !ok || ref.UUID == "" {
		return false, nil
	}
	descendants, err := m.folders.Descendants(ctx, folder, f.DocRefType())
	if err != nil {
		return false, fmt.Errorf("resolve folder %s: %w", folder.UUID, err)
	}
	for _, d := range descendants {
		if d.SameDoc(ref) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Matcher) loadWords(ctx context.Context, ref docref.DocRef) ([]string, error) {
	if m.words == nil {
		return nil, nil
	}
	m.wordsMu.Lock()
	defer m.wordsMu.Unlock()
	if w, ok := m.wordMap[ref.UUID]; ok {
		return w, nil
	}
	w, err := m.words.Words(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("load dictionary %s: %w", ref.UUID, err)
	}
	m.wordMap[ref.UUID] = w
	return w, nil
}

func numberOf(name string, v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case time.Time:
		return n.UnixMilli(), nil
	}
	s := textOf(v)
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, domain.NewMatchError("expected a numeric value for field %q but was given %q", name, s)
	}
	return n, nil
}

func (m *Matcher) dateOf(name string, v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case time.Time:
		return n.UnixMilli(), nil
	}
	s := textOf(v)
	ms, err := dateexpr.ParseMillis(s, m.loc, m.now)
	if err != nil {
		return 0, domain.NewMatchError("expected a standard date value for field %q but was given %q", name, s)
	}
	return ms, nil
}

// normalize unwraps val.Val and maps nulls to nil.
func normalize(v any) any {
	if tv, ok := v.(val.Val); ok {
		if tv.IsNull() {
			return nil
		}
		return tv.Raw()
	}
	return v
}

func textOf(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	}
	return fmt.Sprint(v)
}

func unsupported(f field.Field, cond expression.Condition) error {
	return &domain.UnsupportedConditionError{
		Field:     f.Name(),
		FieldType: string(f.Type()),
		Condition: string(cond),
	}
}
