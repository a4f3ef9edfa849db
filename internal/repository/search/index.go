package search

import (
	"fmt"
	"strconv"

	"github.com/kailas-cloud/fedsearch/internal/compiler"
	"github.com/kailas-cloud/fedsearch/internal/db"
	"github.com/kailas-cloud/fedsearch/internal/domain/field"
	"github.com/kailas-cloud/fedsearch/internal/domain/val"
)

// SeqAttr orders hits by stream, then event, so paging is stable.
const SeqAttr = "__seq"

// eventBits is the width reserved for the event id inside SeqAttr.
// Sequence numbers stay below 2^53 so they survive the engine's double representation.
const eventBits = 20

// MaxEventID is the largest event id that can be indexed.
const MaxEventID = 1<<eventBits - 1

// MaxStreamID is the largest stream id that can be indexed.
const MaxStreamID = 1<<(53-eventBits) - 1

func seq(streamID, eventID int64) int64 { return streamID<<eventBits | eventID }

// IndexName returns the FT index name of a shard.
func IndexName(prefix, shardID string) string {
	return fmt.Sprintf("%sshard:%s", prefix, shardID)
}

// DocPrefix returns the key prefix of a shard's documents.
func DocPrefix(prefix, shardID string) string {
	return fmt.Sprintf("%sdoc:%s:", prefix, shardID)
}

func docKey(prefix, shardID string, streamID, eventID int64) string {
	return fmt.Sprintf("%s%d:%d", DocPrefix(prefix, shardID), streamID, eventID)
}

// buildIndex maps the queryable fields of a catalog onto an FT schema.
// TEXT and DOC_REF become tags, NUMERIC and DATE become numeric ranges.
func buildIndex(prefix, shardID string, catalog field.Catalog) (*db.IndexDefinition, error) {
	b := db.NewIndex(IndexName(prefix, shardID)).
		Prefix(DocPrefix(prefix, shardID)).
		SortableNumeric(compiler.StreamIDAttr).
		SortableNumeric(compiler.EventIDAttr).
		SortableNumeric(SeqAttr)

	for _, f := range catalog.Fields() {
		if !f.Queryable() {
			continue
		}
		switch f.Type() {
		case field.Text, field.DocRef:
			b.Tag(f.Name())
		case field.Numeric, field.Date:
			b.Numeric(f.Name())
		default:
			return nil, fmt.Errorf("unknown field type: %s", f.Type())
		}
	}

	return b.Build()
}

// encodeFields renders typed values as hash fields. Null values are left out so ismissing() sees them.
func encodeFields(catalog field.Catalog, values map[string]val.Val) (map[string]string, error) {
	out := make(map[string]string, len(values))
	for name, v := range values {
		if v.IsNull() {
			continue
		}
		f, err := catalog.Lookup(name)
		if err != nil {
			return nil, err
		}
		if !f.Queryable() {
			continue
		}
		switch f.Type() {
		case field.Numeric, field.Date:
			n, ok := v.AsLong()
			if !ok {
				return nil, fmt.Errorf("field %q: %q is not numeric", name, v.String())
			}
			out[name] = strconv.FormatInt(n, 10)
		default:
			out[name] = v.String()
		}
	}
	return out, nil
}
