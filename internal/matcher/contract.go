package matcher

import (
	"context"

	"github.com/kailas-cloud/fedsearch/internal/domain/docref"
)

// WordListProvider resolves dictionary word lists. Each returned line is matched
// with the IN semantics of the field type.
type WordListProvider interface {
	Words(ctx context.Context, dictionary docref.DocRef) ([]string, error)
}

// FolderProvider resolves the documents of docType below a folder.
type FolderProvider interface {
	Descendants(ctx context.Context, folder docref.DocRef, docType string) ([]docref.DocRef, error)
}
