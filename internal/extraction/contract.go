package extraction

import (
	"context"

	"github.com/kailas-cloud/fedsearch/internal/domain/docref"
	"github.com/kailas-cloud/fedsearch/internal/pipeline"
)

// DefinitionSource loads stored pipeline definitions.
type DefinitionSource interface {
	Pipeline(ctx context.Context, ref docref.DocRef) (pipeline.Definition, error)
}
