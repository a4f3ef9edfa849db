// Package extraction reconstructs full records for index hits from stream storage.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/domain/docref"
	"github.com/kailas-cloud/fedsearch/internal/domain/field"
	"github.com/kailas-cloud/fedsearch/internal/domain/row"
	"github.com/kailas-cloud/fedsearch/internal/logger"
	"github.com/kailas-cloud/fedsearch/internal/metrics"
	"github.com/kailas-cloud/fedsearch/internal/pipeline"
	"github.com/kailas-cloud/fedsearch/internal/storage"
)

// Task asks for the records of some events of one stream.
type Task struct {
	StreamID  int64
	EventIDs  []int64
	Pipeline  docref.DocRef
	Receiver  row.Receiver
	ErrorSink func(error)
}

// Extractor runs extraction tasks for one data source.
type Extractor struct {
	storage storage.Store
	defs    DefinitionSource
	catalog field.Catalog
	loc     *time.Location
	now     time.Time

	mu       sync.Mutex
	pipeDefs map[string]pipeline.Definition
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithTime sets the search's zone and instant used to type extracted dates.
func WithTime(loc *time.Location, now time.Time) Option {
	return func(e *Extractor) {
		e.loc = loc
		e.now = now
	}
}

// New creates an extractor. Pipeline definitions are loaded once per extractor.
func New(store storage.Store, defs DefinitionSource, catalog field.Catalog, opts ...Option) *Extractor {
	e := &Extractor{
		storage:  store,
		defs:     defs,
		catalog:  catalog,
		loc:      time.UTC,
		pipeDefs: make(map[string]pipeline.Definition),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract reads the header, footer and requested event segments of the task's stream,
// runs them through the pipeline and delivers rows to the task receiver in event order.
//
// A deleted stream yields (0, nil). A cancelled context yields (0, nil) without reporting.
// Any other failure is an ExtractionError, sent to the task's ErrorSink and returned.
func (e *Extractor) Extract(ctx context.Context, task Task) (int, error) {
	start := time.Now()
	n, err := e.extract(ctx, task)
	metrics.ExtractionDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.ExtractionTasksTotal.WithLabelValues("ok").Inc()
		metrics.ExtractionRowsTotal.Add(float64(n))
		return n, nil
	case errors.Is(err, domain.ErrStreamNotFound):
		metrics.ExtractionTasksTotal.WithLabelValues("missing").Inc()
		logger.FromContext(ctx).Debug("stream gone, skipping", zap.Int64("stream_id", task.StreamID))
		return 0, nil
	case ctx.Err() != nil:
		metrics.ExtractionTasksTotal.WithLabelValues("cancelled").Inc()
		return 0, nil
	}

	metrics.ExtractionTasksTotal.WithLabelValues("error").Inc()
	xerr := &domain.ExtractionError{StreamID: task.StreamID, Err: err}
	if task.ErrorSink != nil {
		task.ErrorSink(xerr)
	}
	return n, xerr
}

func (e *Extractor) extract(ctx context.Context, task Task) (int, error) {
	src, err := e.storage.Open(ctx, task.StreamID)
	if err != nil {
		return 0, err
	}
	prov, err := src.Provider(storage.DataGroup)
	if err != nil {
		return 0, fmt.Errorf("open data group: %w", err)
	}
	in, err := prov.Segments(ctx)
	if err != nil {
		return 0, err
	}

	count := in.Count()
	if count < 2 {
		return 0, fmt.Errorf("stream has %d segments, expected header and footer", count)
	}
	events := uniqueSorted(task.EventIDs)
	for _, idx := range append([]int64{0, count - 1}, events...) {
		if err := in.Include(idx); err != nil {
			return 0, err
		}
	}

	segments, err := in.Read(ctx)
	if err != nil {
		return 0, err
	}

	def, err := e.definition(ctx, task.Pipeline)
	if err != nil {
		return 0, err
	}
	capture := pipeline.NewCapture(e.catalog, task.Receiver, pipeline.WithTime(e.loc, e.now))
	p, err := pipeline.New(def, pipeline.IDEnrichment{}, capture)
	if err != nil {
		return 0, fmt.Errorf("build pipeline %s: %w", task.Pipeline.UUID, err)
	}
	if _, err := p.Run(ctx, task.StreamID, count, segments); err != nil {
		return capture.Rows(), err
	}

	if got := capture.Rows(); got != len(events) {
		logger.FromContext(ctx).Warn("extracted row count differs from hit count",
			zap.Int64("stream_id", task.StreamID),
			zap.Int("rows", got),
			zap.Int("hits", len(events)))
	}
	return capture.Rows(), nil
}

func (e *Extractor) definition(ctx context.Context, ref docref.DocRef) (pipeline.Definition, error) {
	e.mu.Lock()
	def, ok := e.pipeDefs[ref.UUID]
	e.mu.Unlock()
	if ok {
		return def, nil
	}

	def, err := e.defs.Pipeline(ctx, ref)
	if err != nil {
		return pipeline.Definition{}, fmt.Errorf("load pipeline %s: %w", ref.UUID, err)
	}
	e.mu.Lock()
	e.pipeDefs[ref.UUID] = def
	e.mu.Unlock()
	return def, nil
}

func uniqueSorted(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
