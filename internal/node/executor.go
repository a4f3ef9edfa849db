// Package node runs the shard searches a coordinator asks of this node.
package node

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fedsearch/internal/cluster"
	"github.com/kailas-cloud/fedsearch/internal/compiler"
	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/domain/field"
	dsearch "github.com/kailas-cloud/fedsearch/internal/domain/search"
	"github.com/kailas-cloud/fedsearch/internal/domain/val"
	"github.com/kailas-cloud/fedsearch/internal/extraction"
	"github.com/kailas-cloud/fedsearch/internal/logger"
	"github.com/kailas-cloud/fedsearch/internal/metrics"
	"github.com/kailas-cloud/fedsearch/internal/repository/search"
	"github.com/kailas-cloud/fedsearch/internal/storage"
)

// DefaultSendFrequency paces result messages when a request does not.
const DefaultSendFrequency = 500 * time.Millisecond

// Executor searches local shards and streams rows back to the coordinator.
type Executor struct {
	name     string
	docs     docStore
	shards   shardSearcher
	storage  storage.Store
	pool     *extraction.Pool
	registry *TaskRegistry
	sendFreq time.Duration
	log      *zap.Logger
}

var _ cluster.Executor = (*Executor)(nil)

// Option configures an Executor.
type Option func(*Executor)

// WithSendFrequency sets the default result pacing.
func WithSendFrequency(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.sendFreq = d
		}
	}
}

// WithLogger sets the logger used when the request context carries none.
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) { e.log = l }
}

// NewExecutor creates the executor of node name.
func NewExecutor(
	name string, docs docStore, shards shardSearcher, store storage.Store, pool *extraction.Pool,
	opts ...Option,
) *Executor {
	e := &Executor{
		name:     name,
		docs:     docs,
		shards:   shards,
		storage:  store,
		pool:     pool,
		registry: NewTaskRegistry(),
		sendFreq: DefaultSendFrequency,
		log:      zap.NewNop(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Running returns the number of node searches in flight.
func (e *Executor) Running() int { return e.registry.Len() }

// Terminate cancels every search task of ancestorID.
func (e *Executor) Terminate(ancestorID string) int {
	n := e.registry.Terminate(ancestorID)
	if n > 0 {
		e.log.Info("node search terminated", zap.String("ancestor_id", ancestorID), zap.Int("tasks", n))
	}
	return n
}

// Execute runs req and streams results to send. It always finishes with a Complete result
// unless send itself fails. Failures are reported as node errors, not returned.
func (e *Executor) Execute(ctx context.Context, req cluster.NodeSearchRequest, send cluster.ResultFunc) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	unregister := e.registry.Register(req.AncestorID, cancel)
	defer unregister()

	log := logger.FromContextOr(ctx, e.log).With(zap.String("ancestor_id", req.AncestorID), zap.String("node", e.name))
	ctx = logger.ContextWithLogger(ctx, log)

	out := newOutbox(e.name, send)
	freq := dsearch.Request{ResultSendFrequencyMs: req.ResultSendFrequencyMs}.SendFrequency(e.sendFreq)
	stopPacer := e.pace(ctx, cancel, out, freq)

	e.run(ctx, req, out)

	stopPacer()
	if errors.Is(context.Cause(ctx), domain.ErrTaskTerminated) {
		log.Debug("node search stopped by terminate request")
	}
	return out.flush(true)
}

func (e *Executor) pace(ctx context.Context, cancel context.CancelCauseFunc, out *outbox, freq time.Duration) func() {
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		t := time.NewTicker(freq)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				if err := out.flush(false); err != nil {
					logger.FromContext(ctx).Warn("send node result", zap.Error(err))
					cancel(err)
					return
				}
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}

func (e *Executor) run(ctx context.Context, req cluster.NodeSearchRequest, out *outbox) {
	log := logger.FromContext(ctx)

	catalog, err := e.docs.Catalog(ctx, req.DataSource)
	if err != nil {
		e.fail(out, "load catalog", err)
		return
	}
	loc, err := dsearch.Locale{TimeZone: req.TimeZone}.Location()
	if err != nil {
		e.fail(out, "resolve time zone", fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err))
		return
	}
	now := time.Now()
	if req.NowMs > 0 {
		now = time.UnixMilli(req.NowMs)
	}
	query, err := e.query(ctx, req, catalog, loc, now)
	if err != nil {
		e.fail(out, "compile query", err)
		return
	}

	extractor := extraction.New(e.storage, e.docs, catalog, extraction.WithTime(loc, now))
	group := e.pool.Group()
	buffers := make([]*buffer, len(req.Layouts))
	for i, l := range req.Layouts {
		fields := l.Fields
		if !l.Extract {
			fields = []string{field.StreamID, field.EventID}
		}
		buffers[i] = out.buffer(l.Key, fields)
	}

	onHits := func(ctx context.Context, hits search.StreamHits) error {
		for i, l := range req.Layouts {
			if !l.Extract {
				for _, ev := range hits.EventIDs {
					buffers[i].Receive([]val.Val{val.Long(hits.StreamID), val.Long(ev)})
				}
				continue
			}
			task := extraction.Task{
				StreamID: hits.StreamID,
				EventIDs: hits.EventIDs,
				Pipeline: l.Pipeline,
				Receiver: buffers[i],
				ErrorSink: func(err error) {
					metrics.NodeErrorsTotal.WithLabelValues("extraction").Inc()
					out.addError(err.Error())
				},
			}
			if err := group.Go(ctx, func() { _, _ = extractor.Extract(ctx, task) }); err != nil {
				return err
			}
		}
		return nil
	}

	results := e.shards.SearchShards(ctx, req.Shards, query, onHits)
	group.Wait()

	if ctx.Err() != nil {
		return
	}
	hits := 0
	for _, r := range results {
		hits += r.Hits
		if r.Err != nil {
			metrics.NodeErrorsTotal.WithLabelValues("shard").Inc()
			log.Warn("shard search failed", zap.String("shard", r.ShardID), zap.Error(r.Err))
			out.addError(fmt.Sprintf("shard %s: %v", r.ShardID, r.Err))
		}
	}
	log.Debug("node search finished", zap.Int("shards", len(results)), zap.Int("hits", hits))
}

func (e *Executor) query(
	ctx context.Context, req cluster.NodeSearchRequest, catalog field.Catalog, loc *time.Location, now time.Time,
) (string, error) {
	if req.NativeQuery != "" {
		return req.NativeQuery, nil
	}
	c := compiler.New(catalog,
		compiler.WithWordLists(e.docs),
		compiler.WithFolders(e.docs),
		compiler.WithTime(loc, now),
	)
	compiled, err := c.Compile(ctx, req.Expression)
	if err != nil {
		return "", err
	}
	return compiled.Query, nil
}

func (e *Executor) fail(out *outbox, op string, err error) {
	metrics.NodeErrorsTotal.WithLabelValues("setup").Inc()
	out.addError(fmt.Sprintf("%s: %v", op, err))
}
