package search

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/fedsearch/internal/cluster"
	"github.com/kailas-cloud/fedsearch/internal/compiler"
	"github.com/kailas-cloud/fedsearch/internal/coprocessor"
	"github.com/kailas-cloud/fedsearch/internal/domain"
	domsearch "github.com/kailas-cloud/fedsearch/internal/domain/search"
	"github.com/kailas-cloud/fedsearch/internal/domain/shard"
	"github.com/kailas-cloud/fedsearch/internal/logger"
	"github.com/kailas-cloud/fedsearch/internal/matcher"
	"github.com/kailas-cloud/fedsearch/internal/metrics"
)

// Config tunes the dispatcher.
type Config struct {
	// AwaitInterval is how often a running search checks that it is still wanted.
	AwaitInterval time.Duration
	// SendFrequency is the node result pacing used when a request sets none.
	SendFrequency time.Duration
	// Limits apply to tables that set no store size or max results of their own.
	Limits coprocessor.Limits
}

// Dispatcher fans searches out to the nodes owning the data source shards.
type Dispatcher struct {
	docs     DocStore
	shards   ShardRegistry
	nodes    Nodes
	client   cluster.NodeClient
	term     Terminator
	results  ResultStore
	cfg      Config
	patterns *lru.Cache[string, *regexp.Regexp]
	now      func() time.Time
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(
	docs DocStore, shards ShardRegistry, nodes Nodes,
	client cluster.NodeClient, term Terminator, results ResultStore, cfg Config,
) *Dispatcher {
	if cfg.AwaitInterval <= 0 {
		cfg.AwaitInterval = time.Second
	}
	if cfg.SendFrequency <= 0 {
		cfg.SendFrequency = 500 * time.Millisecond
	}
	return &Dispatcher{
		docs:     docs,
		shards:   shards,
		nodes:    nodes,
		client:   client,
		term:     term,
		results:  results,
		cfg:      cfg,
		patterns: matcher.NewPatternCache(1024),
		now:      time.Now,
	}
}

// Run drives c through its states until the search completes or is terminated.
// ctx is the search context; cancelling it terminates the search on every node.
func (d *Dispatcher) Run(ctx context.Context, c *Collector, req domsearch.Request) {
	metrics.SearchesActive.Inc()
	defer metrics.SearchesActive.Dec()

	log := logger.FromContext(ctx).With(zap.String("key", c.Key().String()))
	ctx = logger.ContextWithLogger(ctx, log)
	start := d.now()

	targets, nodeReq, err := d.initialise(ctx, c, req)
	if err != nil {
		log.Warn("search failed to start", zap.Error(err))
		c.AddError(d.nodes.Local(), err.Error())
		d.finish(ctx, c, start)
		return
	}
	if len(targets) == 0 {
		d.finish(ctx, c, start)
		return
	}

	c.setState(StateDispatched)
	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		d.dispatch(ctx, c, targets, nodeReq)
	}()

	c.setState(StateAwaiting)
	d.await(ctx, c, dispatched)
	d.finish(ctx, c, start)
}

// initialise loads the catalog, builds the coprocessors, compiles the query and
// resolves the nodes to dispatch to.
func (d *Dispatcher) initialise(
	ctx context.Context, c *Collector, req domsearch.Request,
) ([]target, cluster.NodeSearchRequest, error) {
	var nodeReq cluster.NodeSearchRequest

	catalog, err := d.docs.Catalog(ctx, req.DataSource)
	if err != nil {
		return nil, nodeReq, fmt.Errorf("load data source: %w", err)
	}
	loc, err := req.Locale.Location()
	if err != nil {
		return nil, nodeReq, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}
	now := d.now()

	m := coprocessor.FilterMatcher(catalog,
		matcher.WithWordLists(d.docs),
		matcher.WithFolders(d.docs),
		matcher.WithTime(loc, now),
		matcher.WithPatternCache(d.patterns),
	)
	c.attach(coprocessor.NewSet(req.Tables, m, d.cfg.Limits))

	compiled, err := compiler.New(catalog,
		compiler.WithWordLists(d.docs),
		compiler.WithFolders(d.docs),
		compiler.WithTime(loc, now),
	).Compile(ctx, req.Expression)
	if err != nil {
		// Nodes compile the expression themselves and report the failure per node.
		logger.FromContext(ctx).Warn("compile query on coordinator", zap.Error(err))
		compiled = compiler.Compiled{}
	}
	c.setHighlights(compiled.Highlights)

	shards, err := d.shards.List(ctx, req.DataSource)
	if err != nil {
		return nil, nodeReq, fmt.Errorf("list shards: %w", err)
	}

	nodeReq = cluster.NodeSearchRequest{
		AncestorID:            c.Key().String(),
		DataSource:            req.DataSource,
		Expression:            req.Expression,
		NativeQuery:           compiled.Query,
		Layouts:               coprocessor.Layouts(req.Tables),
		TimeZone:              req.Locale.TimeZone,
		NowMs:                 now.UnixMilli(),
		ResultSendFrequencyMs: int(req.SendFrequency(d.cfg.SendFrequency).Milliseconds()),
	}

	byNode := shard.ByNode(shards)
	var targets []target
	for _, name := range slices.Sorted(maps.Keys(byNode)) {
		var ids []string
		for _, s := range byNode[name] {
			if s.IsCorrupt() {
				metrics.NodeErrorsTotal.WithLabelValues("corrupt").Inc()
				c.AddError(name, fmt.Sprintf("%s: %v", s, domain.ErrShardCorrupt))
				continue
			}
			ids = append(ids, s.ID)
		}
		if len(ids) == 0 {
			continue
		}
		n, ok := d.nodes.Available(ctx, name)
		if !ok {
			metrics.NodeErrorsTotal.WithLabelValues("unavailable").Inc()
			c.AddError(name, domain.ErrNodeUnavailable.Error())
			continue
		}
		n.Name = name
		targets = append(targets, target{node: n, shards: ids})
		c.Expect(name)
	}
	return targets, nodeReq, nil
}

// target is a node and the shards it is asked to search.
type target struct {
	node   cluster.Node
	shards []string
}

// dispatch runs one node search per target.
func (d *Dispatcher) dispatch(ctx context.Context, c *Collector, targets []target, base cluster.NodeSearchRequest) {
	log := logger.FromContext(ctx)
	var g errgroup.Group
	for _, t := range targets {
		req := base
		req.Shards = t.shards
		name := t.node.Name
		g.Go(func() error {
			err := d.client.Search(ctx, t.node, req, func(res cluster.NodeResult) error {
				c.Receive(name, res)
				return nil
			})
			if err != nil && ctx.Err() == nil {
				metrics.NodeErrorsTotal.WithLabelValues("transport").Inc()
				log.Warn("node search failed", zap.String("node", name), zap.Error(err))
				c.AddError(name, err.Error())
			}
			c.nodeFinished(name)
			return nil
		})
	}
	_ = g.Wait()
}

// await waits for the dispatch to finish while checking that the search is still stored.
// A search dropped from the result store, or whose context ends, is terminated cluster-wide.
func (d *Dispatcher) await(ctx context.Context, c *Collector, dispatched <-chan struct{}) {
	t := time.NewTicker(d.cfg.AwaitInterval)
	defer t.Stop()
	for {
		select {
		case <-dispatched:
			return
		case <-ctx.Done():
			d.terminate(ctx, c)
			return
		case <-t.C:
			if !d.results.Contains(c.Key()) {
				d.terminate(ctx, c)
				return
			}
		}
	}
}

func (d *Dispatcher) terminate(ctx context.Context, c *Collector) {
	c.Terminate()
	n := d.term.TerminateAll(context.WithoutCancel(ctx), c.Key().String())
	logger.FromContext(ctx).Info("search terminated", zap.Int("node_tasks", n))
}

func (d *Dispatcher) finish(ctx context.Context, c *Collector, start time.Time) {
	c.Complete()
	outcome := metrics.OutcomeComplete
	if c.State() == StateTerminated {
		outcome = metrics.OutcomeTerminated
	}
	metrics.SearchesTotal.WithLabelValues(outcome).Inc()

	resp := c.Snapshot()
	logger.FromContext(ctx).Info("search finished",
		zap.String("outcome", outcome),
		zap.Int("errors", resp.ErrorCount()),
		zap.Duration("duration", d.now().Sub(start)),
		zap.Bool("cancelled", errors.Is(ctx.Err(), context.Canceled)))
}
