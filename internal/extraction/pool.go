package extraction

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// Pool bounds the extraction work running on a node.
type Pool struct {
	pool *ants.Pool
}

// NewPool creates a pool of workers goroutines. queue bounds the callers blocked on Submit;
// zero means unbounded.
func NewPool(workers, queue int, log *zap.Logger) (*Pool, error) {
	p, err := ants.NewPool(workers,
		ants.WithMaxBlockingTasks(queue),
		ants.WithPanicHandler(func(v any) {
			log.Error("extraction task panic", zap.Any("panic", v))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create extraction pool: %w", err)
	}
	return &Pool{pool: p}, nil
}

// Running returns the number of busy workers.
func (p *Pool) Running() int { return p.pool.Running() }

// Release stops the pool, waiting up to timeout for running tasks.
func (p *Pool) Release(timeout time.Duration) error {
	if err := p.pool.ReleaseTimeout(timeout); err != nil {
		return fmt.Errorf("release extraction pool: %w", err)
	}
	return nil
}

// Group returns a set of tasks that can be waited on together.
func (p *Pool) Group() *Group {
	return &Group{pool: p.pool}
}

// Group tracks the tasks submitted for one node search.
type Group struct {
	pool *ants.Pool
	wg   sync.WaitGroup
}

// Go submits fn, blocking while the pool is saturated. It fails when the context is done
// or the pool is closed or overloaded.
func (g *Group) Go(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.wg.Add(1)
	if err := g.pool.Submit(func() {
		defer g.wg.Done()
		fn()
	}); err != nil {
		g.wg.Done()
		return fmt.Errorf("submit extraction task: %w", err)
	}
	return nil
}

// Wait blocks until every submitted task has finished.
func (g *Group) Wait() { g.wg.Wait() }
