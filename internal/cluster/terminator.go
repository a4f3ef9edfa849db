package cluster

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/fedsearch/internal/logger"
)

// Terminator stops a search on every enabled node.
type Terminator struct {
	cluster *Cluster
	client  NodeClient
}

// NewTerminator creates a Terminator.
func NewTerminator(c *Cluster, client NodeClient) *Terminator {
	return &Terminator{cluster: c, client: client}
}

// TerminateAll asks every enabled node to stop the tasks of ancestorID and returns the number
// of tasks stopped. Unreachable nodes are logged and skipped.
func (t *Terminator) TerminateAll(ctx context.Context, ancestorID string) int {
	log := logger.FromContext(ctx)
	nodes := t.cluster.Nodes()
	counts := make([]int, len(nodes))

	var g errgroup.Group
	for i, n := range nodes {
		if !n.Enabled {
			continue
		}
		g.Go(func() error {
			c, err := t.client.Terminate(ctx, n, ancestorID)
			if err != nil {
				log.Warn("terminate failed", zap.String("node", n.Name),
					zap.String("ancestor_id", ancestorID), zap.Error(err))
				return nil
			}
			counts[i] = c
			return nil
		})
	}
	_ = g.Wait()

	total := 0
	for _, c := range counts {
		total += c
	}
	return total
}
