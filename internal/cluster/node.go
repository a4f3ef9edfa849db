// Package cluster knows the nodes of the cluster and how to reach them.
package cluster

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fedsearch/internal/logger"
)

// Node is one member of the cluster.
type Node struct {
	Name    string `json:"name" yaml:"name"`
	URL     string `json:"url" yaml:"url"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

// Liveness reports whether a node has recently announced itself.
type Liveness interface {
	Alive(ctx context.Context, name string) (bool, error)
}

// Cluster is the static node list combined with heartbeat liveness.
type Cluster struct {
	local    string
	nodes    map[string]Node
	liveness Liveness
}

// New creates a cluster view. liveness may be nil, in which case enabled nodes count as active.
func New(local string, nodes []Node, liveness Liveness) *Cluster {
	m := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		m[n.Name] = n
	}
	if _, ok := m[local]; !ok {
		m[local] = Node{Name: local, Enabled: true}
	}
	return &Cluster{local: local, nodes: m, liveness: liveness}
}

// Local returns the name of this node.
func (c *Cluster) Local() string { return c.local }

// Node returns the node named name.
func (c *Cluster) Node(name string) (Node, bool) {
	n, ok := c.nodes[name]
	return n, ok
}

// Nodes returns every known node ordered by name.
func (c *Cluster) Nodes() []Node {
	out := make([]Node, 0, len(c.nodes))
	for _, n := range c.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Available returns the node if it is enabled and active. The local node is always active.
// A liveness lookup failure counts as inactive.
func (c *Cluster) Available(ctx context.Context, name string) (Node, bool) {
	n, ok := c.nodes[name]
	if !ok || !n.Enabled {
		return n, false
	}
	if name == c.local || c.liveness == nil {
		return n, true
	}
	alive, err := c.liveness.Alive(ctx, name)
	if err != nil {
		logger.FromContext(ctx).Warn("node liveness lookup failed", zap.String("node", name), zap.Error(err))
		return n, false
	}
	return n, alive
}
