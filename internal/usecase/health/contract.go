package health

import "context"

// Pinger checks a backing store's availability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// TaskCounter reports the node searches running on this node.
type TaskCounter interface {
	Running() int
}
