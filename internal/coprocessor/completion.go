package coprocessor

import (
	"context"
	"sync"
	"time"
)

// CompletionState is a one-way latch. Completing twice is a no-op.
type CompletionState struct {
	once sync.Once
	done chan struct{}
}

// NewCompletionState returns an open latch.
func NewCompletionState() *CompletionState {
	return &CompletionState{done: make(chan struct{})}
}

// Complete closes the latch.
func (c *CompletionState) Complete() {
	c.once.Do(func() { close(c.done) })
}

// IsComplete reports whether the latch is closed.
func (c *CompletionState) IsComplete() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Done is closed on completion.
func (c *CompletionState) Done() <-chan struct{} { return c.done }

// Await waits up to d for completion and reports whether it happened.
func (c *CompletionState) Await(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-c.done:
		return true
	case <-ctx.Done():
		return c.IsComplete()
	case <-t.C:
		return c.IsComplete()
	}
}
