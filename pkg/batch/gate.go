package batch

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// DefaultSize is the default number of concurrent requests in one batch.
const DefaultSize = 10

// Gate bounds the number of requests in their network phase.
// One Gate belongs to exactly one batch.
type Gate struct {
	sem      *semaphore.Weighted
	size     int
	inFlight atomic.Int64
}

// NewGate creates a gate with the given capacity, DefaultSize if size < 1.
func NewGate(size int) *Gate {
	if size < 1 {
		size = DefaultSize
	}
	return &Gate{sem: semaphore.NewWeighted(int64(size)), size: size}
}

// Acquire blocks until a slot is free or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	g.inFlight.Add(1)
	return nil
}

// Release frees a slot taken by Acquire.
func (g *Gate) Release() {
	g.inFlight.Add(-1)
	g.sem.Release(1)
}

// Size returns the gate capacity.
func (g *Gate) Size() int {
	return g.size
}

// InFlight returns the number of held slots.
func (g *Gate) InFlight() int {
	return int(g.inFlight.Load())
}
