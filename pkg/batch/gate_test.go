package batch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate(t *testing.T) {
	ctx := context.Background()
	g := NewGate(2)
	assert.Equal(t, 2, g.Size())

	require.NoError(t, g.Acquire(ctx))
	require.NoError(t, g.Acquire(ctx))
	assert.Equal(t, 2, g.InFlight())

	// full gate blocks until the context is done
	timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, g.Acquire(timeoutCtx), context.DeadlineExceeded)
	assert.Equal(t, 2, g.InFlight())

	g.Release()
	assert.Equal(t, 1, g.InFlight())
	require.NoError(t, g.Acquire(ctx))
	g.Release()
	g.Release()
	assert.Equal(t, 0, g.InFlight())
}

func TestGate_defaultSize(t *testing.T) {
	assert.Equal(t, DefaultSize, NewGate(0).Size())
	assert.Equal(t, DefaultSize, NewGate(-5).Size())
}
