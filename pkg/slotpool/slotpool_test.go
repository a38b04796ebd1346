package slotpool

import (
	"context"
	"testing"

	"github.com/cuemby/orbiter/pkg/capability/capabilitytest"
	"github.com/cuemby/orbiter/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWarmFillsToTarget(t *testing.T) {
	driver := capabilitytest.NewRuntimeDriver()
	pool := New(driver, "ci-runner:latest", 3)

	require.NoError(t, pool.Warm(context.Background()))

	n, err := pool.Available(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestAcquireDrainsIdleSlotsBeforeCreating(t *testing.T) {
	driver := capabilitytest.NewRuntimeDriver()
	pool := New(driver, "ci-runner:latest", 2)
	require.NoError(t, pool.Warm(context.Background()))

	first, err := pool.Acquire(context.Background(), types.ResourceRequirements{})
	require.NoError(t, err)
	second, err := pool.Acquire(context.Background(), types.ResourceRequirements{})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	n, err := pool.Available(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Pool now empty; Acquire still succeeds by creating synchronously.
	third, err := pool.Acquire(context.Background(), types.ResourceRequirements{})
	require.NoError(t, err)
	assert.NotEmpty(t, third)
}

func TestReleaseDestroysSlot(t *testing.T) {
	driver := capabilitytest.NewRuntimeDriver()
	pool := New(driver, "ci-runner:latest", 1)
	require.NoError(t, pool.Warm(context.Background()))

	slotID, err := pool.Acquire(context.Background(), types.ResourceRequirements{})
	require.NoError(t, err)

	require.NoError(t, pool.Release(context.Background(), slotID))

	n, err := pool.Available(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestResizeChangesTargetWithoutImmediateEffect(t *testing.T) {
	driver := capabilitytest.NewRuntimeDriver()
	pool := New(driver, "ci-runner:latest", 1)
	require.NoError(t, pool.Warm(context.Background()))

	require.NoError(t, pool.Resize(context.Background(), 5))
	n, err := pool.Available(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n) // Resize alone doesn't create slots

	require.NoError(t, pool.Warm(context.Background()))
	n, err = pool.Available(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}
