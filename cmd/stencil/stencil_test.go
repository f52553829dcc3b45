package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ult/internal/runtimeconfig"
)

func defaultTestConfig(width, height, iterations int) *runtimeconfig.GlobalConfig {
	return &runtimeconfig.GlobalConfig{
		ExecutionStreams: 2,
		SchedulerKind:    "basic",
		GridWidth:        width,
		GridHeight:       height,
		Iterations:       iterations,
	}
}

func TestBlockGridCoversWholeGridWithRemainder(t *testing.T) {
	blocks := blockGrid(40, 20, blockSize)

	var covered int
	for _, b := range blocks {
		covered += (b.x1 - b.x0) * (b.y1 - b.y0)
	}
	require.Equal(t, 40*20, covered)
}

func TestBlockGridMatchesScenarioOneBlockCount(t *testing.T) {
	// grid = 4x4 blocks of blockSize cells, per the fork-join-revive example.
	blocks := blockGrid(4*blockSize, 4*blockSize, blockSize)
	require.Len(t, blocks, 16)
}

func TestGridGetSetRoundTrip(t *testing.T) {
	g := NewGrid(8, 8)
	g.Set(3, 4, 42.5)
	require.Equal(t, 42.5, g.Get(3, 4))
}

func TestGridMaxDiffZeroForIdenticalGrids(t *testing.T) {
	g := NewGrid(8, 8)
	require.Equal(t, 0.0, g.MaxDiff(g.Clone()))
}

func TestParallelSolverMatchesSerialReference(t *testing.T) {
	const width, height, iterations = 4 * blockSize, 4 * blockSize, 10

	cfg := defaultTestConfig(width, height, iterations)
	parallel, err := Run(cfg)
	require.NoError(t, err)

	serial := SerialSolve(width, height, iterations)

	require.InDelta(t, 0.0, parallel.MaxDiff(serial), 1e-9)
}

func TestBlockBoundsSkipsGlobalBoundary(t *testing.T) {
	old := NewGrid(8, 8)
	old.Set(0, 0, 999)
	next := NewGrid(8, 8)

	b := blockBounds{x0: 0, y0: 0, x1: 8, y1: 8}
	b.update(old, next)

	require.Equal(t, 0.0, next.Get(0, 0), "boundary cells must not be written by the solver")
}
