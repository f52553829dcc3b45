package main

// SerialSolve runs the same Jacobi update the parallel solver's block
// ULTs perform, but single-threaded and whole-grid per iteration, as a
// reference for --check.
func SerialSolve(width, height, iterations int) *Grid {
	old := NewGrid(width, height)
	next := NewGrid(width, height)
	full := blockBounds{x0: 0, y0: 0, x1: width, y1: height}

	for i := 0; i < iterations; i++ {
		full.update(old, next)
		old, next = next, old
	}
	return old
}
