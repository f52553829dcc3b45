// Package runtimeconfig holds cmd/stencil's global configuration: the knobs
// that size the ult runtime (execution streams, pools, scheduler kind) and
// the stencil problem itself (grid dimensions, iteration count).
package runtimeconfig

import "runtime"

// GlobalConfig holds the global configuration for the application.
type GlobalConfig struct {
	// LogFormat is the format for logging (text or json).
	LogFormat string

	// LogLevel is the level for logging (DEBUG, INFO, WARN, ERROR).
	LogLevel string

	// ExecutionStreams selects how many execution streams the stencil
	// runs on: 1 (or less) uses only the primary (the calling goroutine);
	// any larger value adds exactly one secondary.
	ExecutionStreams int

	// SchedulerKind selects a predefined scheduler: "basic" (round-robin)
	// or "priority" (always drain the highest-index pool first).
	SchedulerKind string

	// PoolsPerStream is carried as the "runtime.pools" config default and
	// listed by LogConfigurationSources; cmd/stencil does not read it, and
	// its pool layout is fixed.
	PoolsPerStream int

	// GridWidth and GridHeight size the stencil's 2D grid.
	GridWidth  int
	GridHeight int

	// Iterations is the number of fork-join-revive rounds to run.
	Iterations int

	// CheckAgainstSerial runs a serial reference solver alongside the
	// parallel one and reports the maximum pointwise divergence.
	CheckAgainstSerial bool

	// OutputDir, when non-empty, writes a gzip+JSON snapshot of the grid
	// after every iteration under this directory.
	OutputDir string

	// ShowProgress renders an iteration progress bar on stdout.
	ShowProgress bool
}

// Config is the global configuration instance.
var Config = &GlobalConfig{
	LogFormat:        "text",
	LogLevel:         "INFO",
	ExecutionStreams: runtime.NumCPU(),
	SchedulerKind:    "basic",
	PoolsPerStream:   1,
	GridWidth:        256,
	GridHeight:       256,
	Iterations:       100,
}
