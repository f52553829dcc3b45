// Package main implements the fork-join-revive example application: a
// 2D Jacobi heat-stencil solver where each grid block is a ULT, revived
// (not recreated) every iteration, and a single coordinator ULT drives
// the join-all/swap/revive-all barrier between rounds.
package main

import (
	"fmt"
	"time"

	"ult"
	"ult/internal/rtlog"
	"ult/internal/runtimeconfig"
	"ult/internal/snapshot"
)

const blockSize = 16

// alpha is the diffusion coefficient used by both the parallel and serial
// solvers; must match between them for --check to be meaningful.
const alpha = 0.2

// Grid is a width*height row-major array of float64 cell values, shared
// by every block's ULT. Access is only ever concurrent-safe because the
// fork-join-revive barrier (see Simulation.Run) fully serializes reads of
// one generation against writes of the next: a block only ever reads the
// "old" grid and writes the "new" one, and no ULT is dispatched against a
// new round's grids until every ULT from the previous round has
// terminated and joined.
type Grid struct {
	width, height int
	data          []float64
}

// NewGrid allocates a width*height grid, initialized to zero except for a
// fixed heat source at its center.
func NewGrid(width, height int) *Grid {
	g := &Grid{width: width, height: height, data: make([]float64, width*height)}
	g.Set(width/2, height/2, 100.0)
	return g
}

func (g *Grid) at(x, y int) int { return y*g.width + x }

// Get returns the cell value at (x, y).
func (g *Grid) Get(x, y int) float64 { return g.data[g.at(x, y)] }

// Set stores v at (x, y).
func (g *Grid) Set(x, y int, v float64) { g.data[g.at(x, y)] = v }

// Clone returns a deep copy of g.
func (g *Grid) Clone() *Grid {
	out := &Grid{width: g.width, height: g.height, data: make([]float64, len(g.data))}
	copy(out.data, g.data)
	return out
}

// MaxDiff returns the largest absolute pointwise difference between g and
// other, used to compare the parallel solver against the serial reference.
func (g *Grid) MaxDiff(other *Grid) float64 {
	var max float64
	for i := range g.data {
		d := g.data[i] - other.data[i]
		if d < 0 {
			d = -d
		}
		if d > max {
			max = d
		}
	}
	return max
}

// blockBounds is one block's half-open cell range [x0,x1) x [y0,y1)
// within the shared grid.
type blockBounds struct {
	x0, y0, x1, y1 int
}

// update computes the new-generation values for every interior cell in b,
// reading neighbors out of old (which may lie in a different block, or
// even have been written by a different execution stream's block ULT
// last round) and writing into next. Global boundary cells are left
// untouched, matching a fixed (Dirichlet) boundary condition of zero.
func (b blockBounds) update(old, next *Grid) {
	for y := b.y0; y < b.y1; y++ {
		if y == 0 || y == old.height-1 {
			continue
		}
		for x := b.x0; x < b.x1; x++ {
			if x == 0 || x == old.width-1 {
				continue
			}
			lap := old.Get(x-1, y) + old.Get(x+1, y) + old.Get(x, y-1) + old.Get(x, y+1) - 4*old.Get(x, y)
			next.Set(x, y, old.Get(x, y)+alpha*lap)
		}
	}
}

// blockGrid partitions a width x height grid into blockSize x blockSize
// blocks, the final row/column absorbing any remainder.
func blockGrid(width, height, blockSize int) []blockBounds {
	var blocks []blockBounds
	for y0 := 0; y0 < height; y0 += blockSize {
		y1 := y0 + blockSize
		if y1 > height {
			y1 = height
		}
		for x0 := 0; x0 < width; x0 += blockSize {
			x1 := x0 + blockSize
			if x1 > width {
				x1 = width
			}
			blocks = append(blocks, blockBounds{x0, y0, x1, y1})
		}
	}
	return blocks
}

// Simulation owns the shared grids, the block decomposition, and the
// runtime handles (pools, schedulers, execution streams) the fork-join-
// revive loop runs on.
type Simulation struct {
	old, next *Grid
	blocks    []blockBounds
	threads   []*ult.Thread
	blockPool *ult.Pool

	snapWriter *snapshot.Writer
	bar        *snapshot.IterationBar
}

// NewSimulation lays out a width x height grid split into blockSize
// blocks, attached to a shared pool both execution streams pull from.
func NewSimulation(width, height int, pool *ult.Pool) *Simulation {
	return &Simulation{
		old:       NewGrid(width, height),
		next:      NewGrid(width, height),
		blocks:    blockGrid(width, height, blockSize),
		blockPool: pool,
	}
}

func (s *Simulation) blockEntry(b blockBounds) func(arg interface{}) {
	return func(arg interface{}) {
		b.update(s.old, s.next)
	}
}

// spawnBlocks creates one ULT per block (iteration 0 only); every later
// round revives these same ULTs instead of allocating new ones.
func (s *Simulation) spawnBlocks() error {
	attr := ult.DefaultThreadAttr()
	for _, b := range s.blocks {
		th, err := ult.CreateThread(s.blockPool, s.blockEntry(b), nil, attr)
		if err != nil {
			return err
		}
		s.threads = append(s.threads, th)
	}
	return nil
}

// reviveBlocks revives every block ULT for the next round, each back onto
// its original entry closure (the closure's bound block is unchanged;
// only s.old/s.next, swapped between rounds by Run, differ).
func (s *Simulation) reviveBlocks() error {
	for i, th := range s.threads {
		if err := ult.ThreadRevive(s.blockPool, s.blockEntry(s.blocks[i]), nil, th); err != nil {
			return err
		}
	}
	return nil
}

// joinRound blocks until every block ULT from the current round has
// terminated, forming the barrier between rounds.
func (s *Simulation) joinRound() error {
	for _, th := range s.threads {
		if err := ult.ThreadJoin(th); err != nil {
			return err
		}
	}
	return nil
}

// coordinate is the coordinator ULT's entry function: it drives the
// create/join/swap/revive cycle for iterations rounds, then tears down
// the block ULTs and stops both schedulers so the run converges.
func (s *Simulation) coordinate(iterations int, primarySched, secondarySched *ult.Scheduler) func(arg interface{}) {
	return func(arg interface{}) {
		if err := s.spawnBlocks(); err != nil {
			rtlog.Error("failed to spawn stencil blocks", err)
			return
		}

		for iter := 0; iter < iterations; iter++ {
			start := time.Now()
			if iter > 0 {
				if err := s.reviveBlocks(); err != nil {
					rtlog.Error("failed to revive stencil blocks", err)
					return
				}
			}
			if err := s.joinRound(); err != nil {
				rtlog.Error("failed to join stencil blocks", err)
				return
			}

			s.old, s.next = s.next, s.old

			if s.snapWriter != nil {
				state := map[string]interface{}{"width": s.old.width, "height": s.old.height, "data": s.old.data}
				if err := s.snapWriter.Write("grid", iter, state); err != nil {
					rtlog.Error("failed to write snapshot", err)
				}
			}
			if s.bar != nil {
				s.bar.Add(1)
			}
			rtlog.IterationComplete(iter, time.Since(start))
		}

		for _, th := range s.threads {
			if err := ult.ThreadFree(th); err != nil {
				rtlog.Error("failed to free block thread", err)
			}
		}
		if s.bar != nil {
			s.bar.Finish()
		}

		primarySched.Finish()
		if secondarySched != nil {
			secondarySched.Finish()
		}
	}
}

// Run builds the two-execution-stream runtime described by scenario 1
// (a primary plus one secondary, both schedulers sharing a single
// cross-attachable pool), spawns the coordinator ULT, and blocks until
// the whole simulation has completed.
func Run(cfg *runtimeconfig.GlobalConfig) (*Grid, error) {
	if err := ult.Init(); err != nil {
		return nil, fmt.Errorf("runtime init: %w", err)
	}
	defer ult.Finalize()

	blockPool, err := ult.NewPool(ult.SR_SW, true)
	if err != nil {
		return nil, fmt.Errorf("create block pool: %w", err)
	}
	coordPool, err := ult.NewPool(ult.PRW, true)
	if err != nil {
		return nil, fmt.Errorf("create coordinator pool: %w", err)
	}

	newSched := newSchedulerFunc(cfg.SchedulerKind)

	primarySched, err := newSched([]*ult.Pool{coordPool, blockPool})
	if err != nil {
		return nil, fmt.Errorf("create primary scheduler: %w", err)
	}

	var secondarySched *ult.Scheduler
	var secondaryES *ult.ES
	if cfg.ExecutionStreams > 1 {
		secondarySched, err = newSched([]*ult.Pool{blockPool})
		if err != nil {
			return nil, fmt.Errorf("create secondary scheduler: %w", err)
		}
		secondaryES, err = ult.CreateXStream(secondarySched)
		if err != nil {
			return nil, fmt.Errorf("create secondary execution stream: %w", err)
		}
		rtlog.XStreamCreated(secondaryES.ID().String(), false)
	}

	primaryES, err := ult.Self()
	if err != nil {
		return nil, fmt.Errorf("self: %w", err)
	}
	rtlog.XStreamCreated(primaryES.ID().String(), true)

	sim := NewSimulation(cfg.GridWidth, cfg.GridHeight, blockPool)
	if cfg.OutputDir != "" {
		sim.snapWriter = snapshot.NewWriter(snapshot.Config{OutputDir: cfg.OutputDir})
	}
	if cfg.ShowProgress {
		sim.bar = snapshot.NewIterationBar(cfg.Iterations, "stencil")
	}

	_, err = ult.CreateThread(coordPool, sim.coordinate(cfg.Iterations, primarySched, secondarySched), nil, ult.DefaultThreadAttr())
	if err != nil {
		return nil, fmt.Errorf("create coordinator thread: %w", err)
	}

	if err := primaryES.Run(primarySched); err != nil {
		return nil, fmt.Errorf("run primary scheduler: %w", err)
	}
	if secondaryES != nil {
		if err := ult.XStreamJoin(secondaryES); err != nil {
			return nil, fmt.Errorf("join secondary execution stream: %w", err)
		}
	}

	return sim.old, nil
}

func newSchedulerFunc(kind string) func(pools []*ult.Pool) (*ult.Scheduler, error) {
	if kind == "priority" {
		return func(pools []*ult.Pool) (*ult.Scheduler, error) {
			return ult.NewPriorityScheduler(pools, true)
		}
	}
	return func(pools []*ult.Pool) (*ult.Scheduler, error) {
		return ult.NewBasicScheduler(pools, true)
	}
}
