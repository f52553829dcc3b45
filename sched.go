package ult

import (
	"runtime"
	"sync"
	"sync/atomic"

	"ult/internal/rtlog"
)

// SchedState is a scheduler's lifecycle state (spec.md §3).
type SchedState int32

const (
	SchedReady SchedState = iota
	SchedRunning
	SchedStopped
	SchedTerminated
)

type schedUsed int32

const (
	notUsed schedUsed = iota
	mainUsed
	stackedUsed
)

// Stop-request bits. Consumed with an atomic fetch-and-clear, matching
// sched.c's discipline exactly: FINISH's final emptiness check is the only
// part of the stop path that takes the ES's top-scheduler mutex; the
// non-empty fast path never blocks on it.
const (
	reqFinish uint32 = 1 << iota
	reqExit
)

// SchedKind identifies a scheduler's dispatch discipline.
type SchedKind int

const (
	SchedBasic SchedKind = iota
	SchedPriority
	SchedUser
)

func (k SchedKind) String() string {
	switch k {
	case SchedBasic:
		return "basic"
	case SchedPriority:
		return "priority"
	case SchedUser:
		return "user"
	default:
		return "unknown"
	}
}

// MigrationPoolFunc selects a destination pool for a ULT migrating away
// from source. Returning nil means no compatible destination exists.
type MigrationPoolFunc func(source *Pool) *Pool

// Scheduler loops over a vector of pools, dispatching ready units and
// honoring FINISH/EXIT stop requests (spec.md §3/§4.4).
type Scheduler struct {
	handle
	mu        sync.Mutex
	kind      SchedKind
	pools     []*Pool
	rrIndex   int
	automatic bool
	used      schedUsed
	state     int32
	request   uint32

	es   *ES     // the ES this scheduler is currently installed on
	ult  *Thread // the MAIN_SCHED ULT hosting this scheduler, if stacked
	data interface{}

	getMigrationPool MigrationPoolFunc
}

// runCtx returns the context this scheduler's run loop executes on: the ES
// main ULT's context if this scheduler is MAIN-used, or its own MAIN_SCHED
// ULT's context if stacked.
func (s *Scheduler) runCtx() *Context {
	if s.ult != nil {
		return s.ult.ctx
	}
	if s.es != nil {
		return s.es.mainThread.ctx
	}
	return nil
}

// runLoop is the scheduler's run callback (spec.md §4.4): repeatedly
// selects a pool, pops one ready unit, dispatches it, then checks whether
// it has to stop.
func (s *Scheduler) runLoop() {
	atomic.StoreInt32(&s.state, int32(SchedRunning))
	for {
		u := s.popNext()
		if u != nil {
			u.run(s)
		}
		if s.checkStopRequest() {
			return
		}
		if u == nil && !s.hasPendingRequest() {
			// No stop requested and nothing to do: yield to the enclosing
			// context so a nested or primary scheduler can make progress.
			// spec.md §9 open question (i) treats this as required rather
			// than a pure optimization; see DESIGN.md.
			atomic.StoreInt32(&s.state, int32(SchedReady))
			return
		}
	}
}

func (s *Scheduler) popNext() unit {
	s.mu.Lock()
	pools := s.pools
	n := len(pools)
	start := s.rrIndex
	kind := s.kind
	s.mu.Unlock()
	if n == 0 {
		return nil
	}

	if kind == SchedPriority {
		for i := n - 1; i >= 0; i-- {
			if u, err := pools[i].pop(); err == nil && u != nil {
				return u
			}
		}
		return nil
	}

	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if u, err := pools[idx].pop(); err == nil && u != nil {
			s.mu.Lock()
			s.rrIndex = (idx + 1) % n
			s.mu.Unlock()
			return u
		}
	}
	return nil
}

func (s *Scheduler) hasPendingRequest() bool {
	return atomic.LoadUint32(&s.request) != 0
}

func (s *Scheduler) allPoolsEmpty() bool {
	s.mu.Lock()
	pools := s.pools
	s.mu.Unlock()
	for _, p := range pools {
		if p.GetSize() > 0 {
			return false
		}
	}
	return true
}

// checkStopRequest implements the FINISH/EXIT stop protocol. Returns true
// if the scheduler has terminated and runLoop should return.
func (s *Scheduler) checkStopRequest() bool {
	req := atomic.LoadUint32(&s.request)
	if req&reqExit != 0 {
		for {
			old := atomic.LoadUint32(&s.request)
			if atomic.CompareAndSwapUint32(&s.request, old, old&^reqExit) {
				break
			}
		}
		atomic.StoreInt32(&s.state, int32(SchedTerminated))
		rtlog.SchedulerStopped(s.ID().String(), "exit")
		return true
	}
	if req&reqFinish != 0 {
		if !s.allPoolsEmpty() {
			return false
		}
		if s.es != nil {
			s.es.topSchedMu.Lock()
			defer s.es.topSchedMu.Unlock()
		}
		if s.allPoolsEmpty() {
			for {
				old := atomic.LoadUint32(&s.request)
				if atomic.CompareAndSwapUint32(&s.request, old, old&^reqFinish) {
					break
				}
			}
			atomic.StoreInt32(&s.state, int32(SchedTerminated))
			rtlog.SchedulerStopped(s.ID().String(), "finish")
			return true
		}
	}
	return false
}

// Finish implements sched_finish: stop once all attached pools are empty.
func (s *Scheduler) Finish() {
	for {
		old := atomic.LoadUint32(&s.request)
		if atomic.CompareAndSwapUint32(&s.request, old, old|reqFinish) {
			return
		}
	}
}

// Exit implements sched_exit: stop immediately regardless of pool
// contents; the caller is responsible for draining.
func (s *Scheduler) Exit() {
	for {
		old := atomic.LoadUint32(&s.request)
		if atomic.CompareAndSwapUint32(&s.request, old, old|reqExit) {
			return
		}
	}
}

// HasToStop implements sched_has_to_stop.
func (s *Scheduler) HasToStop() bool {
	return atomic.LoadUint32(&s.request) != 0
}

// NumPools implements sched_get_num_pools.
func (s *Scheduler) NumPools() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pools)
}

// Pools implements sched_get_pools.
func (s *Scheduler) Pools() []*Pool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Pool, len(s.pools))
	copy(out, s.pools)
	return out
}

// SetData implements sched_set_data.
func (s *Scheduler) SetData(d interface{}) {
	s.mu.Lock()
	s.data = d
	s.mu.Unlock()
}

// GetData implements sched_get_data.
func (s *Scheduler) GetData() interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

// GetSize implements sched_get_size: sum of ready units across all
// attached pools.
func (s *Scheduler) GetSize() int {
	n := 0
	for _, p := range s.Pools() {
		n += p.GetSize()
	}
	return n
}

// GetTotalSize implements sched_get_total_size.
func (s *Scheduler) GetTotalSize() int64 {
	var n int64
	for _, p := range s.Pools() {
		n += p.GetTotalSize()
	}
	return n
}

// Free implements sched_free: a running scheduler cannot be freed. Mirrors
// sched.c's ABT_sched_free: release this scheduler's attachment to each of
// its pools, freeing any automatic pool whose attachment count thereby
// reaches zero.
func (s *Scheduler) Free() error {
	if SchedState(atomic.LoadInt32(&s.state)) == SchedRunning {
		return ErrInvalidSched
	}
	s.mu.Lock()
	pools := s.pools
	s.pools = nil
	s.mu.Unlock()

	for _, p := range pools {
		automatic, remaining := p.removeSched(s)
		if automatic && remaining == 0 {
			_ = p.Free()
		}
	}
	return nil
}

// migrationPool resolves the destination pool for a ULT migrating away
// from source, via the scheduler's get_migration_pool callback, defaulting
// to its first pool (spec.md §4.4).
func (s *Scheduler) migrationPool(source *Pool) *Pool {
	if s.getMigrationPool != nil {
		return s.getMigrationPool(source)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pools) == 0 {
		return nil
	}
	return s.pools[0]
}

// PushScheduler implements push_scheduler: starts newSched on a fresh
// MAIN_SCHED ULT above the current top of es's scheduler stack, and blocks
// the calling context (whatever ULT or ES main context is currently
// running on es) until newSched terminates.
func PushScheduler(es *ES, newSched *Scheduler) error {
	if es == nil || newSched == nil {
		return ErrInvalidSched
	}
	ls := getLocal()
	if ls == nil || ls.es != es {
		return ErrInvalidXStream
	}
	entryCtx := es.mainThread.ctx
	if ls.current != nil {
		entryCtx = ls.current.ctx
	}

	es.topSchedMu.Lock()
	if es.topScheduler() == nil {
		es.topSchedMu.Unlock()
		return ErrInvalidSched
	}

	mainSchedThread := newThread(threadMainSched, nil, func(interface{}) {
		for {
			newSched.runLoop()
			if SchedState(atomic.LoadInt32(&newSched.state)) == SchedTerminated {
				return
			}
			runtime.Gosched()
		}
	}, nil, ThreadAttr{Joinable: false})
	mainSchedThread.callerCtx = entryCtx
	mainSchedThread.runningES = es

	newSched.used = stackedUsed
	newSched.es = es
	newSched.ult = mainSchedThread
	atomic.StoreInt32(&newSched.state, int32(SchedReady))
	es.pushSchedStack(newSched)
	es.topSchedMu.Unlock()

	rtlog.SchedulerStarted(newSched.ID().String(), newSched.kind.String(), newSched.NumPools(), true)
	switchContext(entryCtx, mainSchedThread.ctx)

	es.topSchedMu.Lock()
	es.popSchedStack()
	es.topSchedMu.Unlock()
	mainSchedThread.ctx.release()
	return nil
}
