package ult

import (
	"sync"
	"sync/atomic"

	"ult/internal/rtlog"
)

// ThreadState is a ULT's lifecycle state (spec.md §3).
type ThreadState int32

const (
	ThreadReady ThreadState = iota
	ThreadRunning
	ThreadBlocked
	ThreadTerminated
)

func (s ThreadState) String() string {
	switch s {
	case ThreadReady:
		return "READY"
	case ThreadRunning:
		return "RUNNING"
	case ThreadBlocked:
		return "BLOCKED"
	case ThreadTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

type threadKind int

const (
	threadUser threadKind = iota
	threadMain
	threadMainSched
)

// Request bits, atomically fetch-or'd/cleared exactly as sched.c does for
// scheduler stop requests (see sched.go).
const (
	reqCancel uint32 = 1 << iota
	reqMigrate
)

// cancelSignal and exitSignal are private panic sentinels used to unwind a
// running ULT's entry function cooperatively, from Cancel (observed at the
// next suspension point) or an explicit ThreadExit call. They are recovered
// only inside Thread.trampoline; any other panic value propagates and
// crashes the process, same as an unrecovered panic in any other goroutine.
type cancelSignal struct{}
type exitSignal struct{}

// ThreadAttr configures thread_create (spec.md §4.3's attrs argument).
type ThreadAttr struct {
	StackSize int // cosmetic: Go goroutines grow their own stacks on demand
	Joinable  bool
}

// DefaultThreadAttr returns the attrs a bare thread_create(pool, fn, arg)
// call would use.
func DefaultThreadAttr() ThreadAttr {
	return ThreadAttr{StackSize: 256 * 1024, Joinable: true}
}

// Thread is a ULT: a stackful, cooperatively-scheduled, revivable work
// unit (spec.md §3/§4.3).
type Thread struct {
	handle
	mu        sync.Mutex
	kind      threadKind
	stackSize int
	joinable  bool
	entry     func(arg interface{})
	arg       interface{}
	homePool  *Pool
	ownerES   *ES // set only for kind == threadMain
	lastSched *Scheduler
	runningES *ES // the ES this thread's backing goroutine is currently executing for

	state   int32 // ThreadState, accessed atomically
	request uint32

	joiner    *Thread
	ctx       *Context
	callerCtx *Context
}

func newThread(kind threadKind, pool *Pool, entry func(arg interface{}), arg interface{}, attr ThreadAttr) *Thread {
	t := &Thread{
		handle:    newHandle(),
		kind:      kind,
		stackSize: attr.StackSize,
		joinable:  attr.Joinable,
		entry:     entry,
		arg:       arg,
		homePool:  pool,
	}
	t.ctx = newWorkerContext(t.trampoline)
	return t
}

// CreateThread implements thread_create: validates the caller is an
// authorized producer for pool before spawning the ULT's backing
// goroutine, so an access-policy rejection never leaks a parked goroutine.
func CreateThread(pool *Pool, entry func(arg interface{}), arg interface{}, attr ThreadAttr) (*Thread, error) {
	if pool == nil {
		return nil, ErrInvalidPool
	}
	if err := pool.checkPush(); err != nil {
		return nil, err
	}
	t := newThread(threadUser, pool, entry, arg, attr)
	atomic.StoreInt32(&t.state, int32(ThreadReady))
	pool.addMember()
	if err := pool.push(t); err != nil {
		pool.removeMember()
		t.ctx.release()
		return nil, err
	}
	return t, nil
}

// State returns the thread's current lifecycle state.
func (t *Thread) State() ThreadState {
	return ThreadState(atomic.LoadInt32(&t.state))
}

// run dispatches the ULT onto its own context; it returns only once the
// ULT yields, blocks, or terminates.
func (t *Thread) run(s *Scheduler) {
	t.mu.Lock()
	t.callerCtx = s.runCtx()
	t.lastSched = s
	t.runningES = s.es
	t.mu.Unlock()
	atomic.StoreInt32(&t.state, int32(ThreadRunning))
	switchContext(s.runCtx(), t.ctx)
}

// refreshLocal (re)establishes the thread-local ES/current-thread record for
// t's own backing goroutine. t's context is a dedicated, persistent
// goroutine reused across dispatches and revives, and a migration can
// change which ES that goroutine is logically executing for between one
// suspension and the next resume — so local state is refreshed on every
// resume rather than set once at goroutine birth.
func (t *Thread) refreshLocal() {
	t.mu.Lock()
	es := t.runningES
	t.mu.Unlock()
	if es != nil {
		setLocal(es, t)
	}
}

func (t *Thread) checkCancel() {
	if atomic.LoadUint32(&t.request)&reqCancel != 0 {
		for {
			old := atomic.LoadUint32(&t.request)
			if atomic.CompareAndSwapUint32(&t.request, old, old&^reqCancel) {
				break
			}
		}
		rtlog.ThreadCanceled(t.ID().String())
		panic(cancelSignal{})
	}
}

// yield implements thread_yield: the calling goroutine must be this
// thread's own backing goroutine.
func (t *Thread) yield() {
	t.checkCancel()

	if atomic.LoadUint32(&t.request)&reqMigrate != 0 {
		for {
			old := atomic.LoadUint32(&t.request)
			if atomic.CompareAndSwapUint32(&t.request, old, old&^reqMigrate) {
				break
			}
		}
		if err := t.migrate(); err != nil {
			// No compatible destination: fall back to requeuing in the
			// current home pool rather than dropping the unit.
			atomic.StoreInt32(&t.state, int32(ThreadReady))
			_ = t.homePool.push(t)
		}
	} else {
		atomic.StoreInt32(&t.state, int32(ThreadReady))
		_ = t.homePool.push(t)
	}

	t.mu.Lock()
	callerCtx := t.callerCtx
	t.mu.Unlock()
	switchContext(t.ctx, callerCtx)
	t.refreshLocal()
	t.checkCancel()
}

func (t *Thread) trampoline() {
	t.refreshLocal()
	func() {
		defer func() {
			if r := recover(); r != nil {
				switch r.(type) {
				case cancelSignal, exitSignal:
					// cooperative termination
				default:
					panic(r)
				}
			}
		}()
		t.entry(t.arg)
	}()
	t.epilogue()
}

func (t *Thread) epilogue() {
	atomic.StoreInt32(&t.state, int32(ThreadTerminated))
	t.mu.Lock()
	joiner := t.joiner
	t.joiner = nil
	callerCtx := t.callerCtx
	t.mu.Unlock()
	if joiner != nil {
		joiner.wake()
	}
	t.ctx.finish(callerCtx)
}

// wake transitions a BLOCKED thread back to READY and re-queues it in its
// home pool. Used when a joined-on thread terminates.
func (t *Thread) wake() {
	atomic.StoreInt32(&t.state, int32(ThreadReady))
	_ = t.homePool.push(t)
}

// ThreadSelf implements thread_self.
func ThreadSelf() (*Thread, error) {
	t := currentThread()
	if t == nil {
		return nil, ErrInvalidThread
	}
	return t, nil
}

// ThreadYield implements thread_yield, operating on the calling ULT.
func ThreadYield() error {
	t := currentThread()
	if t == nil {
		return ErrInvalidThread
	}
	t.yield()
	return nil
}

// ThreadExit implements thread_exit: unwinds the calling ULT's entry
// function immediately via the exit sentinel, running the same
// termination epilogue as a normal return.
func ThreadExit() error {
	t := currentThread()
	if t == nil {
		return ErrInvalidThread
	}
	panic(exitSignal{})
}

// ThreadCancel implements thread_cancel: sets target's CANCEL request bit.
// Cancel does not block; target observes the bit and terminates at its
// next suspension point.
func ThreadCancel(target *Thread) error {
	if target == nil {
		return ErrInvalidThread
	}
	for {
		old := atomic.LoadUint32(&target.request)
		if atomic.CompareAndSwapUint32(&target.request, old, old|reqCancel) {
			return nil
		}
	}
}

// ThreadJoin implements thread_join: blocks the calling ULT until target
// reaches TERMINATED.
func ThreadJoin(target *Thread) error {
	caller := currentThread()
	if caller == nil {
		return ErrInvalidThread
	}
	if target == nil || caller == target {
		return ErrInvalidThread
	}
	if !target.joinable {
		return ErrInvalidThread
	}
	if target.kind == threadMain {
		ls := getLocal()
		if ls == nil || target.ownerES == nil || ls.es != target.ownerES {
			return ErrInvalidThread
		}
	}

	target.mu.Lock()
	if ThreadState(atomic.LoadInt32(&target.state)) == ThreadTerminated {
		target.mu.Unlock()
		return nil
	}
	if target.joiner != nil {
		target.mu.Unlock()
		return ErrInvalidThread
	}
	target.joiner = caller
	target.mu.Unlock()

	atomic.StoreInt32(&caller.state, int32(ThreadBlocked))
	caller.mu.Lock()
	callerCtx := caller.callerCtx
	caller.mu.Unlock()
	switchContext(caller.ctx, callerCtx)
	caller.refreshLocal()
	caller.checkCancel()
	return nil
}

// ThreadRevive implements revive: requires target to be TERMINATED, resets
// its entry/arg and destination pool, and reuses its existing goroutine
// and context — no allocation on the hot path.
func ThreadRevive(pool *Pool, entry func(arg interface{}), arg interface{}, target *Thread) error {
	if target == nil || pool == nil {
		return ErrInvalidThread
	}
	target.mu.Lock()
	if ThreadState(atomic.LoadInt32(&target.state)) != ThreadTerminated {
		target.mu.Unlock()
		return ErrInvalidThread
	}
	oldPool := target.homePool
	target.entry = entry
	target.arg = arg
	target.homePool = pool
	target.joiner = nil
	target.mu.Unlock()

	atomic.StoreUint32(&target.request, 0)
	atomic.StoreInt32(&target.state, int32(ThreadReady))
	if pool != oldPool {
		pool.addMember()
		oldPool.removeMember()
	}
	return pool.push(target)
}

// ThreadFree implements thread_free: requires target to be TERMINATED,
// releases its goroutine and descriptor.
func ThreadFree(target *Thread) error {
	if target == nil {
		return ErrInvalidThread
	}
	if ThreadState(atomic.LoadInt32(&target.state)) != ThreadTerminated {
		return ErrInvalidThread
	}
	target.homePool.removeMember()
	target.ctx.release()
	return nil
}
