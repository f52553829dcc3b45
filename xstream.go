package ult

import (
	"runtime"
	"sync"
	"sync/atomic"

	"ult/internal/rtlog"
)

// XStreamState is an ES's lifecycle state (spec.md §3).
type XStreamState int32

const (
	XStreamCreated XStreamState = iota
	XStreamReady
	XStreamRunning
	XStreamTerminated
)

// ES represents one kernel thread hosting a stack of schedulers (spec.md
// §3/§4.5). A secondary ES is backed by a dedicated, OS-thread-locked
// goroutine; the primary ES is adopted from whatever goroutine calls Init.
type ES struct {
	handle
	mu         sync.Mutex
	state      int32
	topSchedMu sync.Mutex
	schedStack []*Scheduler
	mainThread *Thread
	done       chan struct{}
	primary    bool
}

func (es *ES) topScheduler() *Scheduler {
	es.mu.Lock()
	defer es.mu.Unlock()
	if len(es.schedStack) == 0 {
		return nil
	}
	return es.schedStack[len(es.schedStack)-1]
}

func (es *ES) pushSchedStack(s *Scheduler) {
	es.mu.Lock()
	es.schedStack = append(es.schedStack, s)
	es.mu.Unlock()
}

func (es *ES) popSchedStack() {
	es.mu.Lock()
	if len(es.schedStack) > 0 {
		es.schedStack = es.schedStack[:len(es.schedStack)-1]
	}
	es.mu.Unlock()
}

// State returns the ES's current lifecycle state.
func (es *ES) State() XStreamState {
	return XStreamState(atomic.LoadInt32(&es.state))
}

// CreateXStream implements xstream_create: spawns a kernel thread (an
// OS-thread-locked goroutine) that bootstraps a MAIN ULT wrapping the
// thread's native context, installs initialSched as the bottom of its
// scheduler stack, and runs it until initialSched terminates.
func CreateXStream(initialSched *Scheduler) (*ES, error) {
	if initialSched == nil {
		return nil, ErrInvalidSched
	}
	es := &ES{
		handle: newHandle(),
		state:  int32(XStreamReady),
		done:   make(chan struct{}),
	}
	main := &Thread{handle: newHandle(), kind: threadMain, joinable: false}
	main.ctx = newContext()
	main.ownerES = es
	es.mainThread = main

	initialSched.used = mainUsed
	initialSched.es = es
	es.schedStack = []*Scheduler{initialSched}

	registerXStream(es)

	ready := make(chan struct{})
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		setLocal(es, main)
		defer clearLocal()

		atomic.StoreInt32(&es.state, int32(XStreamRunning))
		close(ready)

		rtlog.SchedulerStarted(initialSched.ID().String(), initialSched.kind.String(), initialSched.NumPools(), false)
		for {
			initialSched.runLoop()
			if SchedState(atomic.LoadInt32(&initialSched.state)) == SchedTerminated {
				break
			}
			runtime.Gosched()
		}

		atomic.StoreInt32(&es.state, int32(XStreamTerminated))
		close(es.done)
	}()
	<-ready
	return es, nil
}

// Run installs sched as es's bottom scheduler and runs its loop inline on
// the calling goroutine, blocking until sched terminates. The primary ES
// has no dedicated kernel thread of its own to bootstrap one on, so its
// scheduler is run this way instead of via CreateXStream.
func (es *ES) Run(sched *Scheduler) error {
	if sched == nil {
		return ErrInvalidSched
	}
	es.mu.Lock()
	sched.used = mainUsed
	sched.es = es
	es.schedStack = []*Scheduler{sched}
	es.mu.Unlock()

	rtlog.SchedulerStarted(sched.ID().String(), sched.kind.String(), sched.NumPools(), false)
	for {
		sched.runLoop()
		if SchedState(atomic.LoadInt32(&sched.state)) == SchedTerminated {
			break
		}
		runtime.Gosched()
	}
	atomic.StoreInt32(&es.state, int32(XStreamTerminated))
	return nil
}

// MainPools implements xstream_get_main_pools: the pools attached to the
// ES's current top scheduler.
func (es *ES) MainPools() []*Pool {
	sched := es.topScheduler()
	if sched == nil {
		return nil
	}
	return sched.Pools()
}

// XStreamSelf implements xstream_self.
func XStreamSelf() (*ES, error) {
	return Self()
}

// XStreamJoin implements xstream_join: blocks until xs's kernel thread has
// exited. The primary ES has no separate kernel thread to join; joining it
// is a no-op.
func XStreamJoin(es *ES) error {
	if es == nil {
		return ErrInvalidXStream
	}
	if es.primary {
		return nil
	}
	<-es.done
	return nil
}

// XStreamFree implements xstream_free: releases xs's resources. A
// secondary ES must have terminated first.
func XStreamFree(es *ES) error {
	if es == nil {
		return ErrInvalidXStream
	}
	if !es.primary && XStreamState(atomic.LoadInt32(&es.state)) != XStreamTerminated {
		return ErrInvalidXStream
	}
	es.mainThread.ctx.release()
	return nil
}
