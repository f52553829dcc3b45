package ult

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestThreadCreateFinish runs a single ULT to completion on the primary ES
// and confirms its pool drains once the scheduler is told to finish.
func TestThreadCreateFinish(t *testing.T) {
	require.NoError(t, Init())
	defer Finalize()

	es, err := Self()
	require.NoError(t, err)

	pool, err := NewPool(PRW, true)
	require.NoError(t, err)
	sched, err := NewBasicScheduler([]*Pool{pool}, true)
	require.NoError(t, err)

	var ran int32
	th, err := CreateThread(pool, func(arg interface{}) {
		atomic.StoreInt32(&ran, 1)
	}, nil, DefaultThreadAttr())
	require.NoError(t, err)

	sched.Finish()
	require.NoError(t, es.Run(sched))

	require.Equal(t, int32(1), atomic.LoadInt32(&ran))
	require.Equal(t, ThreadTerminated, th.State())
	require.Equal(t, 0, pool.GetSize())
}

// TestThreadJoinBlocksUntilTargetTerminates creates a joiner ULT ahead of
// its target in the same FIFO pool, forcing the joiner to block and later
// be woken by the target's termination epilogue.
func TestThreadJoinBlocksUntilTargetTerminates(t *testing.T) {
	require.NoError(t, Init())
	defer Finalize()

	es, err := Self()
	require.NoError(t, err)

	pool, err := NewPool(PRW, true)
	require.NoError(t, err)
	sched, err := NewBasicScheduler([]*Pool{pool}, true)
	require.NoError(t, err)

	var target *Thread
	var joined int32
	_, err = CreateThread(pool, func(arg interface{}) {
		if err := ThreadJoin(target); err == nil {
			atomic.StoreInt32(&joined, 1)
		}
	}, nil, DefaultThreadAttr())
	require.NoError(t, err)

	target, err = CreateThread(pool, func(arg interface{}) {}, nil, DefaultThreadAttr())
	require.NoError(t, err)

	sched.Finish()
	require.NoError(t, es.Run(sched))

	require.Equal(t, int32(1), atomic.LoadInt32(&joined))
	require.Equal(t, ThreadTerminated, target.State())
}

// TestThreadReviveReusesGoroutine drives a ULT to termination, revives it
// with a new entry point, and confirms it runs again without a second
// allocation of its backing context.
func TestThreadReviveReusesGoroutine(t *testing.T) {
	require.NoError(t, Init())
	defer Finalize()

	es, err := Self()
	require.NoError(t, err)

	pool, err := NewPool(PRW, true)
	require.NoError(t, err)
	sched, err := NewBasicScheduler([]*Pool{pool}, true)
	require.NoError(t, err)

	var first int32
	th, err := CreateThread(pool, func(arg interface{}) {
		atomic.StoreInt32(&first, 1)
	}, nil, DefaultThreadAttr())
	require.NoError(t, err)

	sched.Finish()
	require.NoError(t, es.Run(sched))
	require.Equal(t, int32(1), atomic.LoadInt32(&first))
	require.Equal(t, ThreadTerminated, th.State())

	ctxBefore := th.ctx

	var second int32
	require.NoError(t, ThreadRevive(pool, func(arg interface{}) {
		atomic.StoreInt32(&second, 1)
	}, nil, th))
	require.Equal(t, ThreadReady, th.State())
	require.Same(t, ctxBefore, th.ctx)

	sched.Finish()
	require.NoError(t, es.Run(sched))

	require.Equal(t, int32(1), atomic.LoadInt32(&second))
	require.Equal(t, ThreadTerminated, th.State())

	require.NoError(t, ThreadFree(th))
}

// TestThreadReviveRejectsNonTerminated implements spec.md §9 open question
// (iii): reviving a thread that has not reached TERMINATED is rejected.
func TestThreadReviveRejectsNonTerminated(t *testing.T) {
	require.NoError(t, Init())
	defer Finalize()

	pool, err := NewPool(PRW, true)
	require.NoError(t, err)

	th, err := CreateThread(pool, func(arg interface{}) {}, nil, DefaultThreadAttr())
	require.NoError(t, err)
	require.Equal(t, ThreadReady, th.State())

	err = ThreadRevive(pool, func(arg interface{}) {}, nil, th)
	require.ErrorIs(t, err, ErrInvalidThread)
}

// TestThreadCancelObservedAtYield confirms a cancel request lands at the
// target's next suspension point rather than at dispatch time.
func TestThreadCancelObservedAtYield(t *testing.T) {
	require.NoError(t, Init())
	defer Finalize()

	es, err := Self()
	require.NoError(t, err)

	pool, err := NewPool(PRW, true)
	require.NoError(t, err)
	sched, err := NewBasicScheduler([]*Pool{pool}, true)
	require.NoError(t, err)

	var started, reachedEnd int32
	th, err := CreateThread(pool, func(arg interface{}) {
		atomic.StoreInt32(&started, 1)
		ThreadYield()
		atomic.StoreInt32(&reachedEnd, 1)
	}, nil, DefaultThreadAttr())
	require.NoError(t, err)

	require.NoError(t, ThreadCancel(th))

	sched.Finish()
	require.NoError(t, es.Run(sched))

	require.Equal(t, int32(1), atomic.LoadInt32(&started))
	require.Equal(t, int32(0), atomic.LoadInt32(&reachedEnd))
	require.Equal(t, ThreadTerminated, th.State())
}
