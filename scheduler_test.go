package ult

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestPriorityInversionOrder confirms a priority scheduler always drains the
// highest-index pool before touching a lower one, even when the lower pool
// was populated first.
func TestPriorityInversionOrder(t *testing.T) {
	require.NoError(t, Init())
	defer Finalize()

	es, err := Self()
	require.NoError(t, err)

	low, err := NewPool(PRW, true)
	require.NoError(t, err)
	high, err := NewPool(PRW, true)
	require.NoError(t, err)
	sched, err := NewPriorityScheduler([]*Pool{low, high}, true)
	require.NoError(t, err)

	var order []int
	record := func(n int) func(interface{}) {
		return func(arg interface{}) { order = append(order, n) }
	}
	_, err = CreateThread(low, record(1), nil, DefaultThreadAttr())
	require.NoError(t, err)
	_, err = CreateThread(high, record(2), nil, DefaultThreadAttr())
	require.NoError(t, err)

	sched.Finish()
	require.NoError(t, es.Run(sched))

	require.Equal(t, []int{2, 1}, order)
}

// TestBasicSchedulerRoundRobinsAcrossPools confirms a basic scheduler visits
// each attached pool in turn rather than draining one before the next.
func TestBasicSchedulerRoundRobinsAcrossPools(t *testing.T) {
	require.NoError(t, Init())
	defer Finalize()

	es, err := Self()
	require.NoError(t, err)

	poolA, err := NewPool(PRW, true)
	require.NoError(t, err)
	poolB, err := NewPool(PRW, true)
	require.NoError(t, err)
	sched, err := NewBasicScheduler([]*Pool{poolA, poolB}, true)
	require.NoError(t, err)

	var order []string
	_, err = CreateThread(poolA, func(arg interface{}) { order = append(order, "a1") }, nil, DefaultThreadAttr())
	require.NoError(t, err)
	_, err = CreateThread(poolB, func(arg interface{}) { order = append(order, "b1") }, nil, DefaultThreadAttr())
	require.NoError(t, err)
	_, err = CreateThread(poolA, func(arg interface{}) { order = append(order, "a2") }, nil, DefaultThreadAttr())
	require.NoError(t, err)

	sched.Finish()
	require.NoError(t, es.Run(sched))

	require.Equal(t, []string{"a1", "b1", "a2"}, order)
}

// TestSchedExitDoesNotDrainRemainingUnits confirms EXIT stops a scheduler
// immediately, unlike FINISH, even with ready work still queued.
func TestSchedExitDoesNotDrainRemainingUnits(t *testing.T) {
	require.NoError(t, Init())
	defer Finalize()

	es, err := Self()
	require.NoError(t, err)

	pool, err := NewPool(PRW, true)
	require.NoError(t, err)
	sched, err := NewBasicScheduler([]*Pool{pool}, true)
	require.NoError(t, err)

	var ran int32
	_, err = CreateThread(pool, func(arg interface{}) {
		atomic.AddInt32(&ran, 1)
		sched.Exit()
	}, nil, DefaultThreadAttr())
	require.NoError(t, err)
	_, err = CreateThread(pool, func(arg interface{}) {
		atomic.AddInt32(&ran, 1)
	}, nil, DefaultThreadAttr())
	require.NoError(t, err)

	require.NoError(t, es.Run(sched))

	require.Equal(t, int32(1), atomic.LoadInt32(&ran))
	require.Equal(t, 1, pool.GetSize())
	require.Equal(t, SchedTerminated, SchedState(atomic.LoadInt32(&sched.state)))
}
