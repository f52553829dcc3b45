package ult

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestInitIsIdempotent confirms a second Init call is a no-op rather than
// re-adopting the calling goroutine as a fresh primary ES.
func TestInitIsIdempotent(t *testing.T) {
	require.NoError(t, Init())
	defer Finalize()

	first, err := Self()
	require.NoError(t, err)

	require.NoError(t, Init())
	second, err := Self()
	require.NoError(t, err)

	require.Same(t, first, second)
}

// TestFinalizeJoinsSecondaryExecutionStreams confirms Finalize drives every
// secondary ES's scheduler to completion and tears down global state so a
// later Init can start clean.
func TestFinalizeJoinsSecondaryExecutionStreams(t *testing.T) {
	require.NoError(t, Init())

	oldPrimary, err := Self()
	require.NoError(t, err)

	pool, err := NewPool(SR_SW, true)
	require.NoError(t, err)
	sched, err := NewBasicScheduler([]*Pool{pool}, true)
	require.NoError(t, err)

	var ran int32
	_, err = CreateThread(pool, func(arg interface{}) {
		atomic.StoreInt32(&ran, 1)
	}, nil, DefaultThreadAttr())
	require.NoError(t, err)
	sched.Finish()

	secondary, err := CreateXStream(sched)
	require.NoError(t, err)

	require.NoError(t, Finalize())

	require.Equal(t, int32(1), atomic.LoadInt32(&ran))
	require.Equal(t, XStreamTerminated, secondary.State())

	// A fresh Init after Finalize adopts a new primary ES rather than
	// resurrecting the torn-down one.
	require.NoError(t, Init())
	defer Finalize()
	fresh, err := Self()
	require.NoError(t, err)
	require.NotEqual(t, oldPrimary.ID(), fresh.ID())
}
