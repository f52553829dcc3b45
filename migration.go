package ult

import (
	"sync/atomic"

	"ult/internal/rtlog"
)

// ThreadRequestMigration sets target's MIGRATE request bit (spec.md §3's
// ULT request bitset). It does not block and does not move the unit
// itself: the move happens lazily, observed at target's next yield, via
// its most recent scheduler's get_migration_pool callback — mirroring
// sched.c's migration path.
func ThreadRequestMigration(target *Thread) error {
	if target == nil {
		return ErrInvalidThread
	}
	for {
		old := atomic.LoadUint32(&target.request)
		if atomic.CompareAndSwapUint32(&target.request, old, old|reqMigrate) {
			return nil
		}
	}
}

// migrate moves t from its current home pool to the destination selected
// by the scheduler that last dispatched it, subject to the destination's
// access-policy check. Called only from t.yield, on t's own goroutine.
func (t *Thread) migrate() error {
	t.mu.Lock()
	sched := t.lastSched
	oldPool := t.homePool
	t.mu.Unlock()

	if sched == nil {
		return ErrSched
	}
	dest := sched.migrationPool(oldPool)
	if dest == nil || dest == oldPool {
		return ErrInvalidPoolAccess
	}
	if err := dest.acceptMigration(oldPool); err != nil {
		return err
	}

	t.mu.Lock()
	t.homePool = dest
	t.mu.Unlock()
	atomic.StoreInt32(&t.state, int32(ThreadReady))
	dest.addMember()
	oldPool.removeMember()
	if err := dest.push(t); err != nil {
		return err
	}
	rtlog.ThreadMigrated(t.ID().String(), oldPool.ID().String(), dest.ID().String())
	return nil
}
