package ult

import (
	"sync"
	"sync/atomic"
)

// unit is the common interface satisfied by *Thread and *Task, letting a
// Pool queue both kinds of work interchangeably (spec.md §3's pool holds
// "ready work units", not just ULTs).
type unit interface {
	run(s *Scheduler)
}

// AccessPolicy is a pool's producer/consumer access policy (spec.md §3,
// five legal combinations of {private, shared} x {private, shared}).
type AccessPolicy int

const (
	PRW AccessPolicy = iota
	PR_PW
	PR_SW
	SR_PW
	SR_SW
)

func (a AccessPolicy) String() string {
	switch a {
	case PRW:
		return "PRW"
	case PR_PW:
		return "PR_PW"
	case PR_SW:
		return "PR_SW"
	case SR_PW:
		return "SR_PW"
	case SR_SW:
		return "SR_SW"
	default:
		return "UNKNOWN"
	}
}

// policyRules captures the three independent yes/no outcomes spec.md §8's
// scenario table assigns each policy. These are kept as three explicit
// booleans, rather than derived from a single orthogonal producer/consumer
// rule, because §8 is the table spec.md itself names as the binding
// property test (see DESIGN.md's note on the §4.2-vs-§8 access matrix).
type policyRules struct {
	allowCrossESAttach bool
	allowForeignPush   bool
	allowForeignPop    bool
}

var policyTable = map[AccessPolicy]policyRules{
	PRW:   {allowCrossESAttach: false, allowForeignPush: false, allowForeignPop: false},
	PR_PW: {allowCrossESAttach: false, allowForeignPush: true, allowForeignPop: false},
	PR_SW: {allowCrossESAttach: false, allowForeignPush: true, allowForeignPop: true},
	SR_PW: {allowCrossESAttach: true, allowForeignPush: false, allowForeignPop: false},
	SR_SW: {allowCrossESAttach: true, allowForeignPush: true, allowForeignPop: true},
}

// Pool is a FIFO queue of ready work units with an access policy
// (spec.md §3/§4.2).
type Pool struct {
	handle
	mu        sync.Mutex
	access    AccessPolicy
	automatic bool
	primary   *ES
	queue     []unit
	totalSize int64 // includes blocked/in-transit units, not just queued ones
	scheds    []*Scheduler
	numScheds int32
	refCount  int32
	freed     bool
}

// NewPool implements pool_create_basic: kind is always FIFO (the only
// queueing discipline this implementation supplies), access sets the
// producer/consumer policy. The calling goroutine's execution stream
// becomes the pool's primary ES.
func NewPool(access AccessPolicy, automatic bool) (*Pool, error) {
	owner, err := Self()
	if err != nil {
		return nil, ErrInvalidXStream
	}
	p := &Pool{
		handle:    newHandle(),
		access:    access,
		automatic: automatic,
		primary:   owner,
	}
	if automatic {
		registerPool(p)
	}
	return p, nil
}

func (p *Pool) checkPush() error {
	callerES, err := Self()
	if err != nil {
		return ErrInvalidXStream
	}
	if callerES == p.primary {
		return nil
	}
	if policyTable[p.access].allowForeignPush {
		return nil
	}
	return ErrInvalidPoolAccess
}

func (p *Pool) checkPop() error {
	callerES, err := Self()
	if err != nil {
		return ErrInvalidXStream
	}
	if callerES == p.primary {
		return nil
	}
	if policyTable[p.access].allowForeignPop {
		return nil
	}
	return ErrInvalidPoolAccess
}

// push implements pool_push.
func (p *Pool) push(u unit) error {
	if err := p.checkPush(); err != nil {
		return err
	}
	p.mu.Lock()
	p.queue = append(p.queue, u)
	p.mu.Unlock()
	return nil
}

// pop implements pool_pop: returns (nil, nil) when the pool is empty,
// which is not an error condition.
func (p *Pool) pop() (unit, error) {
	if err := p.checkPop(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	if len(p.queue) == 0 {
		p.mu.Unlock()
		return nil, nil
	}
	u := p.queue[0]
	p.queue = p.queue[1:]
	p.mu.Unlock()
	return u, nil
}

func (p *Pool) addMember()    { atomic.AddInt64(&p.totalSize, 1) }
func (p *Pool) removeMember() { atomic.AddInt64(&p.totalSize, -1) }

// GetSize implements pool_get_size: the number of units currently queued
// and ready.
func (p *Pool) GetSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// GetTotalSize implements pool_get_total_size: includes blocked and
// in-transit units that belong to this pool but are not currently queued.
func (p *Pool) GetTotalSize() int64 {
	return atomic.LoadInt64(&p.totalSize)
}

// AddSched implements pool_add_sched: attaches s to the pool, rejecting the
// attachment if doing so from a non-primary ES would violate the access
// policy's cross-ES attach rule (spec.md §8 scenario A).
func (p *Pool) AddSched(s *Scheduler) error {
	if s == nil {
		return ErrInvalidSched
	}
	callerES, err := Self()
	if err != nil {
		return ErrInvalidXStream
	}
	if callerES != p.primary && !policyTable[p.access].allowCrossESAttach {
		return ErrInvalidPoolAccess
	}
	p.mu.Lock()
	p.scheds = append(p.scheds, s)
	p.mu.Unlock()
	atomic.AddInt32(&p.numScheds, 1)
	atomic.AddInt32(&p.refCount, 1)
	return nil
}

// removeSched detaches s from p, the Go equivalent of sched.c's
// ABTI_pool_release call inside ABT_sched_free: it drops the back-pointer
// and decrements both the scheduler-attachment and reference counts.
// Returns whether p is automatic and how many schedulers remain attached,
// so the caller (Scheduler.Free) knows whether p itself is now eligible
// for automatic cleanup.
func (p *Pool) removeSched(s *Scheduler) (automatic bool, remaining int32) {
	p.mu.Lock()
	for i, sc := range p.scheds {
		if sc == s {
			p.scheds = append(p.scheds[:i], p.scheds[i+1:]...)
			break
		}
	}
	p.mu.Unlock()
	atomic.AddInt32(&p.numScheds, -1)
	atomic.AddInt32(&p.refCount, -1)
	return p.automatic, atomic.LoadInt32(&p.numScheds)
}

// acceptMigration validates a migrating unit may be pushed into p. A
// migration is, from the destination pool's point of view, exactly an
// ordinary push — so it is subject to the same producer-access check.
// source is accepted for signature symmetry with spec.md §4.4's
// accept_migration(dest, source) but is not otherwise consulted: nothing
// in this implementation's access model distinguishes migrated-in units
// from freshly created ones once they reach the destination pool.
func (p *Pool) acceptMigration(source *Pool) error {
	return p.checkPush()
}

// Free implements pool_free: a pool still attached to a scheduler cannot
// be freed. Idempotent, since both Scheduler.Free (for a pool whose last
// scheduler just detached) and Finalize's own automatic-pool sweep may
// both reach the same pool.
func (p *Pool) Free() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.freed {
		return nil
	}
	if atomic.LoadInt32(&p.numScheds) > 0 {
		return ErrInvalidPool
	}
	p.freed = true
	p.queue = nil
	return nil
}
