package ult

import "sync/atomic"

// TaskState is a tasklet's lifecycle state (spec.md §3). Tasklets have no
// BLOCKED state: they never suspend.
type TaskState int32

const (
	TaskReady TaskState = iota
	TaskRunning
	TaskTerminated
)

const reqTaskCancel uint32 = 1

// Task is a tasklet: a stackless work unit that runs to completion in the
// dispatching scheduler's own goroutine, without ever yielding.
type Task struct {
	handle
	entry    func(arg interface{})
	arg      interface{}
	homePool *Pool
	state    int32
	request  uint32
}

// CreateTask implements task_create.
func CreateTask(pool *Pool, entry func(arg interface{}), arg interface{}) (*Task, error) {
	if pool == nil {
		return nil, ErrInvalidPool
	}
	if err := pool.checkPush(); err != nil {
		return nil, err
	}
	tk := &Task{
		handle:   newHandle(),
		entry:    entry,
		arg:      arg,
		homePool: pool,
		state:    int32(TaskReady),
	}
	pool.addMember()
	if err := pool.push(tk); err != nil {
		pool.removeMember()
		return nil, err
	}
	return tk, nil
}

// State returns the tasklet's current lifecycle state.
func (tk *Task) State() TaskState {
	return TaskState(atomic.LoadInt32(&tk.state))
}

// run dispatches the tasklet synchronously: no context switch, since a
// tasklet has no stack of its own to switch into.
func (tk *Task) run(s *Scheduler) {
	if atomic.LoadUint32(&tk.request) == reqTaskCancel {
		atomic.StoreInt32(&tk.state, int32(TaskTerminated))
		tk.homePool.removeMember()
		return
	}
	atomic.StoreInt32(&tk.state, int32(TaskRunning))
	ls := getLocal()
	if ls != nil {
		ls.currentTask = tk
	}
	tk.entry(tk.arg)
	if ls != nil {
		ls.currentTask = nil
	}
	atomic.StoreInt32(&tk.state, int32(TaskTerminated))
	tk.homePool.removeMember()
}

// TaskCancel implements task_cancel: since a tasklet never yields, this
// only takes effect if the tasklet has not yet been dispatched.
func TaskCancel(tk *Task) error {
	if tk == nil {
		return ErrInvalidThread
	}
	atomic.StoreUint32(&tk.request, reqTaskCancel)
	return nil
}

// TaskFree implements task_free.
func TaskFree(tk *Task) error {
	if tk == nil {
		return ErrInvalidThread
	}
	if TaskState(atomic.LoadInt32(&tk.state)) != TaskTerminated {
		return ErrInvalidThread
	}
	return nil
}

// TaskSelf implements task_self.
func TaskSelf() (*Task, error) {
	ls := getLocal()
	if ls == nil || ls.currentTask == nil {
		return nil, ErrInvalidThread
	}
	return ls.currentTask, nil
}
