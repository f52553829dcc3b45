package ult

import (
	"runtime"
	"strconv"
	"strings"
	"sync"
)

// localState is the thread-local record spec.md §4.6 calls `local`: the ES
// the calling goroutine belongs to, and the work unit currently executing
// on it. Go has no native goroutine-local storage, so this is emulated by
// keying off the goroutine ID parsed out of runtime.Stack — the same
// trick reached for across the Go ecosystem when something needs to tell
// goroutines apart without threading a context.Context through every call.
type localState struct {
	es          *ES
	current     *Thread
	currentTask *Task
}

var (
	localMu sync.Mutex
	local   = map[uint64]*localState{}
)

func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := strings.Fields(string(buf[:n]))
	if len(fields) < 2 {
		return 0
	}
	id, _ := strconv.ParseUint(fields[1], 10, 64)
	return id
}

func setLocal(es *ES, t *Thread) {
	gid := goroutineID()
	localMu.Lock()
	local[gid] = &localState{es: es, current: t}
	localMu.Unlock()
}

func clearLocal() {
	gid := goroutineID()
	localMu.Lock()
	delete(local, gid)
	localMu.Unlock()
}

func getLocal() *localState {
	gid := goroutineID()
	localMu.Lock()
	defer localMu.Unlock()
	return local[gid]
}

// Self returns the execution stream running the calling goroutine, or
// ErrInvalidXStream if the calling goroutine is not an ES kernel thread
// (primary or secondary).
func Self() (*ES, error) {
	ls := getLocal()
	if ls == nil || ls.es == nil {
		return nil, ErrInvalidXStream
	}
	return ls.es, nil
}

func currentThread() *Thread {
	ls := getLocal()
	if ls == nil {
		return nil
	}
	return ls.current
}

// Runtime is the process-wide state described in spec.md §4.6: the list of
// live ESes and the primary ES handle. init is idempotent under a guard;
// finalize tears down in reverse-creation order.
type runtimeState struct {
	mu       sync.Mutex
	inited   bool
	xstreams []*ES
	primary  *ES
	pools    []*Pool
	scheds   []*Scheduler
}

var globalRuntime = &runtimeState{}

func registerXStream(es *ES) {
	globalRuntime.mu.Lock()
	globalRuntime.xstreams = append(globalRuntime.xstreams, es)
	globalRuntime.mu.Unlock()
}

// registerPool records an automatic pool so Finalize can destroy it
// without the caller having to track and free it explicitly (spec.md
// §4.5).
func registerPool(p *Pool) {
	globalRuntime.mu.Lock()
	globalRuntime.pools = append(globalRuntime.pools, p)
	globalRuntime.mu.Unlock()
}

// registerSched records an automatic scheduler so Finalize can destroy it
// without the caller having to track and free it explicitly (spec.md
// §4.5).
func registerSched(s *Scheduler) {
	globalRuntime.mu.Lock()
	globalRuntime.scheds = append(globalRuntime.scheds, s)
	globalRuntime.mu.Unlock()
}

func adoptPrimaryES() (*ES, error) {
	runtime.LockOSThread()
	es := &ES{
		handle:  newHandle(),
		state:   int32(XStreamRunning),
		done:    make(chan struct{}),
		primary: true,
	}
	main := &Thread{handle: newHandle(), kind: threadMain, joinable: false}
	main.ctx = newContext()
	main.ownerES = es
	es.mainThread = main
	setLocal(es, main)
	return es, nil
}

// Init implements init: idempotent, adopts the calling goroutine as the
// primary ES.
func Init() error {
	globalRuntime.mu.Lock()
	defer globalRuntime.mu.Unlock()
	if globalRuntime.inited {
		return nil
	}
	primary, err := adoptPrimaryES()
	if err != nil {
		return err
	}
	globalRuntime.primary = primary
	globalRuntime.xstreams = []*ES{primary}
	globalRuntime.inited = true
	return nil
}

// Finalize implements finalize: joins all secondary ESes, destroys every
// pool and scheduler created with automatic=true, releases the primary
// ES, and tears down global state (spec.md §4.5). After Finalize returns,
// all handles obtained before it are invalid.
func Finalize() error {
	globalRuntime.mu.Lock()
	if !globalRuntime.inited {
		globalRuntime.mu.Unlock()
		return nil
	}
	xs := append([]*ES(nil), globalRuntime.xstreams...)
	primary := globalRuntime.primary
	scheds := append([]*Scheduler(nil), globalRuntime.scheds...)
	pools := append([]*Pool(nil), globalRuntime.pools...)
	globalRuntime.mu.Unlock()

	for i := len(xs) - 1; i >= 0; i-- {
		x := xs[i]
		if x == primary {
			continue
		}
		_ = XStreamJoin(x)
		_ = XStreamFree(x)
	}
	if primary != nil {
		_ = XStreamFree(primary)
	}

	// Destroy automatic schedulers first: Scheduler.Free releases each
	// one's pool attachments, which frees any automatic pool whose
	// attachment count reaches zero as a side effect. The pool sweep
	// below is then a no-op for those (Pool.Free is idempotent) and only
	// does real work for automatic pools no automatic scheduler reached.
	for i := len(scheds) - 1; i >= 0; i-- {
		_ = scheds[i].Free()
	}
	for i := len(pools) - 1; i >= 0; i-- {
		_ = pools[i].Free()
	}

	clearLocal()

	globalRuntime.mu.Lock()
	globalRuntime.inited = false
	globalRuntime.xstreams = nil
	globalRuntime.primary = nil
	globalRuntime.scheds = nil
	globalRuntime.pools = nil
	globalRuntime.mu.Unlock()
	return nil
}
