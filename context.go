package ult

// Context is the Go stand-in for spec.md §4.1's abstract, register-level
// context_switch primitive. Go exposes no portable way to save/restore a
// raw stack and instruction pointer without platform assembly or cgo
// ucontext bindings, so — as §9 explicitly allows ("a conforming
// implementation may use platform assembly, ucontext-style APIs, or a
// stackful coroutine library") — a Context here is a rendezvous point
// between goroutines: switching to a context means waking the goroutine
// parked on it and blocking the caller on its own resume channel until
// something switches back. Exactly one side of any switch is ever
// runnable, which reproduces the single-active-context invariant (§5)
// without any shared mutable stack.
//
// Two flavors exist. A worker context (made with newWorkerContext) owns a
// dedicated goroutine that loops forever, invoking its trampoline function
// each time it is resumed — this is what lets a revived ULT reuse its
// goroutine instead of allocating a new one. A bare context (made with
// newContext) has no goroutine of its own; it is used for an ES's MAIN
// ULT, whose "context" is simply wherever that ES's own native goroutine
// happens to be in its call stack.
type Context struct {
	resume chan struct{}
	exit   chan struct{}
}

func newContext() *Context {
	return &Context{resume: make(chan struct{})}
}

func newWorkerContext(trampoline func()) *Context {
	c := &Context{resume: make(chan struct{}), exit: make(chan struct{})}
	go c.loop(trampoline)
	return c
}

func (c *Context) loop(trampoline func()) {
	for {
		select {
		case <-c.resume:
			trampoline()
		case <-c.exit:
			// This goroutine is never coming back; drop its thread-local
			// entry rather than leaking it in the local map forever.
			clearLocal()
			return
		}
	}
}

// switchContext transfers control from the calling goroutine's context to
// to, and blocks until something switches back to from. Both from and to
// must belong to the same execution stream.
func switchContext(from, to *Context) {
	to.resume <- struct{}{}
	<-from.resume
}

// finish wakes to without blocking the caller on a return switch. Used
// exactly once, by a work unit's terminating epilogue: the unit's own
// goroutine is about to fall back out to loop's select (ready to be
// reused by a future revive), so there is nothing for it to block on.
func (c *Context) finish(to *Context) {
	to.resume <- struct{}{}
}

// release permanently stops a worker context's backing goroutine. A no-op
// on bare contexts, which never owned one.
func (c *Context) release() {
	if c.exit != nil {
		close(c.exit)
	}
}
