package ult

import "github.com/google/uuid"

// handle is embedded in every externally-visible descriptor (ES, Scheduler,
// Pool, Thread, Task) to give it a stable identity independent of its
// backing pointer, per the handle/descriptor split in spec.md §9. Go's
// non-moving GC already keeps pointers stable for the lifetime of a
// descriptor, so the uuid here isn't load-bearing for memory safety — it
// exists so traces, logs, and metrics can name a unit without leaking its
// address, and so a freed-then-reallocated descriptor can never be
// mistaken for a still-live one by an application holding a stale handle.
type handle struct {
	id uuid.UUID
}

func newHandle() handle {
	return handle{id: uuid.New()}
}

// ID returns the handle's stable external identifier.
func (h handle) ID() uuid.UUID {
	return h.id
}
