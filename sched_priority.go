package ult

// NewPriorityScheduler implements sched_create_basic(ABT_SCHED_PRIO, ...):
// always dispatches from the highest-index non-empty pool, matching the
// predefined "priority" kind in spec.md §6.
func NewPriorityScheduler(pools []*Pool, automatic bool) (*Scheduler, error) {
	if len(pools) == 0 {
		return nil, ErrInvalidPool
	}
	owned := append([]*Pool(nil), pools...)
	s := &Scheduler{
		handle:    newHandle(),
		kind:      SchedPriority,
		pools:     owned,
		automatic: automatic,
		state:     int32(SchedReady),
	}
	s.getMigrationPool = func(source *Pool) *Pool {
		return owned[0]
	}
	for _, p := range owned {
		if err := p.AddSched(s); err != nil {
			return nil, err
		}
	}
	if automatic {
		registerSched(s)
	}
	return s, nil
}
