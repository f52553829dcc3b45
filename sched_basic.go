package ult

// NewBasicScheduler implements sched_create_basic(ABT_SCHED_BASIC, ...):
// round-robins across pools in the order given. If pools is empty, a
// single automatic private pool is created, matching the "no-pool" predef
// path collapsing onto an implicit pool (spec.md §6).
func NewBasicScheduler(pools []*Pool, automatic bool) (*Scheduler, error) {
	if len(pools) == 0 {
		p, err := NewPool(PRW, true)
		if err != nil {
			return nil, err
		}
		pools = []*Pool{p}
	}
	owned := append([]*Pool(nil), pools...)
	s := &Scheduler{
		handle:    newHandle(),
		kind:      SchedBasic,
		pools:     owned,
		automatic: automatic,
		state:     int32(SchedReady),
	}
	s.getMigrationPool = func(source *Pool) *Pool {
		if len(owned) == 0 {
			return nil
		}
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
