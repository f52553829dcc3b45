package ult

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestPoolAccessMatrix exercises the three independent outcomes spec.md §8
// assigns each of the five access policies (cross-ES scheduler attach,
// foreign push, foreign pop), one ES pair and one pool per policy, mirroring
// the two-ES attach / foreign push / foreign pop shape the original engine's
// access-policy test suite uses.
func TestPoolAccessMatrix(t *testing.T) {
	cases := []struct {
		policy            AccessPolicy
		wantCrossESAttach bool
		wantForeignPush   bool
		wantForeignPop    bool
	}{
		{PRW, false, false, false},
		{PR_PW, false, true, false},
		{PR_SW, false, true, true},
		{SR_PW, true, false, false},
		{SR_SW, true, true, true},
	}

	for _, tc := range cases {
		t.Run(tc.policy.String(), func(t *testing.T) {
			require.NoError(t, Init())
			defer Finalize()

			owner, err := Self()
			require.NoError(t, err)

			p, err := NewPool(tc.policy, true)
			require.NoError(t, err)
			require.Equal(t, owner, p.primary)

			foreign := &ES{handle: newHandle(), state: int32(XStreamReady)}
			origThread := currentThread()

			// foreign push: simulate a call made while Self() resolves to a
			// different ES by swapping the calling goroutine's local record.
			setLocal(foreign, nil)
			pushErr := p.checkPush()
			popErr := p.checkPop()
			s := &Scheduler{handle: newHandle(), kind: SchedBasic, state: int32(SchedReady)}
			attachErr := p.AddSched(s)
			setLocal(owner, origThread)

			if tc.wantForeignPush {
				require.NoError(t, pushErr)
			} else {
				require.ErrorIs(t, pushErr, ErrInvalidPoolAccess)
			}
			if tc.wantForeignPop {
				require.NoError(t, popErr)
			} else {
				require.ErrorIs(t, popErr, ErrInvalidPoolAccess)
			}
			if tc.wantCrossESAttach {
				require.NoError(t, attachErr)
			} else {
				require.ErrorIs(t, attachErr, ErrInvalidPoolAccess)
			}

			// A push/pop from the pool's own primary ES is always legal,
			// regardless of policy.
			require.NoError(t, p.checkPush())
			require.NoError(t, p.checkPop())
		})
	}
}
