package fsm_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webitel/fsmrun/internal/fsm"
)

type counterFsm struct {
	fsm.BaseFsm
	stopped bool
}

func (c *counterFsm) IsStopped() bool { return c.stopped }

type recordingScheduler struct {
	mu        sync.Mutex
	scheduled []*counterFsm
}

func (s *recordingScheduler) Schedule(f *counterFsm) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled = append(s.scheduled, f)
}
func (s *recordingScheduler) Shutdown(int) {}

func TestTakeFsmThenReleaseRoundTrips(t *testing.T) {
	var cnt atomic.Int64
	box := &counterFsm{}
	state := fsm.NewFsmState(box, &cnt)
	require.Equal(t, int64(1), cnt.Load())

	taken, ok := state.TakeFsm()
	require.True(t, ok)
	require.Same(t, box, taken)

	// Cell is NOTIFIED now; a second take must be a no-op.
	_, ok = state.TakeFsm()
	require.False(t, ok)

	state.Release(taken)

	// Cell is IDLE again; take should succeed.
	taken2, ok := state.TakeFsm()
	require.True(t, ok)
	require.Same(t, box, taken2)
}

func TestNotifyIsNoOpWhenAlreadyNotified(t *testing.T) {
	var cnt atomic.Int64
	box := &counterFsm{}
	state := fsm.NewFsmState(box, &cnt)
	sched := &recordingScheduler{}

	state.Notify(sched, nil, nil)
	require.Len(t, sched.scheduled, 1)

	// Cell is NOTIFIED; a second Notify before release must do nothing.
	state.Notify(sched, nil, nil)
	require.Len(t, sched.scheduled, 1)
}

func TestClearFromIdleDropsImmediately(t *testing.T) {
	var cnt atomic.Int64
	box := &counterFsm{}
	state := fsm.NewFsmState(box, &cnt)

	state.Clear()

	// A subsequent TakeFsm must fail: the cell is terminal.
	_, ok := state.TakeFsm()
	require.False(t, ok)
}

// TestConcurrentTakeFsmExactlyOneWins pins the boundary behaviour from
// spec.md §8: two goroutines racing TakeFsm on the same cell observe
// exactly one success and one failure.
func TestConcurrentTakeFsmExactlyOneWins(t *testing.T) {
	for i := 0; i < 200; i++ {
		var cnt atomic.Int64
		box := &counterFsm{}
		state := fsm.NewFsmState(box, &cnt)

		var wg sync.WaitGroup
		results := make([]bool, 2)
		wg.Add(2)
		for g := 0; g < 2; g++ {
			g := g
			go func() {
				defer wg.Done()
				_, ok := state.TakeFsm()
				results[g] = ok
			}()
		}
		wg.Wait()

		successes := 0
		for _, ok := range results {
			if ok {
				successes++
			}
		}
		require.Equal(t, 1, successes)
	}
}

func TestPriorityOfAndIsStoppedOfDefaults(t *testing.T) {
	box := &counterFsm{}
	require.Equal(t, fsm.PriorityNormal, fsm.PriorityOf(box))
	require.False(t, fsm.IsStoppedOf(box))

	box.stopped = true
	require.True(t, fsm.IsStoppedOf(box))

	type notAnFsm struct{}
	require.Equal(t, fsm.PriorityNormal, fsm.PriorityOf(&notAnFsm{}))
	require.False(t, fsm.IsStoppedOf(&notAnFsm{}))
}
