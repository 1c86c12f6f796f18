package mailbox_test

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webitel/fsmrun/internal/fsm"
	"github.com/webitel/fsmrun/internal/mailbox"
	"github.com/webitel/fsmrun/internal/mpsc"
)

type actor struct {
	fsm.BaseFsm
	stopped bool
	mb      any
}

func (a *actor) IsStopped() bool           { return a.stopped }
func (a *actor) SetMailbox(mb any)         { a.mb = mb }
func (a *actor) TakeMailbox() (any, bool) {
	if a.mb == nil {
		return nil, false
	}
	mb := a.mb
	a.mb = nil
	return mb, true
}

type noopScheduler struct{ scheduled []*actor }

func (s *noopScheduler) Schedule(f *actor) { s.scheduled = append(s.scheduled, f) }
func (s *noopScheduler) Shutdown(int)      {}

func newMailbox(t *testing.T) (*mailbox.BasicMailbox[actor, string], *actor, *atomic.Int64) {
	t.Helper()
	var cnt atomic.Int64
	box := &actor{}
	sender, _ := mpsc.LooseBounded[string](10)
	state := fsm.NewFsmState(box, &cnt)
	mb := mailbox.New[actor, string](sender, state)
	return mb, box, &cnt
}

func TestTrySendEnqueuesAndNotifies(t *testing.T) {
	mb, box, _ := newMailbox(t)
	sched := &noopScheduler{}

	err := mb.TrySend("hello", sched, func(f *actor, m *mailbox.BasicMailbox[actor, string]) {
		f.SetMailbox(m)
	})
	require.NoError(t, err)
	require.Len(t, sched.scheduled, 1)
	require.Same(t, box, sched.scheduled[0])

	mbHandle, ok := box.TakeMailbox()
	require.True(t, ok)
	require.Same(t, mb, mbHandle)
}

func TestTrySendSkipsNotifyOnError(t *testing.T) {
	sender, _ := mpsc.LooseBounded[string](1)
	sender.CloseSender()
	var cnt atomic.Int64
	box := &actor{}
	state := fsm.NewFsmState(box, &cnt)
	mb := mailbox.New[actor, string](sender, state)
	sched := &noopScheduler{}

	err := mb.TrySend("x", sched, nil)
	require.Error(t, err)
	require.Empty(t, sched.scheduled)
}

func TestCloseDropsFsmAndDisconnectsSender(t *testing.T) {
	mb, _, _ := newMailbox(t)
	mb.Close()

	require.False(t, mb.IsConnected())
	_, ok := mb.TakeFsm()
	require.False(t, ok, "cell is DROP; TakeFsm must fail")
}
