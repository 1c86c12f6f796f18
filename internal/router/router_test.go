package router_test

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webitel/fsmrun/internal/fsm"
	"github.com/webitel/fsmrun/internal/mailbox"
	"github.com/webitel/fsmrun/internal/mpsc"
	"github.com/webitel/fsmrun/internal/router"
)

type normalFsm struct {
	fsm.BaseFsm
	stopped bool
}

func (n *normalFsm) IsStopped() bool { return n.stopped }

type controlFsm struct {
	fsm.BaseFsm
}

func (c *controlFsm) IsStopped() bool { return false }

type recordingScheduler[T any] struct{ scheduled []*T }

func (s *recordingScheduler[T]) Schedule(f *T) { s.scheduled = append(s.scheduled, f) }
func (s *recordingScheduler[T]) Shutdown(int)  {}

func newRouter(t *testing.T) (*router.Router[normalFsm, string, controlFsm, string], *atomic.Int64) {
	t.Helper()
	var cnt atomic.Int64
	controlSender, _ := mpsc.LooseBounded[string](16)
	controlState := fsm.NewFsmState(&controlFsm{}, &cnt)
	controlBox := mailbox.New[controlFsm, string](controlSender, controlState)

	normalSched := &recordingScheduler[normalFsm]{}
	controlSched := &recordingScheduler[controlFsm]{}

	r := router.New[normalFsm, string, controlFsm, string](controlBox, normalSched, controlSched, &cnt)
	return r, &cnt
}

func registerNormal(t *testing.T, r *router.Router[normalFsm, string, controlFsm, string], addr uint64, cnt *atomic.Int64) *normalFsm {
	t.Helper()
	sender, _ := mpsc.LooseBounded[string](16)
	box := &normalFsm{}
	state := fsm.NewFsmState(box, cnt)
	mb := mailbox.New[normalFsm, string](sender, state)
	r.Register(addr, mb)
	return box
}

func TestMissingMailboxReportsDisconnected(t *testing.T) {
	r, _ := newRouter(t)

	res := r.TrySend(1, "hello")
	require.True(t, res.NotFound)

	err := r.Send(1, "hello")
	require.ErrorIs(t, err, mpsc.ErrDisconnected)

	err = r.ForceSend(1, "hello")
	require.Error(t, err)
}

func TestRegisterThenSendSucceeds(t *testing.T) {
	r, cnt := newRouter(t)
	registerNormal(t, r, 1, cnt)

	require.NoError(t, r.Send(1, "hi"))
	require.NoError(t, r.ForceSend(1, "hi"))
}

func TestCloseThenSendDisconnects(t *testing.T) {
	r, cnt := newRouter(t)
	registerNormal(t, r, 1, cnt)
	r.Close(1)

	res := r.TrySend(1, "x")
	require.True(t, res.NotFound)
	err := r.Send(1, "x")
	require.ErrorIs(t, err, mpsc.ErrDisconnected)
}

func TestRegisterCloseRegisterRoundTrip(t *testing.T) {
	r, cnt := newRouter(t)
	registerNormal(t, r, 1, cnt)
	r.Close(1)
	box2 := registerNormal(t, r, 1, cnt)

	mb, ok := r.Mailbox(1)
	require.True(t, ok)
	require.True(t, mb.IsConnected())
	_ = box2
}

func TestAliveCntMatchesMapLen(t *testing.T) {
	r, cnt := newRouter(t)
	registerNormal(t, r, 1, cnt)
	registerNormal(t, r, 2, cnt)
	require.EqualValues(t, 2, r.Trace().Alive)

	r.Close(1)
	require.EqualValues(t, 1, r.Trace().Alive)
}

func TestBroadcastShutdownIsIdempotent(t *testing.T) {
	r, cnt := newRouter(t)
	registerNormal(t, r, 1, cnt)

	r.BroadcastShutdown(4)
	require.True(t, r.IsShutdown())
	require.EqualValues(t, 0, r.Trace().Alive)

	// Calling again must not panic and must leave the router in the same
	// shut-down, empty state.
	r.BroadcastShutdown(4)
	require.True(t, r.IsShutdown())
	require.EqualValues(t, 0, r.Trace().Alive)
}

func TestCloneGetsFreshCacheButSharesMap(t *testing.T) {
	r, cnt := newRouter(t)
	registerNormal(t, r, 1, cnt)

	// Prime the original's cache.
	_, ok := r.Mailbox(1)
	require.True(t, ok)

	clone := r.Clone()
	mb, ok := clone.Mailbox(1)
	require.True(t, ok)
	require.NotNil(t, mb)

	registerNormal(t, r, 2, cnt)
	_, ok = clone.Mailbox(2)
	require.True(t, ok, "clone shares the address map with the original")
}
