// Package mailbox implements BasicMailbox, the (channel, FsmState) pair
// that fuses message enqueueing with FSM scheduling: a successful send
// either wakes the FSM itself or observes that someone else already did,
// guaranteeing the message will eventually be drained.
package mailbox

import (
	"github.com/webitel/fsmrun/internal/fsm"
	"github.com/webitel/fsmrun/internal/mpsc"
)

// BasicMailbox identifies one FSM to the router: a loose-bounded sender for
// its message type plus a shared handle to its FsmState. Cloning a mailbox
// shares the same underlying state and sender — all clones address the same
// FSM.
type BasicMailbox[N any, M any] struct {
	sender *mpsc.LooseBoundedSender[M]
	state  *fsm.FsmState[N]
}

// New constructs a mailbox over an already-built FsmState and sender. The
// scheduler and router packages are responsible for constructing the
// FsmState and wiring it to a boxed FSM before handing it to New.
func New[N any, M any](sender *mpsc.LooseBoundedSender[M], state *fsm.FsmState[N]) *BasicMailbox[N, M] {
	return &BasicMailbox[N, M]{sender: sender, state: state}
}

// State exposes the underlying FsmState, e.g. for Router.Trace accounting.
func (mb *BasicMailbox[N, M]) State() *fsm.FsmState[N] { return mb.state }

// IsConnected reports whether the mailbox's sender side can still accept
// messages.
func (mb *BasicMailbox[N, M]) IsConnected() bool { return mb.sender.IsSenderConnected() }

// Len reports the number of messages currently queued.
func (mb *BasicMailbox[N, M]) Len() int { return mb.sender.Len() }

// IsEmpty reports whether the mailbox currently holds no messages.
func (mb *BasicMailbox[N, M]) IsEmpty() bool { return mb.sender.IsEmpty() }

// TrySend enqueues msg respecting the loose bound, then — if enqueueing
// succeeded — attempts to notify the FSM via scheduler so it gets driven.
// The notify half is skipped entirely on a send error: there is nothing to
// wake for a message that never made it into the queue.
func (mb *BasicMailbox[N, M]) TrySend(msg M, scheduler fsm.Scheduler[N], attach func(*N, *BasicMailbox[N, M])) error {
	if err := mb.sender.TrySend(msg); err != nil {
		return err
	}
	mb.notify(scheduler, attach)
	return nil
}

// ForceSend enqueues msg ignoring the loose bound, then notifies as above.
func (mb *BasicMailbox[N, M]) ForceSend(msg M, scheduler fsm.Scheduler[N], attach func(*N, *BasicMailbox[N, M])) error {
	if err := mb.sender.ForceSend(msg); err != nil {
		return err
	}
	mb.notify(scheduler, attach)
	return nil
}

func (mb *BasicMailbox[N, M]) notify(scheduler fsm.Scheduler[N], attach func(*N, *BasicMailbox[N, M])) {
	mb.state.Notify(scheduler, mb, func(fsmPtr *N, raw any) {
		if attach != nil {
			attach(fsmPtr, raw.(*BasicMailbox[N, M]))
			return
		}
		if f, ok := any(fsmPtr).(fsm.Fsm); ok {
			f.SetMailbox(raw)
		}
	})
}

// Release returns a previously-taken FSM to this mailbox's cell. See
// fsm.FsmState.Release.
func (mb *BasicMailbox[N, M]) Release(fsmPtr *N) { mb.state.Release(fsmPtr) }

// TakeFsm attempts to take ownership of the boxed FSM. See
// fsm.FsmState.TakeFsm.
func (mb *BasicMailbox[N, M]) TakeFsm() (*N, bool) { return mb.state.TakeFsm() }

// Close closes the sender side and clears the FsmState, dropping the FSM if
// nobody else currently holds it. Called by Router.register (replacing a
// stale mailbox) and Router.close.
func (mb *BasicMailbox[N, M]) Close() {
	mb.sender.CloseSender()
	mb.state.Clear()
}

// Clone returns a mailbox referencing the same FsmState and underlying
// queue but with an independent sender-side sampling counter, matching
// mpsc.LooseBoundedSender.Clone.
func (mb *BasicMailbox[N, M]) Clone() *BasicMailbox[N, M] {
	return &BasicMailbox[N, M]{sender: mb.sender.Clone(), state: mb.state}
}

// Destroy decrements the shared liveness counter once it is known nothing
// else can reach this mailbox's FsmState (only called from Router.Register
// when it replaces a mailbox, Router.Close and Router.BroadcastShutdown,
// after the mailbox has been removed from the address map).
func (mb *BasicMailbox[N, M]) Destroy() { mb.state.Destroy() }
