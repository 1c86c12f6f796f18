package batchsystem

import (
	"time"

	"github.com/webitel/fsmrun/internal/fsm"
	"github.com/webitel/fsmrun/internal/mailbox"
)

// Batch is the transient set of FSMs one Poller is driving in one round:
// parallel normals/timers slices (len(normals) == len(timers) always) plus
// at most one control FSM. A batch owns its FSMs for the duration of the
// round, returning them to their mailboxes (Release/Remove) or to a
// scheduler (Reschedule) before the round ends.
type Batch[N any, M any, C any, CM any] struct {
	normals []*N
	timers  []time.Time
	control *C
}

// NewBatch returns an empty batch.
func NewBatch[N any, M any, C any, CM any]() *Batch[N, M, C, CM] {
	return &Batch[N, M, C, CM]{}
}

// Len reports the number of normal FSMs currently in the batch.
func (b *Batch[N, M, C, CM]) Len() int { return len(b.normals) }

// IsEmpty reports whether the batch holds neither normals nor a control FSM.
func (b *Batch[N, M, C, CM]) IsEmpty() bool { return len(b.normals) == 0 && b.control == nil }

// HasControl reports whether a control FSM currently occupies the batch.
func (b *Batch[N, M, C, CM]) HasControl() bool { return b.control != nil }

// Control returns the control FSM currently in the batch, if any.
func (b *Batch[N, M, C, CM]) Control() (*C, bool) {
	if b.control == nil {
		return nil, false
	}
	return b.control, true
}

// Normals exposes the current normal-FSM slice for the handler's End call
// and the Poller's decision pass.
func (b *Batch[N, M, C, CM]) Normals() []*N { return b.normals }

// timerElapsed reports how long the FSM at index i has been sitting in the
// batch since it was last pushed, used by the Poller's "hot FSM" fairness
// check.
func (b *Batch[N, M, C, CM]) timerElapsed(i int) time.Duration { return time.Since(b.timers[i]) }

// Push installs env into the batch. It reports false for the envelopeEmpty
// shutdown sentinel (not a real FSM — the caller's fetch loop treats false
// as "nothing usable arrived"), and panics if a second control envelope
// arrives while one is already installed, matching the Rust original's
// assertion that at most one control FSM is ever in flight.
func (b *Batch[N, M, C, CM]) Push(env *Envelope[N, C]) bool {
	switch env.Kind {
	case envelopeNormal:
		b.normals = append(b.normals, env.Normal)
		b.timers = append(b.timers, time.Now())
		return true
	case envelopeControl:
		if b.control != nil {
			panic("batchsystem: received a second control FSM while one was already in the batch")
		}
		b.control = env.Control
		return true
	default: // envelopeEmpty
		return false
	}
}

func (b *Batch[N, M, C, CM]) swapRemove(i int) *N {
	fsmPtr := b.normals[i]
	last := len(b.normals) - 1
	b.normals[i] = b.normals[last]
	b.timers[i] = b.timers[last]
	b.normals = b.normals[:last]
	b.timers = b.timers[:last]
	return fsmPtr
}

// mailboxOf retrieves the mailbox an FSM was handed during FsmState.Notify
// (fsm.Fsm.TakeMailbox) — the self-reference mechanism described in
// spec.md §9, repurposed here so Batch can release/remove an FSM without
// the Poller re-resolving its address through the Router.
func mailboxOf[N any, M any](fsmPtr *N) (*mailbox.BasicMailbox[N, M], bool) {
	f, ok := any(fsmPtr).(fsm.Fsm)
	if !ok {
		return nil, false
	}
	raw, ok := f.TakeMailbox()
	if !ok {
		return nil, false
	}
	mb, ok := raw.(*mailbox.BasicMailbox[N, M])
	return mb, ok
}

// Release swap-removes index i, returns its FSM to its mailbox, and
// inspects the mailbox's length against hint (the length the handler
// observed while draining): if unchanged the FSM is quiescent; otherwise
// new messages arrived during the handler call, so Release re-takes the
// FSM and reinserts it near index i (swapped to the tail, then swapped
// with whatever now occupies i) so it is reconsidered without a second
// scheduler round-trip.
func (b *Batch[N, M, C, CM]) Release(i int, hint int) {
	fsmPtr := b.swapRemove(i)
	mb, ok := mailboxOf[N, M](fsmPtr)
	if !ok {
		return
	}
	mb.Release(fsmPtr)
	if mb.Len() == hint {
		return
	}

	refsmPtr, ok := mb.TakeFsm()
	if !ok {
		return
	}
	if f, isFsm := any(refsmPtr).(fsm.Fsm); isFsm {
		f.SetMailbox(mb)
	}
	b.normals = append(b.normals, refsmPtr)
	b.timers = append(b.timers, time.Now())
	last := len(b.normals) - 1
	if i < last {
		b.normals[i], b.normals[last] = b.normals[last], b.normals[i]
		b.timers[i], b.timers[last] = b.timers[last], b.timers[i]
	}
}

// Remove is Release's counterpart for FSMs the handler reported stopped:
// if the mailbox is empty the FSM really is done and is released (dropped
// into permanent idle); if messages arrived after the handler last drained
// it, the FSM is kept in the batch instead of being discarded, giving it
// one more round to process what just arrived.
func (b *Batch[N, M, C, CM]) Remove(i int, hint int) {
	fsmPtr := b.normals[i]
	mb, ok := mailboxOf[N, M](fsmPtr)
	if ok && !mb.IsEmpty() {
		// mailboxOf cleared the FSM's handle; put it back so Release can
		// find it.
		any(fsmPtr).(fsm.Fsm).SetMailbox(mb)
		b.Release(i, hint)
		return
	}
	b.swapRemove(i)
	if ok {
		mb.Release(fsmPtr)
	}
}

// Reschedule swap-removes index i and feeds the FSM back through
// scheduler, used when a normal FSM's priority no longer matches the
// worker driving it, or when the "hot FSM" fairness rule cycles it back
// through the queue.
func (b *Batch[N, M, C, CM]) Reschedule(i int, scheduler fsm.Scheduler[N]) {
	fsmPtr := b.swapRemove(i)
	scheduler.Schedule(fsmPtr)
}

// ReleaseControl returns the control FSM to controlBox. If the mailbox
// grew since hint was observed, the FSM is taken back out and kept in the
// batch for another round rather than round-tripping through the control
// scheduler.
func (b *Batch[N, M, C, CM]) ReleaseControl(controlBox *mailbox.BasicMailbox[C, CM], hint int) {
	fsmPtr := b.control
	b.control = nil
	controlBox.Release(fsmPtr)
	if controlBox.Len() == hint {
		return
	}
	if refsmPtr, ok := controlBox.TakeFsm(); ok {
		b.control = refsmPtr
	}
}

// RemoveControl returns the control FSM to controlBox only if the mailbox
// is currently empty; otherwise the (stopped) control FSM is kept in the
// batch so it can process what just arrived.
func (b *Batch[N, M, C, CM]) RemoveControl(controlBox *mailbox.BasicMailbox[C, CM]) {
	if !controlBox.IsEmpty() {
		return
	}
	fsmPtr := b.control
	b.control = nil
	controlBox.Release(fsmPtr)
}
