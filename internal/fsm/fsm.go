// Package fsm defines the per-actor state cell that guarantees at-most-one
// concurrent handler per FSM without a per-FSM mutex, plus the minimal
// interfaces an FSM and its scheduler must satisfy.
package fsm

import (
	"sync/atomic"
)

// Priority selects which worker tier an FSM is driven by.
type Priority int

const (
	// PriorityNormal is the default tier.
	PriorityNormal Priority = iota
	// PriorityLow is the secondary, smaller-pool tier.
	PriorityLow
)

// status values for FsmState's atomic cell.
const (
	statusNotified int32 = iota
	statusIdle
	statusDrop
)

// Fsm is the contract the runtime requires of a user-supplied actor,
// implemented via pointer receiver (*YourFsm satisfies Fsm) so the runtime
// can reach it through a single type assertion at the boundary
// (batchsystem.Batch/Poller) rather than threading a second generic type
// parameter through every package. The mailbox handle an FSM uses to send
// itself work is untyped (any) from the runtime's point of view — it never
// interprets it beyond passing it through SetMailbox/TakeMailbox.
type Fsm interface {
	// IsStopped reports whether this actor is done processing forever.
	IsStopped() bool
	// SetMailbox installs a handle the FSM can use to message itself.
	SetMailbox(mb any)
	// TakeMailbox returns and clears any previously installed mailbox
	// handle, or nil and false if none was set.
	TakeMailbox() (any, bool)
	// GetPriority reports the tier this FSM currently wants to run on.
	GetPriority() Priority
}

// BaseFsm provides the defaults spec.md §6 describes for SetMailbox (no-op),
// TakeMailbox (none) and GetPriority (Normal). Embed it in a user FSM struct
// that only needs to implement IsStopped, mirroring the Rust trait's
// default method bodies.
type BaseFsm struct{}

func (BaseFsm) SetMailbox(any)           {}
func (BaseFsm) TakeMailbox() (any, bool) { return nil, false }
func (BaseFsm) GetPriority() Priority    { return PriorityNormal }

// SelfMailbox is a concrete SetMailbox/TakeMailbox implementation an FSM
// embeds instead of BaseFsm's no-op pair whenever it is driven by a
// BatchSystem: a BasicMailbox send calls SetMailbox with the FSM's own
// mailbox (from inside FsmState.Notify) on every successful take, and
// Batch.Release/Remove call TakeMailbox to
// get it back — without a real implementation neither can return the FSM
// to its mailbox once a poll round is done with it. BaseFsm remains useful
// only for FSM types exercised outside the batch-release path (e.g. in
// isolated unit tests of the FSM's own logic).
type SelfMailbox struct {
	mb any
}

func (s *SelfMailbox) SetMailbox(mb any) { s.mb = mb }

func (s *SelfMailbox) TakeMailbox() (any, bool) {
	if s.mb == nil {
		return nil, false
	}
	mb := s.mb
	s.mb = nil
	return mb, true
}

// PriorityOf reports fsmPtr's priority via a type assertion to Fsm,
// defaulting to PriorityNormal for values that don't implement it (e.g. the
// control FSM type, which has no priority tiers of its own).
func PriorityOf[N any](fsmPtr *N) Priority {
	if p, ok := any(fsmPtr).(Fsm); ok {
		return p.GetPriority()
	}
	return PriorityNormal
}

// IsStoppedOf reports whether fsmPtr is done, via the same type-assertion
// pattern as PriorityOf.
func IsStoppedOf[N any](fsmPtr *N) bool {
	if s, ok := any(fsmPtr).(Fsm); ok {
		return s.IsStopped()
	}
	return false
}

// Scheduler receives ownership of a boxed FSM once its FsmState transitions
// out of IDLE and hands it to whichever worker pool the FSM's priority
// selects.
type Scheduler[N any] interface {
	Schedule(fsm *N)
	Shutdown(sentinels int)
}

// FsmState is the three-state lock-free notification cell described in
// spec.md §4.3: status transitions between NOTIFIED, IDLE and the terminal
// DROP, and data is an owning pointer to the boxed FSM, swapped atomically
// so that at any instant the FSM is owned by exactly one of {this cell, a
// worker stack frame, a scheduler channel}.
type FsmState[N any] struct {
	status   atomic.Int32
	data     atomic.Pointer[N]
	stateCnt *atomic.Int64
}

// NewFsmState constructs a cell that owns fsm and increments stateCnt, a
// counter shared across every FsmState in a Router used only for trace
// diagnostics (Router.Trace's "leak" estimate).
func NewFsmState[N any](fsmPtr *N, stateCnt *atomic.Int64) *FsmState[N] {
	s := &FsmState[N]{stateCnt: stateCnt}
	s.status.Store(statusIdle)
	s.data.Store(fsmPtr)
	stateCnt.Add(1)
	return s
}

// TakeFsm attempts to take ownership of the boxed FSM for a worker to
// drive. It succeeds only while the cell is IDLE; a NOTIFIED or DROP cell
// means somebody else is already driving it (or it is terminal), and the
// call is a no-op returning (nil, false) — callers must never dereference a
// failed TakeFsm's result (spec.md §9 Open Question).
func (s *FsmState[N]) TakeFsm() (*N, bool) {
	if !s.status.CompareAndSwap(statusIdle, statusNotified) {
		return nil, false
	}
	fsmPtr := s.data.Swap(nil)
	return fsmPtr, true
}

// Release returns a previously taken FSM to the cell. If the cell was
// dropped out from under the worker while it held the FSM, the FSM is
// discarded instead (there is nothing left to release it to).
//
// A non-nil prior pointer observed in step 1 means some other owner also
// believed it held the FSM — an invariant violation. Release panics
// rather than silently corrupting state, matching spec.md §7's "invariant
// violations inside FsmState are fatal".
func (s *FsmState[N]) Release(fsmPtr *N) {
	prior := s.data.Swap(fsmPtr)
	if prior != nil {
		panic("fsm: release observed a non-nil prior FSM pointer; ownership invariant violated")
	}
	if s.status.CompareAndSwap(statusNotified, statusIdle) {
		return
	}
	// CAS failed: status must have been DROP (only Clear can move status to
	// DROP, and nothing moves status out of IDLE besides TakeFsm, which
	// this goroutine already passed through). The cell is terminal; take
	// the FSM back out and drop it.
	s.data.Store(nil)
}

// Notify attempts to hand the FSM to scheduler if the cell is currently
// IDLE. If the cell is already NOTIFIED or DROP, some other producer or
// worker is already responsible for it and Notify is a no-op — this is the
// "enqueue then wake" fusion's other half: a concurrent sender may lose the
// race to notify, but whoever wins guarantees the FSM gets scheduled with
// the newly enqueued message visible.
func (s *FsmState[N]) Notify(scheduler Scheduler[N], mb any, attach func(*N, any)) {
	fsmPtr, ok := s.TakeFsm()
	if !ok {
		return
	}
	if attach != nil {
		attach(fsmPtr, mb)
	}
	scheduler.Schedule(fsmPtr)
}

// Clear moves the cell to the terminal DROP state. If the cell was IDLE
// (nobody holds the FSM), the FSM is taken out and dropped immediately. If
// it was NOTIFIED, the current holder will discover DROP on its next
// Release and drop the FSM then.
func (s *FsmState[N]) Clear() {
	prior := s.status.Swap(statusDrop)
	if prior == statusIdle {
		s.data.Store(nil)
	}
}

// StateCnt exposes the shared liveness counter for Router.Trace.
func (s *FsmState[N]) StateCnt() *atomic.Int64 { return s.stateCnt }

// Destroy decrements the shared liveness counter and clears any FSM still
// owned by the cell. The Rust original does this in its Drop impl; Go has
// no destructors, so the Router calls this explicitly (from Register when
// it replaces a mailbox, Close and BroadcastShutdown) once it knows nothing
// else can reach the cell.
func (s *FsmState[N]) Destroy() {
	s.data.Store(nil)
	s.stateCnt.Add(-1)
}
