package batchsystem

import (
	"github.com/webitel/fsmrun/internal/fsm"
	"github.com/webitel/fsmrun/internal/mpsc"
)

// NormalScheduler routes a boxed normal FSM to whichever of the two
// priority channels matches its current fsm.GetPriority(), tagging the
// envelope envelopeNormal.
type NormalScheduler[N any, C any] struct {
	normalTx *mpsc.Sender[*Envelope[N, C]]
	lowTx    *mpsc.Sender[*Envelope[N, C]]
}

func (s *NormalScheduler[N, C]) Schedule(fsmPtr *N) {
	env := &Envelope[N, C]{Kind: envelopeNormal, Normal: fsmPtr}
	if fsm.PriorityOf(fsmPtr) == fsm.PriorityLow {
		_ = s.lowTx.Send(env)
		return
	}
	_ = s.normalTx.Send(env)
}

// Shutdown floods both channels with sentinels so every blocked poller,
// regardless of tier, wakes and observes shutdown.
func (s *NormalScheduler[N, C]) Shutdown(sentinels int) {
	floodSentinels(s.normalTx, sentinels)
	floodSentinels(s.lowTx, sentinels)
}

// ControlScheduler always tags its envelope envelopeControl and always
// sends on the normal-priority channel: the control FSM is a singleton
// with no priority tiers of its own, and is drained by whichever normal
// worker's fetchFsm notices the channel has a control envelope waiting.
type ControlScheduler[N any, C any] struct {
	normalTx *mpsc.Sender[*Envelope[N, C]]
	lowTx    *mpsc.Sender[*Envelope[N, C]]
}

func (s *ControlScheduler[N, C]) Schedule(fsmPtr *C) {
	_ = s.normalTx.Send(&Envelope[N, C]{Kind: envelopeControl, Control: fsmPtr})
}

func (s *ControlScheduler[N, C]) Shutdown(sentinels int) {
	floodSentinels(s.normalTx, sentinels)
	floodSentinels(s.lowTx, sentinels)
}

func floodSentinels[N any, C any](tx *mpsc.Sender[*Envelope[N, C]], n int) {
	for i := 0; i < n; i++ {
		_ = tx.Send(&Envelope[N, C]{Kind: envelopeEmpty})
	}
}

// NormalScheduler implements fsm.Scheduler[N]; ControlScheduler implements
// fsm.Scheduler[C] — both are wired into router.New accordingly.
var _ fsm.Scheduler[struct{}] = (*NormalScheduler[struct{}, int])(nil)
