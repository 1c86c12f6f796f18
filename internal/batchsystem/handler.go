package batchsystem

import "github.com/webitel/fsmrun/internal/fsm"

// PollHandler is the user-supplied driver invoked once per poll round
// across a batch: Begin announces the round's capacity, HandleControl/
// HandleNormal process one FSM each (returning a length hint: the mailbox
// length the handler observed after draining, or ok=false for "no hint"),
// and End flushes any per-round aggregated work.
type PollHandler[N any, C any] interface {
	Begin(batchSize int)
	HandleControl(c *C) (hint int, ok bool)
	HandleNormal(n *N) (hint int, ok bool)
	End(normals []*N)
	Pause()
	GetPriority() fsm.Priority
}

// BasePollHandler supplies the defaults spec.md §6 describes for Pause
// (no-op) and GetPriority (Normal). Embed it in a handler that only needs
// to implement Begin/HandleControl/HandleNormal/End.
type BasePollHandler struct{}

func (BasePollHandler) Pause()                    {}
func (BasePollHandler) GetPriority() fsm.Priority { return fsm.PriorityNormal }

// HandlerBuilder is moved into BatchSystem.Spawn and invoked once per
// worker (pool_size + low_priority_pool_size times total), each call
// producing an independent handler instance so workers never share
// handler state.
type HandlerBuilder[N any, C any] interface {
	Build(priority fsm.Priority) PollHandler[N, C]
}
