package wsgateway

import (
	"github.com/webitel/fsmrun/internal/batchsystem"
	"github.com/webitel/fsmrun/internal/fsm"
)

// ControlFsm is the gateway's control FSM. Nothing currently sends control
// messages to it — the gateway has no cluster-wide broadcast of its own —
// but CreateSystem requires one, so it exists purely to size the type
// parameter the way spec.md's control-path Open Question resolution
// requires (control FSMs always travel the control-scheduler path, never
// silently repackaged as Normal).
type ControlFsm struct {
	fsm.SelfMailbox
}

func (*ControlFsm) IsStopped() bool          { return false }
func (*ControlFsm) GetPriority() fsm.Priority { return fsm.PriorityNormal }

type cellHandler struct {
	batchsystem.BasePollHandler
}

func (cellHandler) Begin(int) {}

func (cellHandler) HandleControl(*ControlFsm) (int, bool) { return 0, false }

// HandleNormal drains every Event currently queued for cell and fans each
// one out to the cell's attached sessions, returning the (now zero) queue
// length as the length hint Poller.decide uses to release the cell.
func (cellHandler) HandleNormal(cell *CellFsm) (int, bool) {
	for {
		ev, err := cell.recv.TryRecv()
		if err != nil {
			break
		}
		cell.deliver(ev)
	}
	return cell.recv.Len(), true
}

func (cellHandler) End([]*CellFsm) {}

type cellHandlerBuilder struct{}

func (cellHandlerBuilder) Build(fsm.Priority) batchsystem.PollHandler[CellFsm, ControlFsm] {
	return cellHandler{}
}
