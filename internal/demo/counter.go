// Package demo reproduces original_source's test_runner.rs/test_route.rs
// toy FSM as a real component: a counter actor driven by Loop (CPU-bound)
// and Callback (arbitrary closure) messages, exercised by both this
// package's own tests and the cmd/fsmrund CLI's demo subcommand.
package demo

import (
	"github.com/google/uuid"

	"github.com/webitel/fsmrun/internal/fsm"
	"github.com/webitel/fsmrun/internal/mpsc"
)

// Message is the sum type CounterFsm accepts: exactly one of Loop/Callback
// is meaningful per value, mirroring the Rust original's Message enum.
type Message struct {
	Loop     int
	Callback func(h *Handler, r *CounterFsm)
}

// LoopMessage asks the FSM to spend count iterations of throwaway
// arithmetic, standing in for real CPU-bound work.
func LoopMessage(count int) Message { return Message{Loop: count} }

// CallbackMessage asks the FSM's handler to run fn against the FSM
// directly — the original's escape hatch for arbitrary test assertions,
// reused here to drive the webhook demo.
func CallbackMessage(fn func(h *Handler, r *CounterFsm)) Message {
	return Message{Callback: fn}
}

// CounterFsm is a normal (and, interchangeably, control) FSM: its handler
// drains Loop/Callback messages off its own mailbox receiver.
type CounterFsm struct {
	fsm.SelfMailbox

	ID       uuid.UUID
	recv     *mpsc.Receiver[Message]
	result   int64
	stopped  bool
	priority fsm.Priority
}

// NewCounterFsm builds a counter FSM and the sender half of its mailbox
// channel, ready to be wrapped in a mailbox.BasicMailbox and registered
// with a Router.
func NewCounterFsm(capacity int) (*mpsc.LooseBoundedSender[Message], *CounterFsm) {
	sender, recv := mpsc.LooseBounded[Message](capacity)
	return sender, &CounterFsm{ID: uuid.New(), recv: recv, priority: fsm.PriorityNormal}
}

func (c *CounterFsm) IsStopped() bool           { return c.stopped }
func (c *CounterFsm) GetPriority() fsm.Priority { return c.priority }

// Stop marks the FSM done; the next poll round removes it from rotation.
func (c *CounterFsm) Stop() { c.stopped = true }

// Result reports the accumulated value of every Loop message processed so
// far, readable only from within a Callback (there is no external
// synchronization — exactly like the original, which stores res directly
// on Runner "to avoid accidental optimization").
func (c *CounterFsm) Result() int64 { return c.result }
