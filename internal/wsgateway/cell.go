// Package wsgateway bridges WebSocket sessions to the batch-scheduled FSM
// runtime: every user gets one CellFsm, a normal FSM driven by a
// batchsystem.BatchSystem instead of the dedicated per-user goroutine the
// teacher's registry package spun up. Messages addressed to a user travel
// through the Router exactly like any other FSM message; the Poller pool
// gives the cell CPU time to fan them out to every attached session.
package wsgateway

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/webitel/fsmrun/internal/fsm"
	"github.com/webitel/fsmrun/internal/mpsc"
)

// CellFsm is the per-user actor: a router address whose mailbox holds
// Events still waiting to be fanned out, plus the set of sessions currently
// attached to that user.
type CellFsm struct {
	fsm.SelfMailbox

	userID uuid.UUID
	recv   *mpsc.Receiver[Event]

	mu       sync.RWMutex
	sessions map[uuid.UUID]Connector

	lastActivityUnix atomic.Int64
	stopped          atomic.Bool
}

// NewCellFsm constructs a cell over the receiving half of a mailbox channel
// already registered with the router under some address.
func NewCellFsm(userID uuid.UUID, recv *mpsc.Receiver[Event]) *CellFsm {
	c := &CellFsm{
		userID:   userID,
		recv:     recv,
		sessions: make(map[uuid.UUID]Connector),
	}
	c.touch()
	return c
}

func (c *CellFsm) IsStopped() bool           { return c.stopped.Load() }
func (c *CellFsm) GetPriority() fsm.Priority { return fsm.PriorityNormal }

func (c *CellFsm) touch() { c.lastActivityUnix.Store(time.Now().Unix()) }

// IsIdle reports whether this cell can be reclaimed: no attached sessions
// and nothing happened for longer than timeout.
func (c *CellFsm) IsIdle(timeout time.Duration) bool {
	c.mu.RLock()
	hasSessions := len(c.sessions) > 0
	c.mu.RUnlock()
	if hasSessions {
		return false
	}
	last := time.Unix(c.lastActivityUnix.Load(), 0)
	return time.Since(last) > timeout
}

func (c *CellFsm) Attach(conn Connector) {
	c.mu.Lock()
	c.sessions[conn.ID()] = conn
	c.mu.Unlock()
	c.touch()
}

// Detach removes conn and reports whether the cell is now empty.
func (c *CellFsm) Detach(connID uuid.UUID) bool {
	c.mu.Lock()
	delete(c.sessions, connID)
	empty := len(c.sessions) == 0
	c.mu.Unlock()
	c.touch()
	return empty
}

// deliver fans ev out to every attached session. Called from the handler's
// drain loop on whichever Poller owns this cell for the round — there is no
// dedicated per-cell goroutine here, unlike the teacher's Cell.loop.
func (c *CellFsm) deliver(ev Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, conn := range c.sessions {
		conn.Send(ev, 250*time.Millisecond)
	}
}

// Stop marks the cell done and closes every attached session. Called by the
// Hub's evictor or at shutdown; once stopped, IsStoppedOf reports true and
// the next poll round removes the cell from rotation.
func (c *CellFsm) Stop() {
	c.stopped.Store(true)
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, conn := range c.sessions {
		conn.Close()
		delete(c.sessions, id)
	}
}
