package wsgateway

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Connector is the external API a CellFsm needs from one attached session,
// matching the teacher's Connector interface shape so the gateway can mock
// sessions in tests without a real socket.
type Connector interface {
	ID() uuid.UUID
	UserID() uuid.UUID
	Send(ev Event, timeout time.Duration) bool
	Close()
}

var _ Connector = (*Connection)(nil)

// Connection is one WebSocket session belonging to a user's cell. Unlike
// the teacher's connect.go, it owns no receive-side API of its own — events
// arrive only via CellFsm.deliver, which calls Send directly — because
// under this runtime the cell (not the connection) is what a Poller drives.
type Connection struct {
	id     uuid.UUID
	userID uuid.UUID

	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc

	sendCh    chan Event
	closeOnce sync.Once

	lastActivityAt atomic.Int64
	droppedCount   atomic.Uint64
}

var connectionPool = sync.Pool{
	New: func() any { return &Connection{} },
}

// NewConnection wraps an already-upgraded *websocket.Conn, starting the
// write pump that drains sendCh onto the socket. bufferSize bounds how many
// undelivered events a slow session can accumulate before Send starts
// applying backpressure.
func NewConnection(ctx context.Context, userID uuid.UUID, conn *websocket.Conn, bufferSize int) *Connection {
	c := connectionPool.Get().(*Connection)
	c.reset(ctx, userID, conn, bufferSize)
	go c.writePump()
	return c
}

func (c *Connection) reset(ctx context.Context, userID uuid.UUID, conn *websocket.Conn, bufferSize int) {
	childCtx, cancel := context.WithCancel(ctx)
	*c = Connection{
		id:     uuid.New(),
		userID: userID,
		conn:   conn,
		ctx:    childCtx,
		cancel: cancel,
		sendCh: make(chan Event, bufferSize),
	}
	c.lastActivityAt.Store(time.Now().UnixNano())
}

func (c *Connection) ID() uuid.UUID     { return c.id }
func (c *Connection) UserID() uuid.UUID { return c.userID }

// Send enqueues ev for delivery over the socket, applying the same
// timeout-then-evict backpressure strategy as the teacher's connect.go.
func (c *Connection) Send(ev Event, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	select {
	case <-c.ctx.Done():
		return false
	case c.sendCh <- ev:
		c.lastActivityAt.Store(time.Now().UnixNano())
		return true
	case <-ctx.Done():
		return c.handleBackpressure(ev, timeout)
	}
}

// handleBackpressure drops low-priority events outright and otherwise tries
// to evict one lower-priority queued event to make room for ev.
func (c *Connection) handleBackpressure(ev Event, timeout time.Duration) bool {
	if ev.GetPriority() <= PriorityLow {
		c.droppedCount.Add(1)
		return false
	}

	select {
	case oldEv := <-c.sendCh:
		if oldEv.Priority < ev.Priority {
			c.sendCh <- ev
			return true
		}
		select {
		case c.sendCh <- oldEv:
		default:
		}
	case <-time.After(timeout):
	}

	c.droppedCount.Add(1)
	return false
}

// writePump is the one goroutine per session gorilla/websocket requires for
// writes; it drains sendCh until Close closes it.
func (c *Connection) writePump() {
	conn := c.conn
	for ev := range c.sendCh {
		if err := conn.WriteMessage(websocket.TextMessage, ev.Payload); err != nil {
			return
		}
	}
}

// Close tears the session down exactly once and recycles the struct.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		if c.sendCh != nil {
			close(c.sendCh)
		}
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.sendCh = nil
		c.conn = nil
		connectionPool.Put(c)
	})
}
