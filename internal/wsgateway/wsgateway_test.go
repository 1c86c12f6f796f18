package wsgateway_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/webitel/fsmrun/internal/batchsystem"
	"github.com/webitel/fsmrun/internal/wsgateway"
)

// fakeConn is a Connector double that records delivered events instead of
// writing to a real socket, letting these tests exercise Hub/CellFsm
// end-to-end without a websocket.Conn.
type fakeConn struct {
	id       uuid.UUID
	userID   uuid.UUID
	received chan wsgateway.Event
	closed   chan struct{}
}

func newFakeConn(userID uuid.UUID) *fakeConn {
	return &fakeConn{id: uuid.New(), userID: userID, received: make(chan wsgateway.Event, 8), closed: make(chan struct{})}
}

func (f *fakeConn) ID() uuid.UUID     { return f.id }
func (f *fakeConn) UserID() uuid.UUID { return f.userID }

func (f *fakeConn) Send(ev wsgateway.Event, _ time.Duration) bool {
	select {
	case f.received <- ev:
		return true
	default:
		return false
	}
}

func (f *fakeConn) Close() {
	select {
	case <-f.closed:
	default:
		close(f.closed)
	}
}

func newTestHub(t *testing.T) *wsgateway.Hub {
	t.Helper()
	cfg := batchsystem.DefaultConfig()
	cfg.PoolSize = 1
	cfg.LowPriorityPoolSize = 0
	return wsgateway.NewHub(cfg, nil,
		wsgateway.WithEvictionInterval(10*time.Millisecond),
		wsgateway.WithIdleTimeout(20*time.Millisecond),
		wsgateway.WithMailboxSize(16),
	)
}

// TestRegisterBroadcastDeliversToAttachedSession confirms a Broadcast call
// reaches every session attached to the target user via the router/batch
// system, not a direct function call.
func TestRegisterBroadcastDeliversToAttachedSession(t *testing.T) {
	hub := newTestHub(t)
	userID := uuid.New()
	conn := newFakeConn(userID)

	hub.Register(conn)
	require.True(t, hub.IsConnected(userID))

	require.True(t, hub.Broadcast(userID, wsgateway.Event{Priority: wsgateway.PriorityNormal, Payload: []byte("hello")}))

	select {
	case ev := <-conn.received:
		require.Equal(t, []byte("hello"), ev.Payload)
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}

	require.NoError(t, hub.Shutdown())
}

// TestBroadcastToUnknownUserReturnsFalse confirms broadcasting to a user
// with no registered cell reports false rather than panicking or blocking.
func TestBroadcastToUnknownUserReturnsFalse(t *testing.T) {
	hub := newTestHub(t)
	require.False(t, hub.Broadcast(uuid.New(), wsgateway.Event{Payload: []byte("nobody-home")}))
	require.NoError(t, hub.Shutdown())
}

// TestUnregisterDetachesSessionWithoutClosingOthers confirms Unregister
// only removes the named session, leaving a second session on the same
// user attached.
func TestUnregisterDetachesSessionWithoutClosingOthers(t *testing.T) {
	hub := newTestHub(t)
	userID := uuid.New()
	first := newFakeConn(userID)
	second := newFakeConn(userID)

	hub.Register(first)
	hub.Register(second)
	hub.Unregister(userID, first.id)

	require.True(t, hub.Broadcast(userID, wsgateway.Event{Payload: []byte("still-here")}))
	select {
	case <-second.received:
	case <-time.After(time.Second):
		t.Fatal("second session did not receive the event")
	}

	require.NoError(t, hub.Shutdown())
}

// TestEvictorReclaimsIdleSessionlessCell confirms a cell with no attached
// sessions eventually stops being addressable, once it has sat idle past
// idleTimeout.
func TestEvictorReclaimsIdleSessionlessCell(t *testing.T) {
	hub := newTestHub(t)
	userID := uuid.New()
	conn := newFakeConn(userID)
	hub.Register(conn)
	hub.Unregister(userID, conn.id)

	require.Eventually(t, func() bool {
		return !hub.Broadcast(userID, wsgateway.Event{Payload: []byte("late")})
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Shutdown())
}

// TestShutdownClosesAttachedSessions confirms Shutdown tears every attached
// Connector down, not just the batch system.
func TestShutdownClosesAttachedSessions(t *testing.T) {
	hub := newTestHub(t)
	userID := uuid.New()
	conn := newFakeConn(userID)
	hub.Register(conn)

	require.NoError(t, hub.Shutdown())

	select {
	case <-conn.closed:
	default:
		t.Fatal("session was not closed by Shutdown")
	}
}
