package wsgateway

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/webitel/fsmrun/internal/batchsystem"
	"github.com/webitel/fsmrun/internal/fsm"
	"github.com/webitel/fsmrun/internal/mailbox"
	"github.com/webitel/fsmrun/internal/mpsc"
	"github.com/webitel/fsmrun/internal/router"
)

// Hubber is the external API transports (the HTTP upgrade handler, tests)
// use to reach the registry.
type Hubber interface {
	Broadcast(userID uuid.UUID, ev Event) bool
	Register(conn Connector)
	Unregister(userID, connID uuid.UUID)
	IsConnected(userID uuid.UUID) bool
	Shutdown() error
}

var _ Hubber = (*Hub)(nil)

// cellEntry pairs a CellFsm with the router address and send-side mailbox
// handle it was registered under, so the evictor can close both together.
type cellEntry struct {
	addr   uint64
	cell   *CellFsm
	sender *mpsc.LooseBoundedSender[Event]
	state  *fsm.FsmState[CellFsm]
}

// Hub maps user identities to CellFsm router addresses and runs the
// batch-scheduled worker pool that drives every cell. It replaces the
// teacher's sync.Map-of-goroutines registry with a sync.Map-of-addresses
// fronting the spec'd Router.
type Hub struct {
	cells   sync.Map // uuid.UUID -> *cellEntry
	addrSeq atomic.Uint64

	evictionInterval time.Duration
	idleTimeout      time.Duration
	mailboxSize      int
	stopCh           chan struct{}

	stateCnt *atomic.Int64
	router   *router.Router[CellFsm, Event, ControlFsm, struct{}]
	bs       *batchsystem.BatchSystem[CellFsm, Event, ControlFsm, struct{}]
	logger   *slog.Logger
}

// NewHub builds the registry's BatchSystem, spawns its worker pool and
// starts the idle-cell evictor. cfg sizes the underlying pool exactly like
// any other batchsystem consumer.
func NewHub(cfg batchsystem.Config, logger *slog.Logger, opts ...Option) *Hub {
	h := &Hub{
		evictionInterval: time.Minute,
		idleTimeout:      5 * time.Minute,
		mailboxSize:      1024,
		stopCh:           make(chan struct{}),
		logger:           logger,
	}
	for _, opt := range opts {
		opt(h)
	}

	var stateCnt atomic.Int64
	h.stateCnt = &stateCnt

	controlSender, _ := mpsc.LooseBounded[struct{}](1)
	control := &ControlFsm{}

	r, bs := batchsystem.CreateSystem[CellFsm, Event, ControlFsm, struct{}](cfg, controlSender, control, &stateCnt)
	bs.Spawn("wsgateway", cellHandlerBuilder{}, batchsystem.WorkerProps{Tag: "wsgateway"}, logger)

	h.router = r
	h.bs = bs

	go h.runEvictor()
	return h
}

func (h *Hub) newCellEntry(userID uuid.UUID) *cellEntry {
	sender, recv := mpsc.LooseBounded[Event](h.mailboxSize)
	cell := NewCellFsm(userID, recv)
	state := fsm.NewFsmState(cell, h.stateCnt)
	addr := h.addrSeq.Add(1)
	return &cellEntry{addr: addr, cell: cell, sender: sender, state: state}
}

// IsConnected reports whether userID has a live cell.
func (h *Hub) IsConnected(userID uuid.UUID) bool {
	_, ok := h.cells.Load(userID)
	return ok
}

// Broadcast dispatches ev to userID's cell mailbox via the router.
func (h *Hub) Broadcast(userID uuid.UUID, ev Event) bool {
	val, ok := h.cells.Load(userID)
	if !ok {
		return false
	}
	return h.router.Send(val.(*cellEntry).addr, ev) == nil
}

// Register performs an idempotent attach: the first session for a user
// creates the cell and registers its mailbox with the router; subsequent
// sessions just attach to the existing one.
func (h *Hub) Register(conn Connector) {
	userID := conn.UserID()
	candidate := h.newCellEntry(userID)
	actual, loaded := h.cells.LoadOrStore(userID, candidate)
	entry := actual.(*cellEntry)

	if !loaded {
		mb := mailbox.New[CellFsm, Event](candidate.sender, candidate.state)
		h.router.Register(candidate.addr, mb)
	}

	entry.cell.Attach(conn)
}

// Unregister detaches conn from userID's cell. Reclaiming the cell itself,
// once it has no sessions left, is the evictor's job.
func (h *Hub) Unregister(userID, connID uuid.UUID) {
	val, ok := h.cells.Load(userID)
	if !ok {
		return
	}
	val.(*cellEntry).cell.Detach(connID)
}

func (h *Hub) runEvictor() {
	ticker := time.NewTicker(h.evictionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.performEviction()
		}
	}
}

func (h *Hub) performEviction() {
	reaped := 0
	h.cells.Range(func(key, value any) bool {
		entry := value.(*cellEntry)
		if entry.cell.IsIdle(h.idleTimeout) {
			entry.cell.Stop()
			h.router.Close(entry.addr)
			h.cells.Delete(key)
			reaped++
		}
		return true
	})
	if reaped > 0 && h.logger != nil {
		h.logger.Info("wsgateway eviction complete", "reclaimed", reaped)
	}
}

// Shutdown stops the evictor, closes every session and drains the batch
// system's worker pool.
func (h *Hub) Shutdown() error {
	close(h.stopCh)
	h.cells.Range(func(_, value any) bool {
		value.(*cellEntry).cell.Stop()
		return true
	})
	return h.bs.Shutdown()
}
