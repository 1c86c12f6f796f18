// Package router implements the FSM address book: an address→mailbox map
// guarded by a coarse mutex, fronted by a per-clone thread-local LRU cache
// so the hot send path almost never touches the lock (spec.md §4.4).
package router

import (
	"sync"
	"sync/atomic"

	"github.com/webitel/fsmrun/internal/fsm"
	"github.com/webitel/fsmrun/internal/lru"
	"github.com/webitel/fsmrun/internal/mailbox"
	"github.com/webitel/fsmrun/internal/mpsc"
)

const (
	cacheCapacity   = 1024
	cacheSampleMask = 7
)

// Trace reports approximate router memory usage, an operator-visible
// pointer to leaking mailboxes.
type Trace struct {
	Alive int64
	Leak  int64
}

// checkDoResult is the outcome of the lookup protocol in checkDo.
type checkDoResult int

const (
	notExist checkDoResult = iota
	invalid
	valid
)

// normalMailMap is the shared, mutex-guarded address book. alive acts as
// AtomicUsize mirror of len(byAddr) so Trace can read it without taking the
// lock.
type normalMailMap[N any, M any] struct {
	mu     sync.Mutex
	byAddr map[uint64]*mailbox.BasicMailbox[N, M]
	alive  atomic.Int64
}

// Router is the address book. Router is cheap to Clone: clones share the
// address map, control mailbox, schedulers, the state counter and the
// shutdown flag, but each gets a fresh, empty LRU cache — the mechanism by
// which every worker gets a private cache with zero cross-goroutine
// synchronization (spec.md §4.4 "Clone semantics").
type Router[N any, M any, C any, CM any] struct {
	normals *normalMailMap[N, M]
	cache   *lru.Cache[uint64, *mailbox.BasicMailbox[N, M]]

	controlBox *mailbox.BasicMailbox[C, CM]

	normalScheduler  fsm.Scheduler[N]
	controlScheduler fsm.Scheduler[C]

	stateCnt *atomic.Int64
	shutdown *atomic.Bool
}

// New constructs a Router. controlBox, both schedulers and stateCnt are
// normally supplied by batchsystem.CreateSystem.
func New[N any, M any, C any, CM any](
	controlBox *mailbox.BasicMailbox[C, CM],
	normalScheduler fsm.Scheduler[N],
	controlScheduler fsm.Scheduler[C],
	stateCnt *atomic.Int64,
) *Router[N, M, C, CM] {
	return &Router[N, M, C, CM]{
		normals: &normalMailMap[N, M]{
			byAddr: make(map[uint64]*mailbox.BasicMailbox[N, M]),
		},
		cache:            lru.New[uint64, *mailbox.BasicMailbox[N, M]](cacheCapacity, cacheSampleMask, nil),
		controlBox:       controlBox,
		normalScheduler:  normalScheduler,
		controlScheduler: controlScheduler,
		stateCnt:         stateCnt,
		shutdown:         &atomic.Bool{},
	}
}

// Clone returns a Router sharing every field except the LRU cache, which is
// fresh and empty. Each Poller worker calls Clone exactly once to obtain
// its own private cache.
func (r *Router[N, M, C, CM]) Clone() *Router[N, M, C, CM] {
	return &Router[N, M, C, CM]{
		normals:          r.normals,
		cache:            lru.New[uint64, *mailbox.BasicMailbox[N, M]](cacheCapacity, cacheSampleMask, nil),
		controlBox:       r.controlBox,
		normalScheduler:  r.normalScheduler,
		controlScheduler: r.controlScheduler,
		stateCnt:         r.stateCnt,
		shutdown:         r.shutdown,
	}
}

// IsShutdown reports whether BroadcastShutdown has been called.
func (r *Router[N, M, C, CM]) IsShutdown() bool { return r.shutdown.Load() }

// checkDo implements the lookup protocol from spec.md §4.4: consult the
// local cache first; on a miss, take the map mutex, look up, clone the
// mailbox handle, release the lock, resize the cache if its capacity no
// longer fits the map, then re-run pred on the (possibly fresh) mailbox.
func (r *Router[N, M, C, CM]) checkDo(addr uint64, pred func(*mailbox.BasicMailbox[N, M]) bool) checkDoResult {
	if mb, ok := r.cache.Get(addr); ok {
		if pred(mb) {
			return valid
		}
		// Stale cache entry whose predicate failed; evict and fall through
		// to the authoritative map lookup below so a true miss is reported
		// correctly (matching spec.md's "on failure ... evict any stale
		// cache entry").
		r.cache.Remove(addr)
	}

	r.normals.mu.Lock()
	cnt := len(r.normals.byAddr)
	mb, ok := r.normals.byAddr[addr]
	if !ok {
		r.normals.mu.Unlock()
		return notExist
	}
	cloned := mb.Clone()
	r.normals.mu.Unlock()

	if cnt > r.cache.Capacity() || cnt < r.cache.Capacity()/2 {
		r.cache.Resize(cnt)
	}

	if pred(cloned) {
		r.cache.Insert(addr, cloned)
		return valid
	}
	r.cache.Remove(addr)
	return invalid
}

// mailboxOf locates the mailbox for addr via checkDo without any
// predicate-driven side effect beyond existence, used by the public
// Mailbox accessor.
func (r *Router[N, M, C, CM]) mailboxOf(addr uint64) (*mailbox.BasicMailbox[N, M], bool) {
	var found *mailbox.BasicMailbox[N, M]
	res := r.checkDo(addr, func(mb *mailbox.BasicMailbox[N, M]) bool {
		found = mb
		return true
	})
	if res != valid {
		return nil, false
	}
	return found, true
}

// Mailbox returns the mailbox registered at addr, if any.
func (r *Router[N, M, C, CM]) Mailbox(addr uint64) (*mailbox.BasicMailbox[N, M], bool) {
	return r.mailboxOf(addr)
}

// ControlMailbox returns the singleton control mailbox.
func (r *Router[N, M, C, CM]) ControlMailbox() *mailbox.BasicMailbox[C, CM] { return r.controlBox }

// Register installs mb at addr. If addr already had a mailbox, the old one
// is closed first (dropping its FSM via Clear), matching spec.md's
// "register closes stale mailbox" rule.
func (r *Router[N, M, C, CM]) Register(addr uint64, mb *mailbox.BasicMailbox[N, M]) {
	r.normals.mu.Lock()
	old, existed := r.normals.byAddr[addr]
	r.normals.byAddr[addr] = mb
	if !existed {
		r.normals.alive.Add(1)
	}
	r.normals.mu.Unlock()

	if existed {
		old.Close()
		old.Destroy()
	}
}

// RegisterAll installs every (addr, mailbox) pair in addrs.
func (r *Router[N, M, C, CM]) RegisterAll(addrs map[uint64]*mailbox.BasicMailbox[N, M]) {
	for addr, mb := range addrs {
		r.Register(addr, mb)
	}
}

// TrySendResult is the Either<Result, msg> the Rust original returns from
// try_send: exactly one of Err/NotFound is meaningful.
type TrySendResult[M any] struct {
	Err      error
	NotFound bool
	Msg      M // populated only when NotFound
}

// TrySend attempts to deliver msg to addr's mailbox without blocking or
// bypassing the loose bound. If no mailbox is registered at addr, the
// unsent message is handed back to the caller via NotFound/Msg.
func (r *Router[N, M, C, CM]) TrySend(addr uint64, msg M) TrySendResult[M] {
	mb, ok := r.mailboxOf(addr)
	if !ok {
		return TrySendResult[M]{NotFound: true, Msg: msg}
	}
	err := mb.TrySend(msg, r.normalScheduler, nil)
	return TrySendResult[M]{Err: err}
}

// Send flattens TrySend's "address not found" case into ErrDisconnected.
func (r *Router[N, M, C, CM]) Send(addr uint64, msg M) error {
	res := r.TrySend(addr, msg)
	if res.NotFound {
		return mpsc.ErrDisconnected
	}
	return res.Err
}

// ForceSend delivers msg to addr bypassing the loose bound when the
// ordinary send path reports Full. A Disconnected result during shutdown
// is silently swallowed, since a broadcast-shutdown race with in-flight
// producers is not operator-actionable (spec.md §7 item 4).
func (r *Router[N, M, C, CM]) ForceSend(addr uint64, msg M) error {
	err := r.Send(addr, msg)
	if err == nil {
		return nil
	}
	if err == mpsc.ErrFull {
		// The cache is still hot for addr (Send just consulted it); re-fetch
		// and bypass the cap.
		mb, ok := r.mailboxOf(addr)
		if !ok {
			if r.IsShutdown() {
				return nil
			}
			return mpsc.ErrDisconnected
		}
		if ferr := mb.ForceSend(msg, r.normalScheduler, nil); ferr != nil {
			if r.IsShutdown() {
				return nil
			}
			return ferr
		}
		return nil
	}
	if r.IsShutdown() {
		return nil
	}
	return err
}

// SendControl delivers a control message via TrySend semantics on the
// control mailbox.
func (r *Router[N, M, C, CM]) SendControl(msg CM) error {
	return r.controlBox.TrySend(msg, r.controlScheduler, nil)
}

// BroadcastNormal sends a freshly generated message (via gen) to every
// registered mailbox, bypassing the loose bound.
func (r *Router[N, M, C, CM]) BroadcastNormal(gen func() M) {
	r.normals.mu.Lock()
	defer r.normals.mu.Unlock()
	for _, mb := range r.normals.byAddr {
		_ = mb.ForceSend(gen(), r.normalScheduler, nil)
	}
}

// BroadcastShutdown flips the shutdown flag, clears the local cache, drains
// the address map (closing and destroying every mailbox plus the control
// mailbox) and shuts down both schedulers with a sentinel count supplied by
// the caller (batchsystem.BatchSystem.Shutdown computes
// max(poolSize,lowPrioritySize)+32 per spec.md's Open Question resolution).
// It is idempotent: a second call finds an empty map and a no-op cache
// clear.
func (r *Router[N, M, C, CM]) BroadcastShutdown(sentinels int) {
	r.shutdown.Store(true)
	r.cache.Clear()

	r.normals.mu.Lock()
	drained := r.normals.byAddr
	r.normals.byAddr = make(map[uint64]*mailbox.BasicMailbox[N, M])
	r.normals.alive.Store(0)
	r.normals.mu.Unlock()

	for _, mb := range drained {
		mb.Close()
		mb.Destroy()
	}
	r.controlBox.Close()

	r.normalScheduler.Shutdown(sentinels)
	r.controlScheduler.Shutdown(sentinels)
}

// Close evicts addr from the cache and map, then closes and destroys its
// mailbox.
func (r *Router[N, M, C, CM]) Close(addr uint64) {
	r.cache.Remove(addr)

	r.normals.mu.Lock()
	mb, ok := r.normals.byAddr[addr]
	if ok {
		delete(r.normals.byAddr, addr)
		r.normals.alive.Add(-1)
	}
	r.normals.mu.Unlock()

	if !ok {
		return
	}
	mb.Close()
	mb.Destroy()
}

// ClearCache empties this clone's private LRU cache.
func (r *Router[N, M, C, CM]) ClearCache() { r.cache.Clear() }

// Trace reports approximate liveness accounting: Alive mirrors the address
// map's length; Leak estimates mailboxes whose FsmState is still alive
// despite not being reachable through the map (clamped at zero), i.e.
// stateCnt minus the alive normals minus the one permanently-alive control
// FSM.
func (r *Router[N, M, C, CM]) Trace() Trace {
	alive := r.normals.alive.Load()
	leak := r.stateCnt.Load() - alive - 1
	if leak < 0 {
		leak = 0
	}
	return Trace{Alive: alive, Leak: leak}
}
